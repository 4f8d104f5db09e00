package world

import (
	"math"

	"lostfound.gg/internal/sim/geom"
)

const (
	// RoadHalfWidth is the lateral reach of every road on both sides of its axis.
	RoadHalfWidth = 0.4
	// RoadTol is the containment tolerance for on-road checks.
	RoadTol = 1e-3
)

// Road is an axis-aligned segment widened to RoadHalfWidth on each side.
// The bounding rectangle is precomputed at construction.
type Road struct {
	Start geom.Point
	End   geom.Point

	minX, maxX float64
	minY, maxY float64
}

func NewHorizontalRoad(x0, y0, x1 int) Road {
	return newRoad(geom.Point{X: x0, Y: y0}, geom.Point{X: x1, Y: y0})
}

func NewVerticalRoad(x0, y0, y1 int) Road {
	return newRoad(geom.Point{X: x0, Y: y0}, geom.Point{X: x0, Y: y1})
}

func newRoad(start, end geom.Point) Road {
	minX := math.Min(float64(start.X), float64(end.X)) - RoadHalfWidth
	maxX := math.Max(float64(start.X), float64(end.X)) + RoadHalfWidth
	minY := math.Min(float64(start.Y), float64(end.Y)) - RoadHalfWidth
	maxY := math.Max(float64(start.Y), float64(end.Y)) + RoadHalfWidth
	return Road{Start: start, End: end, minX: minX, maxX: maxX, minY: minY, maxY: maxY}
}

func (r Road) IsHorizontal() bool { return r.Start.Y == r.End.Y }
func (r Road) IsVertical() bool   { return r.Start.X == r.End.X }

// Contains reports whether c lies inside the road rectangle within RoadTol.
func (r Road) Contains(c geom.Point2D) bool {
	return c.X >= r.minX-RoadTol && c.X <= r.maxX+RoadTol &&
		c.Y >= r.minY-RoadTol && c.Y <= r.maxY+RoadTol
}

// BoundaryExit returns the point where the straight trajectory from `from`
// toward `to` first crosses the road rectangle boundary. The crossing is
// found parametrically: the earlier of the x-edge and y-edge intersections
// in the direction of motion wins. `from` must lie inside the rectangle.
func (r Road) BoundaryExit(from, to geom.Point2D) geom.Point2D {
	dx := to.X - from.X
	dy := to.Y - from.Y

	tx := math.Inf(1)
	switch {
	case dx > 0:
		tx = (r.maxX - from.X) / dx
	case dx < 0:
		tx = (r.minX - from.X) / dx
	}
	ty := math.Inf(1)
	switch {
	case dy > 0:
		ty = (r.maxY - from.Y) / dy
	case dy < 0:
		ty = (r.minY - from.Y) / dy
	}

	t := math.Min(tx, ty)
	if math.IsInf(t, 1) || t < 0 {
		return from
	}
	if t > 1 {
		t = 1
	}
	exit := geom.Point2D{X: from.X + t*dx, Y: from.Y + t*dy}
	// Snap back any drift so the exit point stays inside the rectangle.
	exit.X = math.Max(r.minX, math.Min(r.maxX, exit.X))
	exit.Y = math.Max(r.minY, math.Min(r.maxY, exit.Y))
	return exit
}

// RandomCoord maps two uniform ratios in [0,1] to a coordinate on the road:
// one along the axis, one across the full lane width.
func (r Road) RandomCoord(rLen, rWid float64) geom.Point2D {
	if r.IsHorizontal() {
		lo := math.Min(float64(r.Start.X), float64(r.End.X))
		hi := math.Max(float64(r.Start.X), float64(r.End.X))
		return geom.Point2D{
			X: lo + rLen*(hi-lo),
			Y: float64(r.Start.Y) - RoadHalfWidth + rWid*2*RoadHalfWidth,
		}
	}
	lo := math.Min(float64(r.Start.Y), float64(r.End.Y))
	hi := math.Max(float64(r.Start.Y), float64(r.End.Y))
	return geom.Point2D{
		X: float64(r.Start.X) - RoadHalfWidth + rWid*2*RoadHalfWidth,
		Y: lo + rLen*(hi-lo),
	}
}
