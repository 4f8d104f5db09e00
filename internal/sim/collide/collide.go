package collide

import (
	"math"
	"sort"

	"lostfound.gg/internal/sim/geom"
)

const (
	tolTime = 1e-10
	tolDist = 1e-10
)

// Collision widths of the three participant kinds.
const (
	ItemWidth = 0.0
	DogWidth  = 0.6
	BaseWidth = 0.5
)

// SweepResult describes the closest approach of a point moving from a to b
// toward a stationary target.
type SweepResult struct {
	SqDistance float64
	Ratio      float64
}

// Within reports whether the approach counts as a hit for the given radius.
// Ratio must land inside the sweep, distance inside the radius.
func (r SweepResult) Within(radius float64) bool {
	return r.Ratio >= 0 && r.Ratio <= 1 && r.SqDistance <= radius*radius
}

// SweepPoint projects target c onto the sweep a->b. A zero-length sweep is
// compared with exact equality: arbitrarily small moves must still gather.
func SweepPoint(a, b, c geom.Point2D) SweepResult {
	if b.X == a.X && b.Y == a.Y {
		dx := b.X - c.X
		dy := b.Y - c.Y
		return SweepResult{SqDistance: dx*dx + dy*dy, Ratio: 0}
	}
	ux := c.X - a.X
	uy := c.Y - a.Y
	vx := b.X - a.X
	vy := b.Y - a.Y
	uDotV := ux*vx + uy*vy
	uLen2 := ux*ux + uy*uy
	vLen2 := vx*vx + vy*vy
	return SweepResult{
		SqDistance: uLen2 - uDotV*uDotV/vLen2,
		Ratio:      uDotV / vLen2,
	}
}

// Item is a stationary gatherable point.
type Item struct {
	Pos   geom.Point2D
	Width float64
}

// Gatherer is the swept disc of a moving dog over one tick.
type Gatherer struct {
	Start geom.Point2D
	End   geom.Point2D
	Width float64
}

// Base is an axis-aligned deposit rectangle anchored at Pos with extent Offset.
type Base struct {
	Pos    geom.Point2D
	Offset geom.Point2D
	Width  float64
}

// Provider exposes the world view the detector walks. The production session
// view and test doubles both implement it.
type Provider interface {
	ItemsCount() int
	Item(idx int) Item
	GatherersCount() int
	Gatherer(idx int) Gatherer
	BaseCount() int
	Base(idx int) Base
}

// Event is a single gather or deposit registered during a tick. ItemID is the
// provider item index, or the base index when IsBase is set.
type Event struct {
	ItemID     int
	GathererID int
	SqDistance float64
	Time       float64
	IsBase     bool
}

// FindGatherEvents tests every moving gatherer against every item and base
// and returns the registered events ordered by time.
func FindGatherEvents(p Provider) []Event {
	var events []Event

	for g := 0; g < p.GatherersCount(); g++ {
		gath := p.Gatherer(g)
		if gath.Start == gath.End {
			continue
		}
		for i := 0; i < p.ItemsCount(); i++ {
			item := p.Item(i)
			res := SweepPoint(gath.Start, gath.End, item.Pos)
			if res.Within((gath.Width + item.Width) / 2) {
				events = append(events, Event{
					ItemID:     i,
					GathererID: g,
					SqDistance: res.SqDistance,
					Time:       res.Ratio,
				})
			}
		}
		for b := 0; b < p.BaseCount(); b++ {
			base := p.Base(b)
			corners, ok := baseCornersOnWay(base, gath)
			if !ok {
				continue
			}
			best := Event{Time: math.Inf(1)}
			hit := false
			for _, c := range corners {
				res := SweepPoint(gath.Start, gath.End, c)
				if res.Within(gath.Width/2) && res.Ratio < best.Time {
					best = Event{
						ItemID:     b,
						GathererID: g,
						SqDistance: res.SqDistance,
						Time:       res.Ratio,
						IsBase:     true,
					}
					hit = true
				}
			}
			if hit {
				events = append(events, best)
			}
		}
	}

	sort.Slice(events, func(i, j int) bool { return eventLess(events[i], events[j]) })
	return events
}

// eventLess is a strict weak order: time, then squared distance, then ids.
// The id fallback keeps the comparator total under full floating-point ties.
func eventLess(a, b Event) bool {
	if math.Abs(a.Time-b.Time) > tolTime {
		return a.Time < b.Time
	}
	if math.Abs(a.SqDistance-b.SqDistance) > tolDist {
		return a.SqDistance < b.SqDistance
	}
	if a.ItemID != b.ItemID {
		return a.ItemID < b.ItemID
	}
	return a.GathererID < b.GathererID
}

type span struct {
	lo float64
	hi float64
}

func intersectSpans(a, b span) (span, bool) {
	lo := math.Max(a.lo, b.lo)
	hi := math.Min(a.hi, b.hi)
	if hi < lo {
		return span{}, false
	}
	return span{lo: lo, hi: hi}, true
}

func minMax(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

// baseCornersOnWay intersects the base rectangle, inflated by half the base
// width, with the gatherer's bounding rectangle, inflated by half the
// gatherer width. The corners of the overlap are the candidate hit points.
func baseCornersOnWay(base Base, g Gatherer) ([4]geom.Point2D, bool) {
	bh := base.Width / 2
	bxLo, bxHi := minMax(base.Pos.X, base.Pos.X+base.Offset.X)
	byLo, byHi := minMax(base.Pos.Y, base.Pos.Y+base.Offset.Y)
	bx := span{lo: bxLo - bh, hi: bxHi + bh}
	by := span{lo: byLo - bh, hi: byHi + bh}

	gh := g.Width / 2
	gxLo, gxHi := minMax(g.Start.X, g.End.X)
	gyLo, gyHi := minMax(g.Start.Y, g.End.Y)
	gx := span{lo: gxLo - gh, hi: gxHi + gh}
	gy := span{lo: gyLo - gh, hi: gyHi + gh}

	px, ok := intersectSpans(bx, gx)
	if !ok {
		return [4]geom.Point2D{}, false
	}
	py, ok := intersectSpans(by, gy)
	if !ok {
		return [4]geom.Point2D{}, false
	}
	return [4]geom.Point2D{
		{X: px.lo, Y: py.lo},
		{X: px.hi, Y: py.lo},
		{X: px.lo, Y: py.hi},
		{X: px.hi, Y: py.hi},
	}, true
}
