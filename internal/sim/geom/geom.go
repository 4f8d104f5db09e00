package geom

// Point is an integer grid coordinate (road endpoints, building corners).
type Point struct {
	X int
	Y int
}

// Point2D is a continuous map coordinate.
type Point2D struct {
	X float64
	Y float64
}

// Vec2D is a velocity or offset in map units.
type Vec2D struct {
	X float64
	Y float64
}

func (v Vec2D) IsZero() bool { return v.X == 0 && v.Y == 0 }

func (p Point2D) Add(v Vec2D) Point2D { return Point2D{X: p.X + v.X, Y: p.Y + v.Y} }

func (p Point) ToPoint2D() Point2D { return Point2D{X: float64(p.X), Y: float64(p.Y)} }
