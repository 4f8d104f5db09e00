package world

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"lostfound.gg/internal/sim/geom"
)

var ErrDuplicateOffice = errors.New("duplicate office id")

// Building is decorative; it never affects movement or collisions.
type Building struct {
	X int
	Y int
	W int
	H int
}

// Office is a deposit base where a dog's bag converts to score.
type Office struct {
	ID      string
	Pos     geom.Point
	OffsetX int
	OffsetY int
}

// Map is the static description of one playable map. It is immutable after
// configuration load; sessions reference it, never copy it.
type Map struct {
	ID   string
	Name string

	DogSpeed    float64
	BagCapacity int

	Roads     []Road
	Buildings []Building
	Offices   []Office

	// LootValues is the score table indexed by loot type.
	LootValues []int
}

// AddOffice appends an office, rejecting duplicate ids.
func (m *Map) AddOffice(o Office) error {
	for _, have := range m.Offices {
		if have.ID == o.ID {
			return fmt.Errorf("%w: %q", ErrDuplicateOffice, o.ID)
		}
	}
	m.Offices = append(m.Offices, o)
	return nil
}

// FirstRoadStart is the deterministic spawn point: the integer start of the
// first road.
func (m *Map) FirstRoadStart() geom.Point2D {
	return m.Roads[0].Start.ToPoint2D()
}

// RandomRoadCoord picks a road uniformly, then a uniform coordinate on it.
func (m *Map) RandomRoadCoord(rng *rand.Rand) geom.Point2D {
	idx := int(math.Round(rng.Float64() * float64(len(m.Roads)-1)))
	return m.Roads[idx].RandomCoord(rng.Float64(), rng.Float64())
}

// RoadAt returns the index of the first road containing c.
func (m *Map) RoadAt(c geom.Point2D) (int, bool) {
	for i := range m.Roads {
		if m.Roads[i].Contains(c) {
			return i, true
		}
	}
	return 0, false
}

// AnotherRoadAt returns the first road containing c whose index is not in
// exclude. Used during handover to avoid bouncing back onto visited roads.
func (m *Map) AnotherRoadAt(c geom.Point2D, exclude []int) (int, bool) {
	for i := range m.Roads {
		if containsIndex(exclude, i) {
			continue
		}
		if m.Roads[i].Contains(c) {
			return i, true
		}
	}
	return 0, false
}

func containsIndex(list []int, idx int) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}
