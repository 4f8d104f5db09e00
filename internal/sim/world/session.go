package world

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"lostfound.gg/internal/sim/collide"
	"lostfound.gg/internal/sim/geom"
)

// GatherEvent is a tick outcome forwarded to the event log: either an item
// moved into a bag or a bag handed over at an office.
type GatherEvent struct {
	DogID  int
	ItemID int
	Office string
	Score  int
	IsBase bool
}

// Session is the runtime world of one map: dogs, loose items, the loot
// generator, and per-dog road bookkeeping. All access happens on the
// application loop goroutine.
type Session struct {
	id int
	m  *Map

	dogs  map[int]*Dog
	items map[int]*LostObject

	nextDogID  int
	nextItemID int

	// dogRoad tracks the road index each dog currently travels on.
	dogRoad map[int]int

	loot        *LootGenerator
	rng         *rand.Rand
	randomSpawn bool
}

// NewSession builds an empty session for m. The generator and rng are owned
// by the session from here on.
func NewSession(id int, m *Map, loot *LootGenerator, rng *rand.Rand, randomSpawn bool) *Session {
	return &Session{
		id:          id,
		m:           m,
		dogs:        make(map[int]*Dog),
		items:       make(map[int]*LostObject),
		dogRoad:     make(map[int]int),
		loot:        loot,
		rng:         rng,
		randomSpawn: randomSpawn,
	}
}

func (s *Session) ID() int   { return s.id }
func (s *Session) Map() *Map { return s.m }

// Dog returns the dog with the given id, or nil.
func (s *Session) Dog(id int) *Dog { return s.dogs[id] }

// DogIDs returns all dog ids in ascending order.
func (s *Session) DogIDs() []int {
	ids := make([]int, 0, len(s.dogs))
	for id := range s.dogs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ItemIDs returns all item ids in ascending order.
func (s *Session) ItemIDs() []int {
	ids := make([]int, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Item returns the lost object with the given id, or nil.
func (s *Session) Item(id int) *LostObject { return s.items[id] }

// AddDog spawns a new dog at the configured spawn point and returns it.
func (s *Session) AddDog() *Dog {
	pos := s.m.FirstRoadStart()
	if s.randomSpawn {
		pos = s.m.RandomRoadCoord(s.rng)
	}
	d := &Dog{
		ID:  s.nextDogID,
		Pos: pos,
		Dir: "U",
		Bag: Bag{Capacity: s.m.BagCapacity},
	}
	s.nextDogID++
	s.dogs[d.ID] = d
	if idx, ok := s.m.RoadAt(d.Pos); ok {
		s.dogRoad[d.ID] = idx
	}
	return d
}

// RestoreDog reinserts a dog preserved across restarts, keeping its id.
func (s *Session) RestoreDog(d *Dog) {
	s.dogs[d.ID] = d
	if d.ID >= s.nextDogID {
		s.nextDogID = d.ID + 1
	}
	if idx, ok := s.m.RoadAt(d.Pos); ok {
		s.dogRoad[d.ID] = idx
	}
}

// RemoveDog drops the dog and its road bookkeeping.
func (s *Session) RemoveDog(id int) {
	delete(s.dogs, id)
	delete(s.dogRoad, id)
}

// RestoreItem reinserts a lost object preserved across restarts.
func (s *Session) RestoreItem(o LostObject) {
	obj := o
	s.items[obj.ID] = &obj
	if obj.ID >= s.nextItemID {
		s.nextItemID = obj.ID + 1
	}
}

// NextItemID exposes the item id counter for persistence.
func (s *Session) NextItemID() int { return s.nextItemID }

// SetNextItemID overrides the item id counter during restore.
func (s *Session) SetNextItemID(n int) {
	if n > s.nextItemID {
		s.nextItemID = n
	}
}

// MoveDog applies an action move to the dog with the given id.
func (s *Session) MoveDog(id int, move string) {
	if d := s.dogs[id]; d != nil {
		d.ApplyMove(move, s.m.DogSpeed)
	}
}

// Update advances the session by dt: move every dog along the roads, resolve
// gather and handover events in time order, then generate loot. Returns the
// resolved events for logging.
func (s *Session) Update(dt time.Duration) []GatherEvent {
	dogIDs := s.DogIDs()
	starts := make([]geom.Point2D, len(dogIDs))
	ends := make([]geom.Point2D, len(dogIDs))
	for i, id := range dogIDs {
		d := s.dogs[id]
		starts[i] = d.Pos
		s.advanceDog(d, dt)
		ends[i] = d.Pos
		d.LifeTime += dt
	}

	itemIDs := s.ItemIDs()
	view := sessionView{s: s, itemIDs: itemIDs, starts: starts, ends: ends}
	events := collide.FindGatherEvents(view)

	var out []GatherEvent
	for _, ev := range events {
		d := s.dogs[dogIDs[ev.GathererID]]
		if ev.IsBase {
			gained := d.Bag.Drain()
			d.Score += gained
			out = append(out, GatherEvent{
				DogID:  d.ID,
				Office: s.m.Offices[ev.ItemID].ID,
				Score:  gained,
				IsBase: true,
			})
			continue
		}
		itemID := itemIDs[ev.ItemID]
		obj := s.items[itemID]
		if obj == nil {
			continue
		}
		if !d.Bag.Add(BagItem{ID: obj.ID, Type: obj.Type, Value: obj.Value}) {
			continue
		}
		delete(s.items, itemID)
		out = append(out, GatherEvent{DogID: d.ID, ItemID: itemID})
	}

	for n := s.loot.Next(dt, len(s.items), len(s.dogs)); n > 0; n-- {
		s.spawnLoot()
	}
	return out
}

// advanceDog walks the dog toward its tentative end point, handing it over
// between roads at boundary crossings. A dog that runs out of roads stops.
func (s *Session) advanceDog(d *Dog, dt time.Duration) {
	if d.Vel.IsZero() {
		return
	}
	end := d.Pos.Add(geom.Vec2D{X: d.Vel.X * dt.Seconds(), Y: d.Vel.Y * dt.Seconds()})

	var visited []int
	for {
		idx, ok := s.dogRoad[d.ID]
		if !ok {
			idx, ok = s.m.RoadAt(d.Pos)
			if !ok {
				d.Vel = geom.Vec2D{}
				return
			}
			s.dogRoad[d.ID] = idx
		}
		road := s.m.Roads[idx]
		if road.Contains(end) {
			d.Pos = end
			return
		}
		d.Pos = road.BoundaryExit(d.Pos, end)
		visited = append(visited, idx)
		next, ok := s.m.AnotherRoadAt(d.Pos, visited)
		if !ok {
			d.Vel = geom.Vec2D{}
			return
		}
		s.dogRoad[d.ID] = next
	}
}

func (s *Session) spawnLoot() *LostObject {
	typeCount := len(s.m.LootValues)
	if typeCount == 0 {
		return nil
	}
	typ := int(math.Round(s.rng.Float64() * float64(typeCount-1)))
	obj := &LostObject{
		ID:    s.nextItemID,
		Type:  typ,
		Value: s.m.LootValues[typ],
		Pos:   s.m.RandomRoadCoord(s.rng),
	}
	s.nextItemID++
	s.items[obj.ID] = obj
	return obj
}

// sessionView adapts one tick's worth of session state to the collision
// detector. Item and gatherer indices map to the sorted id slices.
type sessionView struct {
	s       *Session
	itemIDs []int
	starts  []geom.Point2D
	ends    []geom.Point2D
}

func (v sessionView) ItemsCount() int { return len(v.itemIDs) }

func (v sessionView) Item(idx int) collide.Item {
	obj := v.s.items[v.itemIDs[idx]]
	return collide.Item{Pos: obj.Pos, Width: collide.ItemWidth}
}

func (v sessionView) GatherersCount() int { return len(v.starts) }

func (v sessionView) Gatherer(idx int) collide.Gatherer {
	return collide.Gatherer{Start: v.starts[idx], End: v.ends[idx], Width: collide.DogWidth}
}

func (v sessionView) BaseCount() int { return len(v.s.m.Offices) }

func (v sessionView) Base(idx int) collide.Base {
	o := v.s.m.Offices[idx]
	return collide.Base{
		Pos:    o.Pos.ToPoint2D(),
		Offset: geom.Point2D{X: float64(o.OffsetX), Y: float64(o.OffsetY)},
		Width:  collide.BaseWidth,
	}
}
