package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"lostfound.gg/internal/protocol"
)

var ErrUnknownMap = errors.New("unknown map id")

// RetiredPlayer is the record emitted when an idle dog is evicted.
type RetiredPlayer struct {
	ID        uuid.UUID
	Name      string
	Score     int
	PlayTime  time.Duration
	SessionID int
	DogID     int
}

// PlayerRecord is one leaderboard row as stored.
type PlayerRecord struct {
	Name       string
	Score      int
	PlayTimeMs int64
}

// RecordStore persists retirement results and serves the leaderboard.
type RecordStore interface {
	SaveRetired(RetiredPlayer) error
	Records(start, limit int) ([]PlayerRecord, error)
}

// TickListener is notified after every completed tick.
type TickListener interface {
	OnTick(dt time.Duration)
}

// StatePublisher receives the post-tick state of every map after each tick.
type StatePublisher interface {
	PublishState(mapID string, state protocol.StateResponse)
}

// AppConfig wires an Application together.
type AppConfig struct {
	Game        *GameConfig
	RandomSpawn bool
	// Seed fixes all random sources; zero means seed from the clock.
	Seed    int64
	Records RecordStore
	Events  EventSink
}

// Application composes sessions, the registry and persistence hooks behind
// the operations the transport layer calls. Every method must run on the
// loop goroutine.
type Application struct {
	cfg      *GameConfig
	sessions []*Session
	registry *Registry

	records  RecordStore
	events   EventSink
	listener TickListener
	statePub StatePublisher
}

// NewApplication builds one session per configured map.
func NewApplication(c AppConfig) *Application {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a := &Application{
		cfg:      c.Game,
		registry: NewRegistry(rand.New(rand.NewSource(seed))),
		records:  c.Records,
		events:   c.Events,
	}
	for i, m := range c.Game.Maps {
		rng := rand.New(rand.NewSource(seed + int64(i) + 1))
		gen := NewLootGenerator(c.Game.LootPeriod, c.Game.LootProb, rng.Float64)
		a.sessions = append(a.sessions, NewSession(i, m, gen, rng, c.RandomSpawn))
	}
	return a
}

// SetListener installs the single post-tick listener slot.
func (a *Application) SetListener(l TickListener) { a.listener = l }

// SetStatePublisher installs the observer feed sink.
func (a *Application) SetStatePublisher(p StatePublisher) { a.statePub = p }

// Maps lists id and name of every configured map.
func (a *Application) Maps() []protocol.MapInfo {
	out := make([]protocol.MapInfo, 0, len(a.cfg.Maps))
	for _, m := range a.cfg.Maps {
		out = append(out, protocol.MapInfo{ID: m.ID, Name: m.Name})
	}
	return out
}

// MapDescriptor returns the raw configured JSON of one map.
func (a *Application) MapDescriptor(id string) (json.RawMessage, bool) {
	raw, ok := a.cfg.RawMaps[id]
	return raw, ok
}

func (a *Application) sessionForMap(mapID string) *Session {
	for _, s := range a.sessions {
		if s.Map().ID == mapID {
			return s
		}
	}
	return nil
}

// Join creates a player and dog on the map's session and mints a token.
func (a *Application) Join(name, mapID string) (*Player, error) {
	s := a.sessionForMap(mapID)
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMap, mapID)
	}
	dog := s.AddDog()
	p := a.registry.Add(name, s, dog, "")
	a.record(LogEvent{Type: "join", Map: mapID, Player: p.ID, Dog: dog.ID, Name: name})
	return p, nil
}

// FindPlayer resolves an auth token.
func (a *Application) FindPlayer(token Token) *Player { return a.registry.Find(token) }

// PlayerNames lists the players sharing the session of p, keyed by id.
func (a *Application) PlayerNames(p *Player) map[string]protocol.PlayerName {
	out := make(map[string]protocol.PlayerName)
	for _, tok := range a.registry.SessionTokens(p.Session.ID()) {
		other := a.registry.Find(tok)
		out[strconv.Itoa(other.ID)] = protocol.PlayerName{Name: other.Name}
	}
	return out
}

// State shapes the session of p for the wire.
func (a *Application) State(p *Player) protocol.StateResponse {
	return a.sessionState(p.Session)
}

func (a *Application) sessionState(s *Session) protocol.StateResponse {
	resp := protocol.StateResponse{
		Players:     make(map[string]protocol.PlayerState),
		LostObjects: make(map[string]protocol.LostObjectState),
	}
	for _, tok := range a.registry.SessionTokens(s.ID()) {
		pl := a.registry.Find(tok)
		d := pl.Dog
		bag := make([]protocol.BagSlot, 0, len(d.Bag.Items))
		for _, it := range d.Bag.Items {
			bag = append(bag, protocol.BagSlot{ID: it.ID, Type: it.Type})
		}
		resp.Players[strconv.Itoa(pl.ID)] = protocol.PlayerState{
			Pos:   [2]float64{d.Pos.X, d.Pos.Y},
			Speed: [2]float64{d.Vel.X, d.Vel.Y},
			Dir:   d.Dir,
			Bag:   bag,
			Score: d.Score,
		}
	}
	for _, id := range s.ItemIDs() {
		obj := s.Item(id)
		resp.LostObjects[strconv.Itoa(id)] = protocol.LostObjectState{
			Type: obj.Type,
			Pos:  [2]float64{obj.Pos.X, obj.Pos.Y},
		}
	}
	return resp
}

// Move applies an action move to the player's dog.
func (a *Application) Move(p *Player, move string) {
	p.Session.MoveDog(p.Dog.ID, move)
	a.record(LogEvent{Type: "action", Map: p.Session.Map().ID, Player: p.ID, Dog: p.Dog.ID, Move: move})
}

// Records reads a leaderboard page from the store.
func (a *Application) Records(start, limit int) ([]PlayerRecord, error) {
	if a.records == nil {
		return nil, nil
	}
	return a.records.Records(start, limit)
}

// Tick advances every session by dt, retires idle players, then fires the
// listener and the observer feed.
func (a *Application) Tick(dt time.Duration) error {
	for _, s := range a.sessions {
		for _, ev := range s.Update(dt) {
			le := LogEvent{Map: s.Map().ID, Dog: ev.DogID}
			if ev.IsBase {
				le.Type = "handover"
				le.Office = ev.Office
				le.Score = ev.Score
			} else {
				le.Type = "gather"
				le.Item = ev.ItemID
			}
			a.record(le)
		}
	}

	if err := a.retireIdle(dt); err != nil {
		return err
	}

	if a.listener != nil {
		a.listener.OnTick(dt)
	}
	if a.statePub != nil {
		for _, s := range a.sessions {
			a.statePub.PublishState(s.Map().ID, a.sessionState(s))
		}
	}
	return nil
}

// retireIdle accumulates idle time on stationary dogs and evicts the ones
// past the retirement threshold, appending one record each.
func (a *Application) retireIdle(dt time.Duration) error {
	type retiring struct {
		token Token
		info  RetiredPlayer
	}
	var queued []retiring

	for _, sid := range a.registry.SessionIDs() {
		for _, tok := range a.registry.SessionTokens(sid) {
			p := a.registry.Find(tok)
			d := p.Dog
			if !d.Vel.IsZero() {
				continue
			}
			d.InactiveFor += dt
			if d.InactiveFor <= a.cfg.RetirementTime {
				continue
			}
			queued = append(queued, retiring{
				token: tok,
				info: RetiredPlayer{
					ID:        uuid.New(),
					Name:      p.Name,
					Score:     d.Score,
					PlayTime:  d.LifeTime,
					SessionID: sid,
					DogID:     d.ID,
				},
			})
		}
	}

	for _, r := range queued {
		p := a.registry.Remove(r.token)
		if p == nil {
			continue
		}
		p.Session.RemoveDog(p.Dog.ID)
		a.record(LogEvent{
			Type:   "retire",
			Map:    p.Session.Map().ID,
			Player: p.ID,
			Dog:    p.Dog.ID,
			Name:   p.Name,
			Score:  r.info.Score,
		})
		if a.records != nil {
			if err := a.records.SaveRetired(r.info); err != nil {
				return fmt.Errorf("save retired player: %w", err)
			}
		}
	}
	return nil
}

func (a *Application) record(ev LogEvent) {
	if a.events != nil {
		ev.Ts = time.Now().UnixMilli()
		a.events.Record(ev)
	}
}
