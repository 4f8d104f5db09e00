package world

import (
	"fmt"
	"log"
	"time"

	"lostfound.gg/internal/sim/geom"

	"lostfound.gg/internal/persistence/snapshot"
)

// Export captures every session into a versioned snapshot.
func (a *Application) Export() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, SavedAt: time.Now().UnixMilli()},
	}
	for _, s := range a.sessions {
		sv := snapshot.SessionV1{NextItemID: s.NextItemID()}
		for _, tok := range a.registry.SessionTokens(s.ID()) {
			p := a.registry.Find(tok)
			d := p.Dog
			dv := snapshot.DogV1{
				ID:          d.ID,
				Pos:         [2]float64{d.Pos.X, d.Pos.Y},
				Vel:         [2]float64{d.Vel.X, d.Vel.Y},
				Dir:         d.Dir,
				BagCapacity: d.Bag.Capacity,
				Score:       d.Score,
			}
			for _, it := range d.Bag.Items {
				dv.Bag = append(dv.Bag, snapshot.BagItemV1{ID: it.ID, Type: it.Type, Value: it.Value})
			}
			sv.Players = append(sv.Players, snapshot.PlayerV1{
				Name:  p.Name,
				Token: string(p.Token),
				Dog:   dv,
			})
		}
		for _, id := range s.ItemIDs() {
			obj := s.Item(id)
			sv.Items = append(sv.Items, snapshot.LostObjectV1{
				ID:    obj.ID,
				Type:  obj.Type,
				Value: obj.Value,
				Pos:   [2]float64{obj.Pos.X, obj.Pos.Y},
			})
		}
		snap.Sessions = append(snap.Sessions, sv)
	}
	return snap
}

// Restore repopulates sessions and the registry from a snapshot. Session
// order must match the configured map order; player ids are reassigned.
func (a *Application) Restore(snap snapshot.SnapshotV1) error {
	if len(snap.Sessions) > len(a.sessions) {
		return fmt.Errorf("snapshot has %d sessions, config has %d maps", len(snap.Sessions), len(a.sessions))
	}
	for i, sv := range snap.Sessions {
		s := a.sessions[i]
		for _, pv := range sv.Players {
			d := &Dog{
				ID:  pv.Dog.ID,
				Pos: geom.Point2D{X: pv.Dog.Pos[0], Y: pv.Dog.Pos[1]},
				Vel: geom.Vec2D{X: pv.Dog.Vel[0], Y: pv.Dog.Vel[1]},
				Dir: pv.Dog.Dir,
				Bag: Bag{Capacity: pv.Dog.BagCapacity},
			}
			d.Score = pv.Dog.Score
			for _, it := range pv.Dog.Bag {
				d.Bag.Items = append(d.Bag.Items, BagItem{ID: it.ID, Type: it.Type, Value: it.Value})
			}
			s.RestoreDog(d)
			a.registry.Add(pv.Name, s, d, Token(pv.Token))
		}
		for _, iv := range sv.Items {
			s.RestoreItem(LostObject{
				ID:    iv.ID,
				Type:  iv.Type,
				Value: iv.Value,
				Pos:   geom.Point2D{X: iv.Pos[0], Y: iv.Pos[1]},
			})
		}
		s.SetNextItemID(sv.NextItemID)
	}
	return nil
}

// SnapshotListener saves the world every period of accumulated tick time.
type SnapshotListener struct {
	app     *Application
	path    string
	period  time.Duration
	elapsed time.Duration
	logger  *log.Logger
}

func NewSnapshotListener(app *Application, path string, period time.Duration, logger *log.Logger) *SnapshotListener {
	return &SnapshotListener{app: app, path: path, period: period, logger: logger}
}

// OnTick accumulates dt and saves after each full period. The save runs on
// the loop goroutine, so the written state is exactly the post-tick world.
func (l *SnapshotListener) OnTick(dt time.Duration) {
	l.elapsed += dt
	if l.elapsed < l.period {
		return
	}
	l.elapsed = 0
	if err := l.Save(); err != nil {
		l.logger.Printf("snapshot save failed: %v", err)
	}
}

// Save writes the current world state immediately.
func (l *SnapshotListener) Save() error {
	return snapshot.Write(l.path, l.app.Export())
}
