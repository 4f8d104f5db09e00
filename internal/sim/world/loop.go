package world

import (
	"context"
	"log"
	"time"
)

// Loop owns the application state: every command and every tick runs on the
// single Run goroutine, so handlers always observe a pre-tick or post-tick
// world, never a torn one.
type Loop struct {
	app    *Application
	cmds   chan func()
	logger *log.Logger

	// tickPeriod of zero disables automatic ticking; the manual tick
	// endpoint drives time instead.
	tickPeriod time.Duration

	lastTick time.Time
}

func NewLoop(app *Application, tickPeriod time.Duration, logger *log.Logger) *Loop {
	return &Loop{
		app:        app,
		cmds:       make(chan func(), 256),
		logger:     logger,
		tickPeriod: tickPeriod,
	}
}

// ManualTick reports whether the tick endpoint drives the clock.
func (l *Loop) ManualTick() bool { return l.tickPeriod == 0 }

// Run serves commands until ctx is cancelled. With a tick period set, ticks
// interleave with commands on the same goroutine.
func (l *Loop) Run(ctx context.Context) error {
	var tickC <-chan time.Time
	if l.tickPeriod > 0 {
		ticker := time.NewTicker(l.tickPeriod)
		defer ticker.Stop()
		tickC = ticker.C
		l.lastTick = time.Now()
	}
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case fn := <-l.cmds:
			fn()
		case now := <-tickC:
			dt := now.Sub(l.lastTick)
			l.lastTick = now
			if err := l.app.Tick(dt); err != nil {
				l.logger.Printf("tick failed: %v", err)
				return err
			}
		}
	}
}

// drain runs the commands already queued at shutdown so their reply
// channels unblock.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.cmds:
			fn()
		default:
			return
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func(*Application)) error {
	done := make(chan struct{})
	select {
	case l.cmds <- func() {
		defer close(done)
		fn(l.app)
	}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick advances time manually. Only meaningful when ManualTick is true.
func (l *Loop) Tick(ctx context.Context, dt time.Duration) error {
	var err error
	doErr := l.Do(ctx, func(a *Application) {
		err = a.Tick(dt)
	})
	if doErr != nil {
		return doErr
	}
	return err
}
