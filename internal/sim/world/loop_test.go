package world

import (
	"context"
	"log"
	"os"
	"testing"
	"time"
)

func TestLoop_ManualTickMode(t *testing.T) {
	a := newTestApp(t, nil)
	l := NewLoop(a, 0, log.New(os.Stdout, "[test] ", 0))
	if !l.ManualTick() {
		t.Fatal("zero tick period must enable manual ticking")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var p *Player
	err := l.Do(ctx, func(app *Application) {
		p, _ = app.Join("ada", "town")
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if p == nil {
		t.Fatal("join on the loop returned no player")
	}

	if err := l.Tick(ctx, time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	var lifeTime time.Duration
	err = l.Do(ctx, func(app *Application) {
		lifeTime = app.FindPlayer(p.Token).Dog.LifeTime
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if lifeTime != time.Second {
		t.Fatalf("life time = %v, want 1s", lifeTime)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
}

func TestLoop_AutomaticTicking(t *testing.T) {
	a := newTestApp(t, nil)
	l := NewLoop(a, 5*time.Millisecond, log.New(os.Stdout, "[test] ", 0))
	if l.ManualTick() {
		t.Fatal("tick period must disable manual ticking")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var p *Player
	if err := l.Do(ctx, func(app *Application) { p, _ = app.Join("ada", "town") }); err != nil {
		t.Fatalf("Do: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		var lifeTime time.Duration
		if err := l.Do(ctx, func(app *Application) {
			if pl := app.FindPlayer(p.Token); pl != nil {
				lifeTime = pl.Dog.LifeTime
			}
		}); err != nil {
			t.Fatalf("Do: %v", err)
		}
		if lifeTime > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("ticker never advanced the world")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}
