package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	persistlog "lostfound.gg/internal/persistence/log"
	"lostfound.gg/internal/persistence/records"
	"lostfound.gg/internal/persistence/snapshot"
	"lostfound.gg/internal/sim/tuning"
	"lostfound.gg/internal/sim/world"
	"lostfound.gg/internal/transport/observer"
	"lostfound.gg/internal/transport/rest"
)

type options struct {
	configFile   string
	wwwRoot      string
	tickPeriodMs int
	randomSpawn  bool
	stateFile    string
	savePeriodMs int
	tuningFile   string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configFile, "config-file", "", "path to the game config JSON (required)")
	flag.StringVar(&o.configFile, "c", "", "shorthand for -config-file")
	flag.StringVar(&o.wwwRoot, "www-root", "", "directory with the static frontend (required)")
	flag.StringVar(&o.wwwRoot, "w", "", "shorthand for -www-root")
	flag.IntVar(&o.tickPeriodMs, "tick-period", 0, "tick period in ms; 0 enables the manual /game/tick endpoint")
	flag.IntVar(&o.tickPeriodMs, "t", 0, "shorthand for -tick-period")
	flag.BoolVar(&o.randomSpawn, "randomize-spawn-points", false, "spawn dogs at random road positions")
	flag.StringVar(&o.stateFile, "state-file", "", "snapshot file to restore on start and save on exit")
	flag.StringVar(&o.stateFile, "s", "", "shorthand for -state-file")
	flag.IntVar(&o.savePeriodMs, "save-state-period", 0, "periodic snapshot save interval in ms; 0 uses the tuning snapshot period (none by default: save only on shutdown)")
	flag.IntVar(&o.savePeriodMs, "p", 0, "shorthand for -save-state-period")
	flag.StringVar(&o.tuningFile, "tuning-file", "", "optional YAML operations overlay")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if o.configFile == "" || o.wwwRoot == "" {
		fmt.Fprintln(os.Stderr, "both -config-file and -www-root are required")
		flag.Usage()
		os.Exit(1)
	}
	if err := run(o, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(o options, logger *log.Logger) error {
	tune, err := tuning.Load(o.tuningFile)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	cfg, err := world.LoadGameConfig(o.configFile)
	if err != nil {
		return fmt.Errorf("load game config: %w", err)
	}

	dbURL := os.Getenv("GAME_DB_URL")
	if dbURL == "" {
		return fmt.Errorf("GAME_DB_URL must point at the records database")
	}
	store, err := records.Open(dbURL)
	if err != nil {
		return fmt.Errorf("open records store: %w", err)
	}
	defer store.Close()

	var events *persistlog.EventLogger
	if tune.Events.Dir != "" {
		events = persistlog.NewEventLogger(tune.Events.Dir, func(err error) {
			logger.Printf("event log write failed: %v", err)
		})
		defer events.Close()
	}

	app := world.NewApplication(world.AppConfig{
		Game:        cfg,
		RandomSpawn: o.randomSpawn,
		Records:     store,
		Events:      eventSink(events),
	})

	if o.stateFile != "" {
		snap, found, err := snapshot.Read(o.stateFile)
		if err != nil {
			return fmt.Errorf("read state file: %w", err)
		}
		if found {
			if err := app.Restore(snap); err != nil {
				return fmt.Errorf("restore state: %w", err)
			}
			logger.Printf("state restored from %s", o.stateFile)
		}
	}

	var obs *observer.Server
	if tune.Observer.Enabled {
		obs = observer.NewServer(logger, tune.Observer.AllowRemote, tune.Observer.QueueSize)
		app.SetStatePublisher(obs)
	}

	savePeriodMs := o.savePeriodMs
	if savePeriodMs == 0 {
		savePeriodMs = tune.Snapshot.SavePeriodMs
	}
	var saver *world.SnapshotListener
	if o.stateFile != "" {
		period := time.Duration(savePeriodMs) * time.Millisecond
		saver = world.NewSnapshotListener(app, o.stateFile, period, logger)
		if savePeriodMs > 0 {
			app.SetListener(saver)
		}
	}

	loop := world.NewLoop(app, time.Duration(o.tickPeriodMs)*time.Millisecond, logger)
	if loop.ManualTick() {
		logger.Printf("manual ticking enabled via /api/v1/game/tick")
	}

	ctx, cancel := signalContext()
	defer cancel()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	mux := http.NewServeMux()
	mux.Handle("/", rest.NewServer(loop, o.wwwRoot, logger))
	if obs != nil {
		mux.HandleFunc("/ws/observer", obs.Handler())
	}

	srv := &http.Server{
		Addr:              tune.HTTP.Addr,
		Handler:           mux,
		ReadTimeout:       time.Duration(tune.HTTP.ReadTimeoutMs) * time.Millisecond,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(),
			time.Duration(tune.HTTP.ShutdownTimeoutMs)*time.Millisecond)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", tune.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stopLoop()
		<-loopDone
		return fmt.Errorf("http server: %w", err)
	}

	stopLoop()
	if err := <-loopDone; err != nil && err != context.Canceled {
		logger.Printf("game loop stopped: %v", err)
	}

	// The loop is down, so the world is quiescent and safe to save directly.
	if saver != nil {
		if err := saver.Save(); err != nil {
			return fmt.Errorf("final state save: %w", err)
		}
		logger.Printf("state saved to %s", o.stateFile)
	}
	return nil
}

// eventSink keeps a typed nil logger from sneaking into the interface.
func eventSink(l *persistlog.EventLogger) world.EventSink {
	if l == nil {
		return nil
	}
	return l
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
