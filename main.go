package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/stride-data/waypoint/internal/api"
	"github.com/stride-data/waypoint/internal/config"
	"github.com/stride-data/waypoint/internal/haptic"
	"github.com/stride-data/waypoint/internal/monitor"
	"github.com/stride-data/waypoint/internal/monitoring"
	"github.com/stride-data/waypoint/internal/pattern"
	"github.com/stride-data/waypoint/internal/routing"
	"github.com/stride-data/waypoint/internal/session"
	"github.com/stride-data/waypoint/internal/tracker"
	"github.com/stride-data/waypoint/internal/tripdb"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode with a simulated feedback device")
	listen        = flag.String("listen", ":8080", "Listen address")
	serialPort    = flag.String("serial", "/dev/ttyHAP0", "Serial port of the haptic device")
	dbFile        = flag.String("db", "waypoint.db", "Trip database path")
	migrationsDir = flag.String("migrations", "internal/tripdb/migrations", "Trip database migrations directory (empty to skip)")
	osrmURL       = flag.String("osrm", "https://router.project-osrm.org", "OSRM routing service base URL")
	configPath    = flag.String("config", "", "Tuning config path (empty to search default locations)")
)

// consoleFallback is the host-side fallback delegate: when haptic playback
// is unavailable it surfaces the cue on the terminal the way a UI layer
// would surface a chime and a banner.
type consoleFallback struct{}

func (consoleFallback) PlayAudioFallback(p pattern.Pattern) {
	log.Printf("AUDIO cue: %s (%.0f Hz)", p.Description, p.AudioFreqHz)
}

func (consoleFallback) ShowVisualFallback(p pattern.Pattern) {
	log.Printf("VISUAL cue: %s", p.Description)
}

// engineSink adapts the haptic engine to the tracker: warming up for haptic
// guidance enables hardware playback, cancelling playback disables it, so
// the engine's enabled flag follows the session mode.
type engineSink struct {
	*haptic.Engine
}

func (s engineSink) EnsureReady() error {
	s.SetHapticEnabled(true)
	return s.Engine.EnsureReady()
}

func (s engineSink) StopAll() error {
	s.SetHapticEnabled(false)
	return s.Engine.StopAll()
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var cfg *config.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}

	var factory haptic.ActuatorFactory
	if *devMode {
		factory = haptic.NewTestableFactory()
		log.Print("dev mode: using simulated feedback device")
	} else {
		factory = haptic.NewSerialFactory(*serialPort, haptic.PortOptions{
			BaudRate: cfg.GetBaudRate(),
			Parity:   cfg.GetParity(),
		})
	}

	engine := haptic.NewEngine(factory, consoleFallback{}, haptic.Config{
		FailureThreshold: cfg.GetFailureThreshold(),
		CooldownWindow:   cfg.GetCooldownWindow(),
	})
	engine.SetOnDegraded(func() {
		log.Print("haptic output degraded permanently; audio/visual fallback is now the default")
	})
	defer engine.Close()

	if engine.IsCapable() {
		if err := engine.Initialize(); err != nil {
			log.Printf("feedback device not ready at startup, will retry on demand: %v", err)
		}
	} else {
		log.Print("no feedback device present, guidance cues will use fallback channels")
	}

	tr := tracker.New(engineSink{engine}, tracker.Config{
		StepProximityM: cfg.GetStepProximityM(),
		ArrivalM:       cfg.GetArrivalM(),
		PreAlertM:      cfg.GetPreAlertM(),
		MaxAccuracyM:   cfg.GetMaxAccuracyM(),
		MaxSampleAge:   cfg.GetMaxSampleAge(),
	})
	perf := monitoring.NewPerfRecorder("cue-playback")
	tr.SetPerfRecorder(perf)

	db, err := tripdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if *migrationsDir != "" {
		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to migrate trip database: %v", err)
		}
	}

	planner := routing.NewOSRMPlanner(*osrmURL)
	ctl := session.NewController(tr, planner, cfg.GetRouteTimeout())
	apiServer := api.NewServer(ctl, db)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// forward queued guidance cues to the feedback engine in route order
	wg.Add(1)
	go func() {
		defer wg.Done()
		tr.RunCueDispatcher(ctx)
		log.Print("cue dispatcher terminated")
	}()

	// record every delivered cue against the open trip
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := engine.Subscribe()
		defer engine.Unsubscribe(id)
		for {
			select {
			case ev := <-c:
				tripID := apiServer.CurrentTripID()
				if tripID == "" {
					continue
				}
				if err := db.RecordCue(tripID, ev.Kind.String(), ev.Channel, ev.Detail, ev.At); err != nil {
					log.Printf("error recording cue: %v", err)
				}
			case <-ctx.Done():
				log.Print("cue recorder terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes
		engine.AttachAdminRoutes(mux)
		db.AttachAdminRoutes(mux)
		debug := tsweb.Debugger(mux)
		debug.Handle("cue-latency", "Cue playback latency summary", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(perf.Summary())
		}))

		// trip inspection charts
		monitor.NewWebServer(db).RegisterRoutes(mux)

		// session control API and the position feed
		apiMux := apiServer.ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/ws/", apiMux)

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	log.Printf("waypoint listening on %s", *listen)
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
