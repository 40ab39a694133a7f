// Command fireline runs the wildfire operations gateway: the REST API, the
// WebSocket event stream, the detection pipeline and the analytic engines,
// all over a single SQLite store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/emberwatch/fireline/internal/api"
	"github.com/emberwatch/fireline/internal/auth"
	"github.com/emberwatch/fireline/internal/bus"
	"github.com/emberwatch/fireline/internal/config"
	"github.com/emberwatch/fireline/internal/dispatch"
	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/mqtt"
	"github.com/emberwatch/fireline/internal/risk"
	"github.com/emberwatch/fireline/internal/security"
	"github.com/emberwatch/fireline/internal/spread"
	"github.com/emberwatch/fireline/internal/store"
	"github.com/emberwatch/fireline/internal/stream"
	"github.com/emberwatch/fireline/internal/tracks"
	"github.com/emberwatch/fireline/internal/triangulate"
	"github.com/emberwatch/fireline/internal/version"
)

const shutdownTimeout = 5 * time.Second

var (
	dbPath      = flag.String("db", "", "Path to the sqlite database (overrides DATABASE_URL)")
	listen      = flag.String("listen", "", "Listen address (overrides API_GATEWAY_HOST/PORT)")
	tuningPath  = flag.String("config", "", "Path to an optional JSON engine tuning file")
	devMode     = flag.Bool("dev", false, "Allow unauthenticated API access for local development")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadTuning resolves the -config flag. The file must sit inside the working
// directory; every omitted knob keeps its built-in default.
func loadTuning() *config.TuningConfig {
	if *tuningPath == "" {
		return config.EmptyTuningConfig()
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to resolve working directory: %v", err)
	}
	if err := security.ValidatePathWithinDirectory(*tuningPath, cwd); err != nil {
		log.Fatalf("Rejecting tuning config path: %v", err)
	}
	tuning, err := config.LoadTuningConfig(*tuningPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	log.Printf("Loaded engine tuning from %s", *tuningPath)
	return tuning
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	settings := config.FromEnv()
	if *dbPath != "" {
		settings.DatabaseURL = *dbPath
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	monitoring.SetDebug(settings.DebugLogging())
	tuning := loadTuning()

	// Subcommands run before any long-lived component starts.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		store.RunMigrateCommand(args[1:], settings.DatabaseURL)
		return
	}

	st, err := store.Open(settings.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	metrics := monitoring.NewMetrics()

	eventBus := bus.New(
		bus.WithBuffer(tuning.GetBusBufferSize()),
		bus.WithDropHandler(func(topic, subscriberID string, event any) {
			metrics.BusDropped.WithLabelValues(topic).Inc()
		}),
	)
	defer eventBus.Close()

	hub := stream.NewHub(
		stream.WithHeartbeatInterval(tuning.GetStreamHeartbeat()),
		stream.WithCountChange(func(n int) {
			metrics.StreamClients.Set(float64(n))
		}),
	)

	correlator := tracks.NewCorrelator(tracks.WithHistoryLimit(tuning.GetTrackHistoryLimit()))

	mirror, err := mqtt.NewMirror(settings.MQTTBroker, settings.MQTTPort,
		settings.MQTTUsername, settings.MQTTPassword, settings.MissionsTopic)
	if err != nil {
		// A down broker must not keep the gateway from serving.
		log.Printf("MQTT mirror unavailable, missions will not be mirrored: %v", err)
		mirror = nil
	}
	defer mirror.Close()

	coordinator := dispatch.NewCoordinator(dispatch.Config{
		Store:                st,
		Bus:                  eventBus,
		Hub:                  hub,
		Mirror:               mirror,
		Correlator:           correlator,
		Metrics:              metrics,
		RequireConfirm:       settings.RequireConfirm,
		AutoMissionThreshold: tuning.GetDetectionConfidenceThreshold(),
		AutoMissionRadius:    tuning.GetAutoMissionRadiusMeters(),
		ActivateDelay:        tuning.GetMissionActivateDelay(),
		CompleteDelay:        tuning.GetMissionCompleteDelay(),
	})

	authService := auth.NewService(auth.Config{
		Secret:   settings.SecretKey,
		TokenTTL: time.Duration(settings.TokenExpireMinutes) * time.Minute,
		DevMode:  *devMode,
	})

	triangulator := triangulate.NewEngine(
		triangulate.WithMinConfidence(tuning.GetMinObservationConfidence()),
		triangulate.WithMaxIntersectionGap(tuning.GetMaxIntersectionGapMeters()),
		triangulate.WithBearingTolerance(tuning.GetRansacBearingToleranceDegrees()),
	)

	server := api.NewServer(api.Config{
		Store:        st,
		Bus:          eventBus,
		Hub:          hub,
		Coordinator:  coordinator,
		Correlator:   correlator,
		Triangulator: triangulator,
		RiskEngine:   risk.NewEngine(),
		SpreadEngine: spread.NewEngine(spread.WithWorkers(tuning.GetSpreadWorkers())),
		Metrics:      metrics,
		Auth:         authService,
		RateLimiter:  auth.NewRateLimiter(tuning.GetRateLimitPerMinute(), 60),
		Settings:     settings,
	})

	addr := settings.Addr()
	if *listen != "" {
		addr = *listen
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator.Start(ctx)

	// Heartbeat loop for connected stream clients.
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
		log.Print("stream heartbeat routine terminated")
	}()

	// HTTP server goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpServer := &http.Server{
			Addr:    addr,
			Handler: server.Router(),
		}

		go func() {
			log.Printf("%s listening on %s", version.String(), addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
				// Without a listener the process has no purpose; trigger the
				// same shutdown path as a signal.
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()

	// Let any in-flight mission lifecycle goroutines observe the cancelled
	// context before the store closes underneath them.
	coordinator.Wait()

	log.Print("Graceful shutdown complete")
}
