// Package api is the HTTP surface of the platform: the versioned REST API,
// the operational probes, the Prometheus endpoint, the WebSocket event stream
// and the operator debug pages.
package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/emberwatch/fireline/internal/auth"
	"github.com/emberwatch/fireline/internal/bus"
	"github.com/emberwatch/fireline/internal/config"
	"github.com/emberwatch/fireline/internal/dispatch"
	"github.com/emberwatch/fireline/internal/httputil"
	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/risk"
	"github.com/emberwatch/fireline/internal/spread"
	"github.com/emberwatch/fireline/internal/store"
	"github.com/emberwatch/fireline/internal/stream"
	"github.com/emberwatch/fireline/internal/tracks"
	"github.com/emberwatch/fireline/internal/triangulate"
	"github.com/emberwatch/fireline/internal/version"
)

// simCacheSize bounds the in-memory simulation results kept for plotting.
const simCacheSize = 32

// Config wires the server's collaborators.
type Config struct {
	Store        *store.Store
	Bus          *bus.Bus
	Hub          *stream.Hub
	Coordinator  *dispatch.Coordinator
	Correlator   *tracks.Correlator
	Triangulator *triangulate.Engine
	RiskEngine   *risk.Engine
	SpreadEngine *spread.Engine
	Metrics      *monitoring.Metrics
	Auth         *auth.Service
	RateLimiter  *auth.RateLimiter
	Settings     *config.Settings
}

// Server holds the handler state.
type Server struct {
	store        *store.Store
	bus          *bus.Bus
	hub          *stream.Hub
	coordinator  *dispatch.Coordinator
	correlator   *tracks.Correlator
	triangulator *triangulate.Engine
	riskEngine   *risk.Engine
	spreadEngine *spread.Engine
	metrics      *monitoring.Metrics
	auth         *auth.Service
	limiter      *auth.RateLimiter
	settings     *config.Settings

	simMu    sync.Mutex
	sims     map[string]storedSimulation
	simOrder []string
}

// storedSimulation keeps enough of a finished run to render plots later.
type storedSimulation struct {
	result   *spread.Result
	ignition []spread.Point
}

// NewServer builds the API server around its collaborators.
func NewServer(cfg Config) *Server {
	return &Server{
		store:        cfg.Store,
		bus:          cfg.Bus,
		hub:          cfg.Hub,
		coordinator:  cfg.Coordinator,
		correlator:   cfg.Correlator,
		triangulator: cfg.Triangulator,
		riskEngine:   cfg.RiskEngine,
		spreadEngine: cfg.SpreadEngine,
		metrics:      cfg.Metrics,
		auth:         cfg.Auth,
		limiter:      cfg.RateLimiter,
		settings:     cfg.Settings,
		sims:         make(map[string]storedSimulation),
	}
}

// Router assembles the full route tree and middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.settings.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.instrument)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	if s.auth != nil {
		r.Use(s.auth.Middleware)
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/readiness", s.handleReadiness)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/ws/events", s.hub.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/telemetry", s.handleCreateTelemetry)
		r.Get("/telemetry", s.handleListTelemetry)
		r.Get("/telemetry/devices", s.handleTelemetryDevices)
		r.Get("/telemetry/devices/{device_id}/latest", s.handleLatestTelemetry)
		r.Delete("/telemetry/{id}", s.handleDeleteTelemetry)

		r.Post("/detections", s.handleCreateDetection)
		r.Get("/detections", s.handleListDetections)
		r.Get("/detections/tracks", s.handleListTracks)

		r.Post("/missions", s.handleCreateMission)
		r.Get("/missions", s.handleListMissions)
		r.Patch("/missions/{mission_id}", s.handleUpdateMission)

		r.Post("/triangulation/triangulate", s.handleTriangulate)
		r.Post("/prediction/simulate", s.handleSimulate)
		r.Get("/prediction/simulate/{simulation_id}/plot", s.handleSimulationPlot)

		r.Post("/risk/score", s.handleRiskScore)
		r.Post("/risk/train", s.handleRiskTrain)
		r.Get("/risk/cells", s.handleRiskCells)

		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks", s.handleListTasks)

		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts/{id}/ack", s.handleAcknowledgeAlert)

		r.Get("/admin/settings", s.handleAdminSettings)
		r.Post("/admin/require_confirm", s.handleRequireConfirm)

		r.Post("/reports/situation", s.handleSituationReport)

		r.Get("/twin/tracks", s.handleTwinTracks)
		r.Get("/twin/missions", s.handleTwinMissions)
		r.Get("/twin/tasks", s.handleTwinTasks)
	})

	debugMux := http.NewServeMux()
	if err := s.store.AttachAdminRoutes(debugMux); err != nil {
		monitoring.Logf("api: attach admin routes: %v", err)
	}
	debugMux.HandleFunc("/debug/spread/grid", s.handleSpreadGridDebug)
	r.Handle("/debug", debugMux)
	r.Handle("/debug/*", debugMux)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"message": "Fireline API Gateway",
		"version": version.Version,
		"status":  "operational",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{"status": "healthy"})
}

// handleReadiness pings the store and checks the bus is accepting
// subscriptions before reporting ready.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ready(); err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	id, _ := s.bus.Subscribe("readiness")
	s.bus.Unsubscribe("readiness", id)
	httputil.WriteJSONOK(w, map[string]any{"status": "ready"})
}

// writeError maps domain errors to the shared error payload.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, store.ErrDuplicateMission), errors.Is(err, store.ErrDuplicateTask):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, dispatch.ErrValidation),
		errors.Is(err, triangulate.ErrInsufficientObservations),
		errors.Is(err, risk.ErrInsufficientSamples):
		httputil.UnprocessableEntity(w, err.Error())
	default:
		monitoring.Logf("api: internal error: %v", err)
		httputil.InternalServerError(w, "Internal server error")
	}
}

// rememberSimulation caches a finished run for the plot and debug endpoints,
// evicting the oldest entry past the cap.
func (s *Server) rememberSimulation(result *spread.Result, ignition []spread.Point) {
	s.simMu.Lock()
	defer s.simMu.Unlock()
	s.sims[result.SimulationID] = storedSimulation{result: result, ignition: ignition}
	s.simOrder = append(s.simOrder, result.SimulationID)
	if len(s.simOrder) > simCacheSize {
		delete(s.sims, s.simOrder[0])
		s.simOrder = s.simOrder[1:]
	}
}

func (s *Server) simulation(id string) (storedSimulation, bool) {
	s.simMu.Lock()
	defer s.simMu.Unlock()
	sim, ok := s.sims[id]
	return sim, ok
}

func (s *Server) latestSimulation() (storedSimulation, bool) {
	s.simMu.Lock()
	defer s.simMu.Unlock()
	if len(s.simOrder) == 0 {
		return storedSimulation{}, false
	}
	sim, ok := s.sims[s.simOrder[len(s.simOrder)-1]]
	return sim, ok
}
