// Package dispatch is the operational heart of the platform: it turns
// validated detections into persisted records, correlated tracks, bus events,
// live broadcasts and — above the confidence threshold — automatic response
// missions with a timed lifecycle.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emberwatch/fireline/internal/bus"
	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/store"
	"github.com/emberwatch/fireline/internal/timeutil"
	"github.com/emberwatch/fireline/internal/tracks"
)

// Lifecycle schedule for newly created missions.
const (
	pendingToActiveDelay    = 5 * time.Second
	activeToCompletedDelay  = 10 * time.Second
	autoMissionThreshold    = 0.7
	autoMissionRadiusMeters = 200.0
)

// ErrValidation marks request payloads the coordinator refuses to process.
// API handlers map it to a 422.
var ErrValidation = errors.New("validation failed")

// Broadcaster pushes events to live stream subscribers.
type Broadcaster interface {
	Broadcast(event any)
}

// MissionPublisher mirrors mission payloads to an external broker.
type MissionPublisher interface {
	PublishMission(v any) error
}

// Config wires the coordinator's collaborators. Store, Bus, Hub and
// Correlator are required; Mirror and Metrics may be nil.
type Config struct {
	Store      *store.Store
	Bus        *bus.Bus
	Hub        Broadcaster
	Mirror     MissionPublisher
	Correlator *tracks.Correlator
	Clock      timeutil.Clock
	Metrics    *monitoring.Metrics

	// RequireConfirm holds auto-created missions in a proposed state until
	// an operator confirms them.
	RequireConfirm bool

	// Tuning knobs. Zero values fall back to the package defaults.
	AutoMissionThreshold float64
	AutoMissionRadius    float64
	ActivateDelay        time.Duration
	CompleteDelay        time.Duration
}

// Coordinator runs the detection hot path and the mission state machine.
type Coordinator struct {
	store      *store.Store
	bus        *bus.Bus
	hub        Broadcaster
	mirror     MissionPublisher
	correlator *tracks.Correlator
	clock      timeutil.Clock
	metrics    *monitoring.Metrics

	autoThreshold float64
	autoRadius    float64
	activateDelay time.Duration
	completeDelay time.Duration

	mu             sync.Mutex
	requireConfirm bool

	ctx context.Context
	wg  sync.WaitGroup
}

// NewCoordinator builds a coordinator. Call Start before handling requests.
func NewCoordinator(cfg Config) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	c := &Coordinator{
		store:          cfg.Store,
		bus:            cfg.Bus,
		hub:            cfg.Hub,
		mirror:         cfg.Mirror,
		correlator:     cfg.Correlator,
		clock:          clock,
		metrics:        cfg.Metrics,
		autoThreshold:  cfg.AutoMissionThreshold,
		autoRadius:     cfg.AutoMissionRadius,
		activateDelay:  cfg.ActivateDelay,
		completeDelay:  cfg.CompleteDelay,
		requireConfirm: cfg.RequireConfirm,
		ctx:            context.Background(),
	}
	if c.autoThreshold == 0 {
		c.autoThreshold = autoMissionThreshold
	}
	if c.autoRadius == 0 {
		c.autoRadius = autoMissionRadiusMeters
	}
	if c.activateDelay == 0 {
		c.activateDelay = pendingToActiveDelay
	}
	if c.completeDelay == 0 {
		c.completeDelay = activeToCompletedDelay
	}
	return c
}

// Start binds lifecycle goroutines to the process context. Timers observe
// ctx and stop firing once it is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx = ctx
}

// Wait blocks until all in-flight lifecycle goroutines have exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// RequireConfirm reports whether auto missions are held for confirmation.
func (c *Coordinator) RequireConfirm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requireConfirm
}

// SetRequireConfirm flips the confirmation gate at runtime.
func (c *Coordinator) SetRequireConfirm(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requireConfirm = v
}

// publishBus publishes on the internal bus, counting and logging failures
// instead of propagating them: everything after persistence is best-effort.
func (c *Coordinator) publishBus(topic string, event any) {
	if err := c.bus.Publish(topic, event); err != nil {
		monitoring.Logf("dispatch: bus publish on %s failed: %v", topic, err)
		return
	}
	if c.metrics != nil {
		c.metrics.BusPublished.WithLabelValues(topic).Inc()
	}
}

// mirrorMission forwards a mission view to the MQTT mirror when configured.
func (c *Coordinator) mirrorMission(view MissionView) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.PublishMission(view); err != nil {
		monitoring.Logf("dispatch: mqtt mirror publish failed: %v", err)
	}
}
