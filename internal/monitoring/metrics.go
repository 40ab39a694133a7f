package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the process-wide Prometheus collectors behind a private
// registry so multiple instances (tests, embedded servers) never collide on
// the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StreamClients   prometheus.Gauge
	BusPublished    *prometheus.CounterVec
	BusDropped      *prometheus.CounterVec
	MissionsCreated *prometheus.CounterVec
	SpreadRuns      prometheus.Counter
}

// NewMetrics constructs and registers the fireline collector set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireline_requests_total",
			Help: "HTTP requests served, by method, route and status code",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fireline_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fireline_stream_clients",
			Help: "WebSocket clients currently attached to the event stream",
		}),
		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireline_bus_published_total",
			Help: "Events published on the internal bus, by topic",
		}, []string{"topic"}),
		BusDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireline_bus_dropped_total",
			Help: "Bus events dropped because a subscriber channel was full",
		}, []string{"topic"}),
		MissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fireline_missions_created_total",
			Help: "Missions created, by origin (manual or auto)",
		}, []string{"origin"}),
		SpreadRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fireline_spread_runs_total",
			Help: "Monte Carlo spread simulation runs completed",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.StreamClients,
		m.BusPublished,
		m.BusDropped,
		m.MissionsCreated,
		m.SpreadRuns,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
