package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.SpreadRuns.Inc()
	a.SpreadRuns.Inc()
	b.SpreadRuns.Inc()

	if got := scrape(t, a, "fireline_spread_runs_total"); got != "fireline_spread_runs_total 2" {
		t.Errorf("instance a: got %q, want counter at 2", got)
	}
	if got := scrape(t, b, "fireline_spread_runs_total"); got != "fireline_spread_runs_total 1" {
		t.Errorf("instance b: got %q, want counter at 1", got)
	}
}

func TestMetrics_HandlerExposesLabels(t *testing.T) {
	m := NewMetrics()
	m.RequestsTotal.WithLabelValues("GET", "/telemetry", "200").Inc()
	m.MissionsCreated.WithLabelValues("auto").Inc()
	m.StreamClients.Set(3)

	body := scrapeAll(t, m)
	for _, want := range []string{
		`fireline_requests_total{method="GET",path="/telemetry",status="200"} 1`,
		`fireline_missions_created_total{origin="auto"} 1`,
		`fireline_stream_clients 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics, metric string) string {
	t.Helper()
	for _, line := range strings.Split(scrapeAll(t, m), "\n") {
		if strings.HasPrefix(line, metric+" ") || line == metric {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func scrapeAll(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("metrics handler returned %d", rec.Code)
	}
	return rec.Body.String()
}
