package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGaugesReflectCounters(t *testing.T) {
	m := New()
	m.TicksDropped.Add(2)
	m.SetInFlight(true)

	expected := `
# HELP facecam_ticks_dropped_total Ticks skipped because a request was in flight
# TYPE facecam_ticks_dropped_total gauge
facecam_ticks_dropped_total 2
# HELP facecam_request_in_flight Detect request outstanding (0 or 1)
# TYPE facecam_request_in_flight gauge
facecam_request_in_flight 1
`
	if err := testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected),
		"facecam_ticks_dropped_total", "facecam_request_in_flight"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestObserveFacesAndLatency(t *testing.T) {
	m := New()
	m.ObserveFaces(3)
	m.ObserveFaces(1)
	m.ObserveFaces(-4)
	if got := m.FacesTotal.Load(); got != 4 {
		t.Fatalf("FacesTotal = %d, want 4", got)
	}
	if got := m.FacesLast.Load(); got != 0 {
		t.Fatalf("FacesLast = %d, want 0", got)
	}

	m.ObserveRequest(250 * time.Millisecond)
	if got := m.RequestLatencyMs.Load(); got != 250 {
		t.Fatalf("RequestLatencyMs = %d, want 250", got)
	}
	if n := testutil.CollectAndCount(m.latency); n != 1 {
		t.Fatalf("histogram series = %d, want 1", n)
	}
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.SessionsStarted.Add(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "facecam_sessions_started_total 1") {
		t.Fatalf("metrics body missing sessions counter:\n%s", rec.Body.String())
	}
}
