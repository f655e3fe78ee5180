package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/checkins/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Instrument(mux)

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/checkins/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/checkins/{id}", "404"))
	if got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.CheckInSaved(85)
	m.CheckInSaved(40)
	m.CheckInFailed()
	m.GateEvaluated("grace")
	m.BillingOperation("purchase", false)
	m.SnapshotTaken(true)

	if got := testutil.ToFloat64(m.checkIns.WithLabelValues("saved")); got != 2 {
		t.Errorf("saved = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.checkIns.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.gateResults.WithLabelValues("grace")); got != 1 {
		t.Errorf("grace = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.billingOps.WithLabelValues("purchase", "failure")); got != 1 {
		t.Errorf("purchase failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.snapshotRuns.WithLabelValues("success")); got != 1 {
		t.Errorf("snapshots = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.CheckInSaved(50)
	m.GateEvaluated("locked")
	m.WebSocketConnected()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CheckInSaved(70)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "recoverypulse_checkins_submitted_total") {
		t.Errorf("metrics output missing check-in counter:\n%s", body)
	}
}
