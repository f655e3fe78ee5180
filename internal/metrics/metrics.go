// Package metrics owns the Prometheus registry and the collectors the
// HTTP layer records into.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recoverypulse"

type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	checkIns      *prometheus.CounterVec
	scores        prometheus.Histogram
	gateResults   *prometheus.CounterVec
	billingOps    *prometheus.CounterVec
	snapshotRuns  *prometheus.CounterVec
	wsConnections prometheus.Gauge
}

// New creates a registry with Go runtime, process and application collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "path"}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkins",
			Name:      "submitted_total",
			Help:      "Check-in submissions by result.",
		}, []string{"result"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkins",
			Name:      "recovery_score",
			Help:      "Distribution of saved recovery scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		gateResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "gate_evaluations_total",
			Help:      "Access gate evaluations by outcome.",
		}, []string{"outcome"}),
		billingOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "operations_total",
			Help:      "Billing operations by kind and result.",
		}, []string{"operation", "result"}),
		snapshotRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "runs_total",
			Help:      "Database snapshots by result.",
		}, []string{"result"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Open live-update connections.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.checkIns,
		m.scores,
		m.gateResults,
		m.billingOps,
		m.snapshotRuns,
		m.wsConnections,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records request count, latency and in-flight requests. The
// path label is the matched route pattern when the mux set one.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routeLabel(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// CheckInSaved records a successful submit or edit and its score.
func (m *Metrics) CheckInSaved(score int) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues("saved").Inc()
	m.scores.Observe(float64(score))
}

func (m *Metrics) CheckInFailed() {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues("failed").Inc()
}

// GateEvaluated records one access decision. outcome is one of "pro",
// "trial", "grace" or "locked".
func (m *Metrics) GateEvaluated(outcome string) {
	if m == nil {
		return
	}
	m.gateResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BillingOperation(op string, ok bool) {
	if m == nil {
		return
	}
	m.billingOps.WithLabelValues(op, result(ok)).Inc()
}

func (m *Metrics) SnapshotTaken(ok bool) {
	if m == nil {
		return
	}
	m.snapshotRuns.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) WebSocketConnected() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WebSocketDisconnected() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		// Patterns look like "GET /api/checkins/{id}"; the method is its own label.
		if _, p, ok := strings.Cut(r.Pattern, " "); ok {
			return p
		}
		return r.Pattern
	}
	return "unmatched"
}
