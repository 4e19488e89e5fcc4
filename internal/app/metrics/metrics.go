// Package metrics exposes the Prometheus collectors for the loyalty service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gaius",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gaius",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gaius",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	programsMinted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gaius",
			Subsystem: "loyalty",
			Name:      "programs_minted_total",
			Help:      "Total number of loyalty programs minted.",
		},
	)

	passesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gaius",
			Subsystem: "loyalty",
			Name:      "passes_total",
			Help:      "Total number of pass operations.",
		},
		[]string{"op"},
	)

	xpAwards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gaius",
			Subsystem: "xp",
			Name:      "awards_total",
			Help:      "Total number of XP award transactions submitted.",
		},
	)

	xpPoints = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gaius",
			Subsystem: "xp",
			Name:      "points_total",
			Help:      "Total absolute XP points moved by awards.",
		},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gaius",
			Subsystem: "xp",
			Name:      "sync_runs_total",
			Help:      "Total number of ledger sync attempts.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		programsMinted,
		passesIssued,
		xpAwards,
		xpPoints,
		syncRuns,
	)
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// CountProgramMinted records a program mint.
func CountProgramMinted() { programsMinted.Inc() }

// CountPassOp records a pass operation: "issued", "claimed", or "revoked".
func CountPassOp(op string) { passesIssued.WithLabelValues(op).Inc() }

// CountXPAward records a submitted XP award and its magnitude.
func CountXPAward(points int64) {
	xpAwards.Inc()
	if points < 0 {
		points = -points
	}
	xpPoints.Add(float64(points))
}

// CountSyncRun records a ledger sync attempt.
func CountSyncRun(success bool) {
	syncRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments an HTTP handler. The path label uses the route
// template supplied by the router, not the raw URL, to bound cardinality.
func Middleware(routeTemplate func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if routeTemplate != nil {
			if tmpl := routeTemplate(r); tmpl != "" {
				path = tmpl
			}
		}
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
