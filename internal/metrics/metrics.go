// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsTotal counts bid placements, partitioned by outcome.
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artex_bids_total",
		Help: "Total number of bid placements",
	}, []string{"result"}) // accepted, rejected, error

	// SettlementsTotal counts auction settlements by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artex_settlements_total",
		Help: "Total number of auction settlements",
	}, []string{"outcome"}) // sold, no_bids, already_settled, error

	// PaymentExpiriesTotal counts purchases expired by the payment sweep.
	PaymentExpiriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artex_payment_expiries_total",
		Help: "Purchases expired for missing the payment deadline",
	})

	// SweepDuration tracks how long each scheduled sweep takes.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artex_sweep_duration_seconds",
		Help:    "Duration of scheduled sweeps in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"}) // auctions, payments

	// SweepSkipped counts scheduler ticks skipped because the previous
	// sweep was still running.
	SweepSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artex_sweep_skipped_total",
		Help: "Scheduler ticks skipped due to an in-flight sweep",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artex_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
