package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokenPairsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_pairs_issued_total",
			Help: "Access/refresh pairs minted, by flow (login or refresh).",
		},
		[]string{"flow"},
	)

	tokenRefusals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_refusals_total",
		Help: "Refresh attempts refused because the presented token did not match the stored record.",
	})

	admissionRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_admission_rejections_total",
		Help: "Requests rejected by the per-identity rate limiter.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		tokenPairsIssued, tokenRefusals, admissionRejections,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountTokenPair records a minted pair for the given flow.
func CountTokenPair(flow string) { tokenPairsIssued.WithLabelValues(flow).Inc() }

// CountTokenRefusal records a refused refresh attempt.
func CountTokenRefusal() { tokenRefusals.Inc() }

// CountAdmissionRejection records a 429 from the admission controller.
func CountAdmissionRejection() { admissionRejections.Inc() }

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
