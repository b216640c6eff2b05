// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracking call outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

var (
	trackingCallsTotal         *prometheus.CounterVec
	annotationsTotal           *prometheus.CounterVec
	scriptInjectionsTotal      prometheus.Counter
	viewRefreshesTotal         *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		trackingCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_tracking_calls_total",
				Help: "Total number of collector tracking calls, labeled by call, site and outcome.",
			},
			[]string{"call", "site", "outcome"},
		)

		annotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_annotations_total",
				Help: "Total number of content fragments annotated, labeled by source.",
			},
			[]string{"source"},
		)

		scriptInjectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_script_injections_total",
				Help: "Total number of HTML responses that received the tracking script.",
			},
		)

		viewRefreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_view_refreshes_total",
				Help: "Total number of view counter refreshes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_rate_limited_total",
				Help: "Total number of collector calls dropped by the rate limiter, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTrackingCall counts one collector call (pageview or login) for the
// collector at collectorURL.
func ObserveTrackingCall(call, collectorURL, outcome string) {
	Init()
	trackingCallsTotal.WithLabelValues(call, SanitizeSite(collectorURL), outcome).Inc()
}

// ObserveAnnotation counts annotated fragments.
func ObserveAnnotation(source string, n int) {
	Init()
	if n > 0 {
		annotationsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveScriptInjection counts one injected script.
func ObserveScriptInjection() {
	Init()
	scriptInjectionsTotal.Inc()
}

// ObserveViewRefresh counts one view counter refresh.
func ObserveViewRefresh(outcome string) {
	Init()
	viewRefreshesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimited counts one collector call dropped for site.
func ObserveRateLimited(site string) {
	Init()
	rateLimitedTotal.WithLabelValues(site).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
