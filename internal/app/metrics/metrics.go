package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "renkonet",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "renkonet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "renkonet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "renkonet",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total number of backend calls issued by views.",
		},
		[]string{"operation", "success"},
	)

	likeToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "renkonet",
			Subsystem: "feed",
			Name:      "like_toggles_total",
			Help:      "Optimistic like toggles by outcome.",
		},
		[]string{"outcome"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "renkonet",
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Direct messages sent.",
		},
	)

	counterHeals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "renkonet",
			Subsystem: "topics",
			Name:      "member_count_heals_total",
			Help:      "Topics whose stored member count disagreed with the live count.",
		},
	)

	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "renkonet",
			Subsystem: "session",
			Name:      "auth_events_total",
			Help:      "Authentication state changes observed.",
		},
		[]string{"event"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		gatewayCalls,
		likeToggles,
		messagesSent,
		counterHeals,
		authEvents,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Paths are collapsed with canonicalPath.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		done := TrackInFlight()
		next.ServeHTTP(rec, r)
		done()

		ObserveHTTPRequest(r.Method, canonicalPath(r.URL.Path), rec.status, time.Since(start))
	})
}

// TrackInFlight bumps the in-flight gauge; call the returned func when the
// request completes.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveHTTPRequest records one finished request. path should be a route
// template or canonical path, never a raw URL.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// CanonicalPath is exported for callers that have no route template.
func CanonicalPath(raw string) string { return canonicalPath(raw) }

// RecordGatewayCall counts one backend operation.
func RecordGatewayCall(operation string, err error) {
	if operation == "" {
		operation = "unknown"
	}
	gatewayCalls.WithLabelValues(operation, strconv.FormatBool(err == nil)).Inc()
}

// RecordLikeToggle counts an optimistic like by its outcome ("applied", "reverted", "ignored").
func RecordLikeToggle(outcome string) {
	likeToggles.WithLabelValues(outcome).Inc()
}

func RecordMessageSent() {
	messagesSent.Inc()
}

// RecordCounterHeals counts topics whose stored member count was corrected.
func RecordCounterHeals(n int) {
	if n > 0 {
		counterHeals.Add(float64(n))
	}
}

func RecordAuthEvent(event string) {
	authEvents.WithLabelValues(event).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses identifiers so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}
	if parts[1] == "admin" && len(parts) > 2 {
		return "/api/admin/" + parts[2]
	}
	return "/api/" + parts[1]
}
