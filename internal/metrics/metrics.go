// Package metrics exposes Prometheus collectors for HTTP traffic and the
// student read cache on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is private so /metrics shows only what this service records,
// plus the process and runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// HTTP traffic. Paths are canonicalised before use as a label.
var (
	httpInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "student_manager_http_inflight_requests",
		Help: "Requests currently being served.",
	})
	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "student_manager_http_requests_total",
		Help: "Requests served, by method, route and status code.",
	}, []string{"method", "path", "status"})
	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "student_manager_http_request_duration_seconds",
		Help:    "Time spent serving a request.",
		Buckets: []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "path"})
)

// Read-through cache.
var (
	cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "student_manager_cache_lookups_total",
		Help: "Read-through cache lookups by service operation and result.",
	}, []string{"operation", "result"})
	cacheEvictions = factory.NewCounter(prometheus.CounterOpts{
		Name: "student_manager_cache_evictions_total",
		Help: "Invalidation passes triggered by writes.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted marks one request in flight; call the returned func
// when it finishes.
func RequestStarted() (done func()) {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveRequest records a served request. rawPath is folded with
// canonicalPath so ids and emails never become label values.
func ObserveRequest(method, rawPath string, status int, elapsed time.Duration) {
	path := canonicalPath(rawPath)
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RecordCacheLookup counts one read-through lookup.
func RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(operation, result).Inc()
}

// RecordCacheEviction counts one invalidation pass.
func RecordCacheEviction() {
	cacheEvictions.Inc()
}

// canonicalPath folds identifiers out of the path so label cardinality
// stays bounded: /api/students/42/status becomes /api/students/:id/status.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = ":id"
			continue
		}
		if i > 0 && (parts[i-1] == "email" || parts[i-1] == "status") && p != "count" {
			parts[i] = ":" + parts[i-1]
		}
	}
	return "/" + strings.Join(parts, "/")
}
