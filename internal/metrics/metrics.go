// README: Prometheus collectors for HTTP traffic, routing decisions, AI calls, modifications and sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wayfarer_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Classifications counts classifier outcomes by input type
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_classifications_total", Help: "Classified turns by input type."},
		[]string{"type"},
	)
	// Routes counts which extractors the hybrid parser ran
	Routes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_parse_routes_total", Help: "Hybrid parser routing decisions."},
		[]string{"route"},
	)
	// ParseResults counts extractor outcomes by strategy
	ParseResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_parse_results_total", Help: "Extraction results by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	// AILatency tracks language-model backend latency in milliseconds
	AILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wayfarer_ai_latency_ms", Help: "AI backend latency in ms.", Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000}},
		[]string{"outcome"},
	)
	// AIUnavailable counts AI calls skipped before reaching the backend
	AIUnavailable = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_ai_unavailable_total", Help: "AI extractions skipped by reason."},
		[]string{"reason"},
	)
	// Modifications counts resolved plan diffs by kind and outcome
	Modifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_modifications_total", Help: "Plan modifications by kind and outcome."},
		[]string{"kind", "outcome"},
	)
	// SessionEvictions counts sessions removed by the bounded store
	SessionEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wayfarer_session_evictions_total", Help: "Evicted sessions by reason."},
		[]string{"reason"},
	)
	// SessionsActive is the number of sessions held by the in-memory store
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wayfarer_sessions_active", Help: "Sessions held in memory."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Classifications)
		Registry.MustRegister(Routes)
		Registry.MustRegister(ParseResults)
		Registry.MustRegister(AILatency)
		Registry.MustRegister(AIUnavailable)
		Registry.MustRegister(Modifications)
		Registry.MustRegister(SessionEvictions)
		Registry.MustRegister(SessionsActive)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Outcome maps a success flag to the label value used across counters.
func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
