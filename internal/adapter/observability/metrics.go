package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_total",
			Help: "Total number of daily actions computed, by source",
		},
		[]string{"source"},
	)
	RecommendationMatchScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_match_score",
			Help:    "Distribution of match scores of catalog recommendations ([0,100])",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	NoRecommendationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "no_recommendation_total",
			Help: "Total number of requests that found no candidate in any retrieval tier",
		},
	)

	EnrichmentOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_outcomes_total",
			Help: "Total number of enrichment attempts by terminal state",
		},
		[]string{"state"},
	)
	EnrichmentRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_request_duration_seconds",
			Help:    "Enrichment request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	EnrichmentPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrichment_prompt_tokens",
			Help:    "Prompt size of enrichment requests in tokens",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3200},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	ResultCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_lookups_total",
			Help: "Result cache lookups by result (hit, miss, coalesced, error)",
		},
		[]string{"result"},
	)

	RepositoryWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_write_failures_total",
			Help: "Best-effort repository writes that failed, by operation",
		},
		[]string{"op"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Action events handed to the broker, by event type and status",
		},
		[]string{"event", "status"},
	)
)

var initOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to call twice.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(RecommendationsTotal)
		prometheus.MustRegister(RecommendationMatchScore)
		prometheus.MustRegister(NoRecommendationTotal)
		prometheus.MustRegister(EnrichmentOutcomesTotal)
		prometheus.MustRegister(EnrichmentRequestDuration)
		prometheus.MustRegister(EnrichmentPromptTokens)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(ResultCacheLookupsTotal)
		prometheus.MustRegister(RepositoryWriteFailuresTotal)
		prometheus.MustRegister(EventsPublishedTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveRecommendation records a computed daily action. Enrichment actions carry no score.
func ObserveRecommendation(source string, matchScore float64) {
	RecommendationsTotal.WithLabelValues(source).Inc()
	if source == "catalog" && matchScore >= 0 && matchScore <= 100 {
		RecommendationMatchScore.Observe(matchScore)
	}
}

// RecordNoRecommendation counts a request that exhausted every retrieval tier.
func RecordNoRecommendation() { NoRecommendationTotal.Inc() }

// RecordEnrichmentOutcome counts an enrichment attempt by terminal state.
func RecordEnrichmentOutcome(state string, dur time.Duration) {
	EnrichmentOutcomesTotal.WithLabelValues(state).Inc()
	if dur > 0 {
		EnrichmentRequestDuration.Observe(dur.Seconds())
	}
}

// ObserveEnrichmentPromptTokens records the prompt size of an enrichment request.
func ObserveEnrichmentPromptTokens(n int) {
	if n > 0 {
		EnrichmentPromptTokens.Observe(float64(n))
	}
}

// RecordCircuitBreakerState publishes the current state of a named breaker.
func RecordCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCacheLookup counts a result cache lookup.
func RecordCacheLookup(result string) {
	ResultCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordRepositoryWriteFailure counts a failed best-effort write.
func RecordRepositoryWriteFailure(op string) {
	RepositoryWriteFailuresTotal.WithLabelValues(op).Inc()
}

// RecordEventPublished counts an event publish attempt.
func RecordEventPublished(event, status string) {
	EventsPublishedTotal.WithLabelValues(event, status).Inc()
}
