package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	if rec.Result().StatusCode != 204 {
		t.Fatalf("want 204")
	}
}

func TestHTTPMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/v1/users/{userID}/daily-action", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/users/{userID}/daily-action", http.MethodGet, "OK"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/users/u-1/daily-action", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/users/{userID}/daily-action", http.MethodGet, "OK"))
	assert.Equal(t, before+1, after)
}

func TestRecommendationMetricsHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()

	before := testutil.ToFloat64(RecommendationsTotal.WithLabelValues("catalog"))
	ObserveRecommendation("catalog", 99)
	ObserveRecommendation("enrichment", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(RecommendationsTotal.WithLabelValues("catalog")))

	beforeCache := testutil.ToFloat64(ResultCacheLookupsTotal.WithLabelValues("hit"))
	RecordCacheLookup("hit")
	assert.Equal(t, beforeCache+1, testutil.ToFloat64(ResultCacheLookupsTotal.WithLabelValues("hit")))

	RecordNoRecommendation()
	RecordEnrichmentOutcome("timeout", 20*time.Millisecond)
	ObserveEnrichmentPromptTokens(120)
	RecordCircuitBreakerState("enrichment", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("enrichment")))
	RecordRepositoryWriteFailure("save_action")
	RecordEventPublished("action.generated", "ok")
}
