package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

func memoryConfig() config.Config {
	return config.Config{
		AppEnv:           "test",
		StoreBackend:     "memory",
		CatalogPath:      "../../configs/catalog.yaml",
		PolicyPath:       "../../configs/policy.yaml",
		CacheBackend:     "memory",
		CacheTTL:         6 * time.Hour,
		CacheLocation:    "UTC",
		RecencyWindow:    10,
		CORSAllowOrigins: "*",
	}
}

func buildTestApp(t *testing.T) *App {
	t.Helper()
	a, err := Build(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBuild_MemoryBackendServesDailyAction(t *testing.T) {
	a := buildTestApp(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/users/demo-maize/daily-action", nil)
	req.Header.Set("Accept", "application/json")
	a.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got domain.ActionInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "demo-maize", got.UserID)
	assert.Equal(t, domain.SourceCatalog, got.Source)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// same user and day is served from the cache
	rec2 := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec2, req)
	var again domain.ActionInstance
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &again))
	assert.Equal(t, got.ID, again.ID)
}

func TestBuild_CompleteAndSearch(t *testing.T) {
	a := buildTestApp(t)

	act, err := a.Recommend.GetDailyAction(context.Background(), "demo-maize")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/actions/"+act.ID+"/complete", strings.NewReader(`{"rating":5}`))
	req.Header.Set("Content-Type", "application/json")
	a.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/candidates?crop=maize&issues=armyworm&limit=3", nil)
	a.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Candidates []domain.RankedCandidate `json:"candidates"`
		Count      int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Candidates)
	assert.Equal(t, "cand-maize-spray", body.Candidates[0].Candidate.ID)
	assert.LessOrEqual(t, body.Count, 3)
}

func TestBuild_HealthAndReadiness(t *testing.T) {
	a := buildTestApp(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBuild_MissingCatalog(t *testing.T) {
	cfg := memoryConfig()
	cfg.CatalogPath = "testdata/does-not-exist.yaml"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestBuild_BadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.CacheBackend = "redis"
	cfg.RedisURL = "not-a-url://"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestEnrichmentClient(t *testing.T) {
	cfg := memoryConfig()
	assert.Nil(t, enrichmentClient(cfg))

	cfg.EnrichmentEnabled = true
	cfg.EnrichmentProvider = "stub"
	assert.NotNil(t, enrichmentClient(cfg))

	cfg.EnrichmentProvider = "openai"
	assert.Nil(t, enrichmentClient(cfg))

	cfg.EnrichmentAPIKey = "k"
	assert.NotNil(t, enrichmentClient(cfg))
}
