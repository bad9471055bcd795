//go:build integration

// Package integration runs the Postgres and Redis adapters against real containers.
// Run with: go test -tags integration ./internal/integration/...
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/cache"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	p, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host + ":" + p.Port()
}

func TestPostgresRepositories(t *testing.T) {
	ctx := context.Background()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}, nat.Port("5432/tcp"))
	dsn := "postgres://postgres:postgres@" + addr + "/app?sslmode=disable"

	require.NoError(t, postgres.Migrate(ctx, dsn))
	// a second run is a no-op
	require.NoError(t, postgres.Migrate(ctx, dsn))

	pool, err := postgres.Connect(ctx, config.Config{AppEnv: "test", DBURL: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	policy := config.DefaultPolicy()
	cands := postgres.NewCandidateRepo(pool, policy.CropWildcards)
	require.NoError(t, cands.UpsertCandidate(ctx, domain.Candidate{
		ID: "neem-spray", Name: "Neem Leaf Spray", Category: domain.CategoryPestControl,
		TargetCrops: []string{"maize"}, TargetIssues: []string{"fall armyworm"},
		Ingredients: []domain.Ingredient{{Name: "neem leaves", Quantity: 1, Unit: "kg"}}, Steps: []string{"spray"},
		Effectiveness: 4.5, CostPerUnit: 3.5, OrganicCompliance: 100, Seasons: []domain.Season{"summer"}, Verified: true,
	}))
	require.NoError(t, cands.UpsertCandidate(ctx, domain.Candidate{
		ID: "compost-tea", Name: "Compost Tea", Category: domain.CategoryFertility,
		TargetCrops: []string{"all"}, Steps: []string{"brew"}, Effectiveness: 3, Verified: true,
	}))
	require.NoError(t, cands.UpsertCandidate(ctx, domain.Candidate{
		ID: "draft", Name: "Unverified", Category: domain.CategoryFertility, TargetCrops: []string{"maize"}, Steps: []string{"x"},
	}))

	got, err := cands.FetchCandidates(ctx, domain.CandidateFilter{VerifiedOnly: true, Crop: "maize", Season: domain.SeasonSummer})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "compost-tea", got[0].ID)
	assert.Equal(t, "neem-spray", got[1].ID)

	got, err = cands.FetchCandidates(ctx, domain.CandidateFilter{VerifiedOnly: true, Crop: "maize", Season: domain.SeasonWinter})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "compost-tea", got[0].ID)

	profiles := postgres.NewProfileRepo(pool)
	require.NoError(t, profiles.UpsertProfile(ctx, domain.RawProfile{
		UserID: "u1", Region: "kenya", Crops: []string{"maize"}, Issues: []string{"fall armyworm"},
		Fields: []domain.RawField{{Crop: "beans", SizeHa: 0.5}},
	}))

	actions := postgres.NewActionRepo(pool)
	a := domain.ActionInstance{
		ID: "a-1", UserID: "u1", Title: "Neem Leaf Spray", Steps: []string{"spray"}, Urgency: domain.UrgencyImmediate,
		Source: domain.SourceCatalog, SourceCandidateID: "neem-spray", ContextDay: "2025-07-14",
		GeneratedAt: time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, actions.SaveActionInstance(ctx, "u1", a))
	require.NoError(t, actions.SaveActionInstance(ctx, "u1", a))
	require.NoError(t, actions.MarkCompleted(ctx, "a-1", domain.Feedback{Rating: 5, Notes: "armyworm gone"}))
	assert.ErrorIs(t, actions.MarkCompleted(ctx, "missing", domain.Feedback{}), domain.ErrNotFound)

	loaded, err := actions.GetAction(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "neem-spray", loaded.SourceCandidateID)
	assert.Equal(t, "2025-07-14", loaded.ContextDay)

	p, err := profiles.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "kenya", p.Region)
	require.Len(t, p.Fields, 1)
	require.Len(t, p.History, 1)
	assert.Equal(t, "neem-spray", p.History[0].CandidateID)

	ratings := postgres.NewRatingRepo(pool)
	require.NoError(t, ratings.RateCandidate(ctx, "neem-spray", "u1", 4))
	require.NoError(t, ratings.RateCandidate(ctx, "neem-spray", "u1", 5))
	assert.ErrorIs(t, ratings.RateCandidate(ctx, "nope", "u1", 5), domain.ErrNotFound)
}

func TestRedisResultCache(t *testing.T) {
	ctx := context.Background()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, nat.Port("6379/tcp"))

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.Eventually(t, func() bool { return rdb.Ping(ctx).Err() == nil }, 30*time.Second, time.Second)

	c := cache.New(cache.NewRedisStore(rdb, "it:"), time.Hour)
	key := domain.CacheKey{UserID: "u1", Day: time.Now().UTC().Format(domain.DayLayout)}
	calls := 0
	compute := func(context.Context) (domain.ActionInstance, error) {
		calls++
		return domain.ActionInstance{ID: "a-1", UserID: "u1", Source: domain.SourceEnrichment}, nil
	}
	_, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Invalidate(ctx, "u1"))
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}
