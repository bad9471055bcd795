package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/ai/real"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/ai/stub"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/organic-advisor/internal/adapter/httpserver"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/repo/memory"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/internal/usecase"
)

// CacheKeyPrefix namespaces result cache keys in Redis.
const CacheKeyPrefix = "organic-advisor:"

// App is the assembled service: the HTTP handler plus the resources to release on exit.
type App struct {
	Handler   http.Handler
	Recommend *usecase.RecommendService
	closers   []func() error
}

// Close releases every resource opened by Build, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", slog.Any("error", err))
		}
	}
}

type redisPing struct{ rdb redis.UniversalClient }

func (r redisPing) Ping(ctx context.Context) RedisPingResult { return r.rdb.Ping(ctx) }

type repositories struct {
	candidates domain.CandidateRepository
	actions    domain.ActionRepository
	ratings    domain.RatingRepository
	profiles   domain.ProfileRepository
	pinger     Pinger
}

// Build wires stores, cache, enrichment and events according to cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.Build: %w", err)
	}

	repos, err := a.buildRepositories(ctx, cfg, policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		store cache.Store = cache.NewMemoryStore()
		rping RedisClient
	)
	if cfg.UseRedisCache() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("op=app.Build: redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)
		store = cache.NewRedisStore(rdb, CacheKeyPrefix)
		rping = redisPing{rdb: rdb}
	}
	resultCache := cache.New(store, cfg.CacheTTL, cache.WithLocation(cfg.Location()))

	var events domain.EventPublisher = redpanda.NopPublisher{}
	if cfg.EventsEnabled() {
		p, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.EventsTopic)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("op=app.Build: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		events = p
	}

	a.Recommend = usecase.NewRecommendService(usecase.RecommendDeps{
		Candidates:        repos.candidates,
		Actions:           repos.actions,
		Ratings:           repos.ratings,
		Profiles:          repos.profiles,
		Enrichment:        enrichmentClient(cfg),
		Events:            events,
		Cache:             resultCache,
		Policy:            policy,
		RecencyWindow:     cfg.RecencyWindow,
		Location:          cfg.Location(),
		FetchTimeout:      cfg.CandidateFetchTimeout,
		EnrichmentEnabled: cfg.EnrichmentEnabled,
		EnrichmentTimeout: cfg.EnrichmentTimeout,
	})

	dbCheck, redisCheck := BuildReadinessChecks(repos.pinger, rping)
	srv := httpserver.NewServer(cfg, a.Recommend, dbCheck, redisCheck)
	a.Handler = BuildRouter(cfg, srv)
	slog.Info("service assembled",
		slog.String("store", cfg.StoreBackend),
		slog.String("cache", cfg.CacheBackend),
		slog.Bool("enrichment", cfg.EnrichmentEnabled),
		slog.Bool("events", cfg.EventsEnabled()))
	return a, nil
}

func (a *App) buildRepositories(ctx context.Context, cfg config.Config, policy config.Policy) (repositories, error) {
	if cfg.UseMemoryStore() {
		s, err := memory.NewFromFile(ctx, cfg.CatalogPath, policy.CropWildcards)
		if err != nil {
			return repositories{}, fmt.Errorf("op=app.Build: catalog: %w", err)
		}
		return repositories{candidates: s, actions: s, ratings: s, profiles: s}, nil
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
			return repositories{}, fmt.Errorf("op=app.Build: %w", err)
		}
	}
	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		return repositories{}, fmt.Errorf("op=app.Build: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return repositories{
		candidates: postgres.NewCandidateRepo(pool, policy.CropWildcards),
		actions:    postgres.NewActionRepo(pool),
		ratings:    postgres.NewRatingRepo(pool),
		profiles:   postgres.NewProfileRepo(pool),
		pinger:     pool,
	}, nil
}

// enrichmentClient returns nil when enrichment cannot run; the service then always takes
// the catalog path.
func enrichmentClient(cfg config.Config) domain.EnrichmentClient {
	if !cfg.EnrichmentEnabled {
		return nil
	}
	if cfg.UseStubEnrichment() {
		return stub.New()
	}
	if cfg.EnrichmentAPIKey == "" {
		slog.Warn("enrichment enabled without ENRICHMENT_API_KEY; using catalog only")
		return nil
	}
	return real.New(cfg)
}
