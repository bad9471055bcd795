// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/organic-advisor/internal/adapter/observability"
	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/internal/engine"
	obsctx "github.com/fairyhunter13/organic-advisor/internal/observability"
)

// Search limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// DegradedProfile is added to UserContext.Degraded when the profile could not be loaded.
const DegradedProfile = "profile_unavailable"

// RecommendDeps groups the collaborators of a RecommendService. Enrichment and Events may
// be nil.
type RecommendDeps struct {
	Candidates domain.CandidateRepository
	Actions    domain.ActionRepository
	Ratings    domain.RatingRepository
	Profiles   domain.ProfileRepository
	Enrichment domain.EnrichmentClient
	Events     domain.EventPublisher
	Cache      domain.ResultCache

	Policy            config.Policy
	RecencyWindow     int
	Location          *time.Location
	FetchTimeout      time.Duration
	EnrichmentEnabled bool
	EnrichmentTimeout time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// RecommendService is the caller-facing API of the recommendation pipeline.
type RecommendService struct {
	candidates domain.CandidateRepository
	actions    domain.ActionRepository
	ratings    domain.RatingRepository
	profiles   domain.ProfileRepository
	events     domain.EventPublisher
	cache      domain.ResultCache

	builder      engine.ContextBuilder
	retriever    engine.Retriever
	scorer       engine.Scorer
	materializer engine.Materializer
	enricher     engine.Enricher
	policy       config.Policy
	loc          *time.Location
	now          func() time.Time
}

// NewRecommendService wires the engine components around d.
func NewRecommendService(d RecommendDeps) *RecommendService {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &RecommendService{
		candidates:   d.Candidates,
		actions:      d.Actions,
		ratings:      d.Ratings,
		profiles:     d.Profiles,
		events:       d.Events,
		cache:        d.Cache,
		builder:      engine.NewContextBuilder(d.Policy, d.RecencyWindow, loc),
		retriever:    engine.Retriever{Repo: d.Candidates, Policy: d.Policy, FetchTimeout: d.FetchTimeout},
		scorer:       engine.Scorer{Policy: d.Policy},
		materializer: engine.Materializer{Policy: d.Policy},
		enricher: engine.Enricher{
			Client:  d.Enrichment,
			Enabled: d.EnrichmentEnabled && d.Enrichment != nil,
			Timeout: d.EnrichmentTimeout,
			Policy:  d.Policy,
		},
		policy: d.Policy,
		loc:    loc,
		now:    now,
	}
}

// GetDailyAction returns the user's action for today, computing it at most once per day
// and user across concurrent callers. The only error a caller should expect in normal
// operation wraps domain.ErrNoCandidates.
func (s *RecommendService) GetDailyAction(ctx context.Context, userID string) (domain.ActionInstance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ActionInstance{}, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	now := s.now()
	key := domain.CacheKey{UserID: userID, Day: now.In(s.loc).Format(domain.DayLayout)}
	a, err := s.cache.GetOrCompute(ctx, key, func(cctx context.Context) (domain.ActionInstance, error) {
		return s.compute(cctx, userID, now)
	})
	if err != nil {
		return domain.ActionInstance{}, fmt.Errorf("op=usecase.GetDailyAction: %w", err)
	}
	return a, nil
}

func (s *RecommendService) compute(ctx context.Context, userID string, now time.Time) (domain.ActionInstance, error) {
	tracer := otel.Tracer("usecase.recommend")
	ctx, span := tracer.Start(ctx, "RecommendService.compute")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))
	ctx, lg := obsctx.WithAttrs(ctx, slog.String("user_id", userID))

	u := s.buildContext(ctx, userID, now)
	if len(u.Degraded) > 0 {
		lg.Warn("user context degraded", slog.Any("defaults", u.Degraded))
	}

	hint := engine.CategoryHint(u.Issues, s.policy)
	outcome := s.enricher.Attempt(ctx, u, hint, now)
	if outcome.Reason != engine.ReasonDisabled {
		observability.RecordEnrichmentOutcome(string(outcome.State()), outcome.Duration)
	}

	var action domain.ActionInstance
	if outcome.Succeeded() {
		action = *outcome.Action
	} else {
		if outcome.Reason != engine.ReasonDisabled {
			lg.Info("enrichment fell back to catalog",
				slog.String("state", string(outcome.State())),
				slog.String("reason", outcome.Reason),
				slog.Any("error", outcome.Err))
		}
		res, err := s.retriever.Retrieve(ctx, u)
		if err != nil {
			if errors.Is(err, domain.ErrNoCandidates) {
				observability.RecordNoRecommendation()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "retrieval failed")
			return domain.ActionInstance{}, err
		}
		ranked := engine.Rank(s.scorer.ScoreAll(res.Candidates, u))
		top := ranked[0]
		action = s.materializer.Materialize(top.Candidate, u, top.Breakdown, now)
		span.SetAttributes(attribute.String("retrieval.tier", res.Tier), attribute.Int("retrieval.candidates", len(res.Candidates)))
	}
	span.SetAttributes(
		attribute.String("action.source", string(action.Source)),
		attribute.Float64("action.match_score", action.MatchScore))

	if err := s.actions.SaveActionInstance(ctx, userID, action); err != nil {
		observability.RecordRepositoryWriteFailure("save_action")
		lg.Warn("failed to persist action", slog.String("action_id", action.ID), slog.Any("error", err))
	}
	if s.events != nil {
		if err := s.events.PublishActionGenerated(ctx, action); err != nil {
			lg.Warn("failed to publish action event", slog.String("action_id", action.ID), slog.Any("error", err))
		}
	}
	observability.ObserveRecommendation(string(action.Source), action.MatchScore)
	lg.Info("daily action computed",
		slog.String("action_id", action.ID),
		slog.String("source", string(action.Source)),
		slog.String("candidate_id", action.SourceCandidateID),
		slog.Float64("match_score", action.MatchScore))
	return action, nil
}

func (s *RecommendService) buildContext(ctx context.Context, userID string, now time.Time) domain.UserContext {
	raw, err := s.profiles.LoadProfile(ctx, userID)
	var degraded bool
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		obsctx.LoggerFromContext(ctx).Warn("profile not found, using defaults")
		degraded = true
	default:
		obsctx.LoggerFromContext(ctx).Warn("profile load failed, using defaults",
			slog.Any("error", fmt.Errorf("%w: %v", domain.ErrInvalidContext, err)))
		degraded = true
	}
	u := s.builder.Build(userID, raw, now)
	if degraded {
		u.Degraded = append(u.Degraded, DegradedProfile)
	}
	return u
}

// SearchCandidates ranks verified candidates against an ad-hoc query. Season and history
// play no part; an empty crop matches every candidate.
func (s *RecommendService) SearchCandidates(ctx context.Context, q domain.SearchQuery) ([]domain.RankedCandidate, error) {
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be >= 0", domain.ErrInvalidArgument)
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	crop := strings.ToLower(strings.TrimSpace(q.Crop))
	filter := domain.CandidateFilter{VerifiedOnly: true, Crop: crop, Category: q.Category}

	cands, err := s.candidates.FetchCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.SearchCandidates: %w", err)
	}
	u := domain.UserContext{Issues: normalizeTerms(q.Issues), Date: s.now().In(s.loc)}
	if crop != "" {
		u.Crops = []string{crop}
	}
	kept := s.retriever.HardFilter(cands, filter)
	return engine.TopN(engine.Rank(s.scorer.ScoreAll(kept, u)), limit), nil
}

// RateCandidate records a 1-5 rating of a catalog candidate.
func (s *RecommendService) RateCandidate(ctx context.Context, candidateID, userID string, rating int) error {
	if strings.TrimSpace(candidateID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: candidate id and user id required", domain.ErrInvalidArgument)
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidArgument)
	}
	if err := s.ratings.RateCandidate(ctx, candidateID, userID, rating); err != nil {
		return fmt.Errorf("op=usecase.RateCandidate: %w", err)
	}
	return nil
}

// CompleteAction records completion feedback, announces it and drops the user's cached
// action so the next request reflects the change.
func (s *RecommendService) CompleteAction(ctx context.Context, actionID string, fb domain.Feedback) error {
	if strings.TrimSpace(actionID) == "" {
		return fmt.Errorf("%w: action id required", domain.ErrInvalidArgument)
	}
	if fb.Rating != 0 && (fb.Rating < 1 || fb.Rating > 5) {
		return fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidArgument)
	}
	a, err := s.actions.GetAction(ctx, actionID)
	if err != nil {
		return fmt.Errorf("op=usecase.CompleteAction: %w", err)
	}
	if err := s.actions.MarkCompleted(ctx, actionID, fb); err != nil {
		return fmt.Errorf("op=usecase.CompleteAction: %w", err)
	}
	lg := obsctx.LoggerFromContext(ctx)
	if s.events != nil {
		if err := s.events.PublishActionCompleted(ctx, actionID, fb); err != nil {
			lg.Warn("failed to publish completion event", slog.String("action_id", actionID), slog.Any("error", err))
		}
	}
	if err := s.cache.Invalidate(ctx, a.UserID); err != nil {
		lg.Warn("failed to invalidate cached action", slog.String("user_id", a.UserID), slog.Any("error", err))
	}
	return nil
}

// InvalidateContext drops the user's cached action after a change to their context.
func (s *RecommendService) InvalidateContext(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("op=usecase.InvalidateContext: %w", err)
	}
	return nil
}

func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
