package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/internal/observability"
)

// Tier names, in the order they are tried.
const (
	TierCropSeason = "crop_season"
	TierSeason     = "season"
	TierVerified   = "verified"
)

// RetrievalTier is one relaxation step.
type RetrievalTier struct {
	Name   string
	Filter domain.CandidateFilter
}

// RetrievalResult is the outcome of a successful relaxed retrieval.
type RetrievalResult struct {
	Tier       string
	Attempts   int
	Candidates []domain.Candidate
}

// Retriever fetches candidates with progressive filter relaxation.
type Retriever struct {
	Repo   domain.CandidateRepository
	Policy config.Policy
	// FetchTimeout bounds each repository call; zero disables the bound.
	FetchTimeout time.Duration
}

// Tiers returns the relaxation sequence for u: crop+season, then season, then verified only.
func Tiers(u domain.UserContext) []RetrievalTier {
	return []RetrievalTier{
		{Name: TierCropSeason, Filter: domain.CandidateFilter{VerifiedOnly: true, Crop: u.PrimaryCrop(), Season: u.Season}},
		{Name: TierSeason, Filter: domain.CandidateFilter{VerifiedOnly: true, Season: u.Season}},
		{Name: TierVerified, Filter: domain.CandidateFilter{VerifiedOnly: true}},
	}
}

// Retrieve walks the tiers until one yields at least one candidate passing HardFilter.
// A failing tier is logged and treated as empty. When every tier comes back empty the
// error wraps domain.ErrNoCandidates; when every tier failed it wraps the upstream cause.
func (r Retriever) Retrieve(ctx context.Context, u domain.UserContext) (RetrievalResult, error) {
	lg := observability.LoggerFromContext(ctx)
	tiers := Tiers(u)
	var (
		failures int
		lastErr  error
	)
	for i, tier := range tiers {
		cands, err := r.fetch(ctx, tier.Filter)
		if err != nil {
			failures++
			lastErr = err
			lg.Warn("candidate tier fetch failed", slog.String("tier", tier.Name), slog.Any("error", err))
			continue
		}
		kept := r.HardFilter(cands, tier.Filter)
		lg.Debug("candidate tier fetched",
			slog.String("tier", tier.Name),
			slog.Int("fetched", len(cands)),
			slog.Int("kept", len(kept)))
		if len(kept) > 0 {
			return RetrievalResult{Tier: tier.Name, Attempts: i + 1, Candidates: kept}, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failures == len(tiers) {
		if errors.Is(lastErr, context.DeadlineExceeded) {
			return RetrievalResult{}, fmt.Errorf("op=engine.Retrieve: %w: %v", domain.ErrUpstreamTimeout, lastErr)
		}
		return RetrievalResult{}, fmt.Errorf("op=engine.Retrieve: %w: %v", domain.ErrInternal, lastErr)
	}
	return RetrievalResult{Attempts: len(tiers)}, fmt.Errorf("op=engine.Retrieve: %w: %s", domain.ErrNoCandidates, domain.NoCandidatesReason)
}

func (r Retriever) fetch(ctx context.Context, f domain.CandidateFilter) ([]domain.Candidate, error) {
	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}
	return r.Repo.FetchCandidates(ctx, f)
}

// HardFilter normalizes candidates and drops any that are unverified or that do not
// satisfy f. Adapters are expected to filter already; this guards against ones that
// under-filter.
func (r Retriever) HardFilter(cands []domain.Candidate, f domain.CandidateFilter) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		c = c.Normalize()
		if c.ID == "" || !c.Verified {
			continue
		}
		if f.Season != "" && !c.InSeason(f.Season) {
			continue
		}
		if f.Crop != "" && !r.listsCrop(c, f.Crop) {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r Retriever) listsCrop(c domain.Candidate, crop string) bool {
	for _, tc := range c.TargetCrops {
		if tc == crop || r.Policy.IsWildcardCrop(tc) {
			return true
		}
	}
	return false
}
