package catalog

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Writer is the subset of the repositories a catalog is written into.
type Writer interface {
	UpsertCandidate(ctx context.Context, c domain.Candidate) error
	UpsertProfile(ctx context.Context, p domain.RawProfile) error
}

// SeedStats counts what Seed wrote.
type SeedStats struct {
	Candidates int
	Profiles   int
}

// Seed upserts every candidate, then every profile, stopping at the first failure.
// Re-running it over the same catalog is idempotent.
func Seed(ctx context.Context, w Writer, c Catalog) (SeedStats, error) {
	var st SeedStats
	for _, cand := range c.Candidates {
		if err := w.UpsertCandidate(ctx, cand); err != nil {
			return st, fmt.Errorf("op=catalog.Seed: candidate %s: %w", cand.ID, err)
		}
		st.Candidates++
	}
	for _, p := range c.Profiles {
		if err := w.UpsertProfile(ctx, p); err != nil {
			return st, fmt.Errorf("op=catalog.Seed: profile %s: %w", p.UserID, err)
		}
		st.Profiles++
	}
	return st, nil
}
