package engine

import (
	"sort"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Rank returns a copy of scored ordered by descending match score. Ties fall back to
// effectiveness, then organic compliance (both descending), then the smaller ID, so the
// order is total and independent of input order.
func Rank(scored []domain.ScoredCandidate) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b domain.ScoredCandidate) bool {
	if a.Breakdown.MatchScore != b.Breakdown.MatchScore {
		return a.Breakdown.MatchScore > b.Breakdown.MatchScore
	}
	if a.Candidate.Effectiveness != b.Candidate.Effectiveness {
		return a.Candidate.Effectiveness > b.Candidate.Effectiveness
	}
	if a.Candidate.OrganicCompliance != b.Candidate.OrganicCompliance {
		return a.Candidate.OrganicCompliance > b.Candidate.OrganicCompliance
	}
	return a.Candidate.ID < b.Candidate.ID
}

// TopN returns the first n ranked entries with 1-based ranks. n <= 0 returns all.
func TopN(ranked []domain.ScoredCandidate, n int) []domain.RankedCandidate {
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	out := make([]domain.RankedCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.RankedCandidate{Rank: i + 1, Candidate: ranked[i].Candidate, Breakdown: ranked[i].Breakdown})
	}
	return out
}
