package engine

import (
	"math"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/pkg/textx"
)

// Score weights. The components sum to at most MaxScore.
const (
	CropFullMatch     = 40.0
	CropFamilyMatch   = 20.0
	IssueWeight       = 40.0
	EffectivenessMult = 2.0
	ComplianceDivisor = 10.0
	RecencyPenalty    = 2.0
	MaxScore          = 100.0
)

// Scorer computes a bounded relevance score for a candidate against a context.
type Scorer struct {
	Policy config.Policy
}

// Score returns the breakdown for c in context u. The result is finite and in [0, 100].
// The best crop match across the user's crops is used.
func (s Scorer) Score(c domain.Candidate, u domain.UserContext) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{
		CropMatch:         s.cropMatch(c, u.Crops),
		IssueMatch:        issueMatch(c.TargetIssues, u.Issues),
		Effectiveness:     EffectivenessMult * finiteOrZero(c.Effectiveness),
		OrganicCompliance: finiteOrZero(c.OrganicCompliance) / ComplianceDivisor,
	}
	if u.RecentlyRecommended(c.ID) {
		b.RecencyPenalty = RecencyPenalty
	}
	total := b.CropMatch + b.IssueMatch + b.Effectiveness + b.OrganicCompliance - b.RecencyPenalty
	b.MatchScore = math.Min(MaxScore, math.Max(0, finiteOrZero(total)))
	return b
}

// ScoreAll scores every candidate, preserving input order.
func (s Scorer) ScoreAll(cands []domain.Candidate, u domain.UserContext) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, domain.ScoredCandidate{Candidate: c, Breakdown: s.Score(c, u)})
	}
	return out
}

func (s Scorer) cropMatch(c domain.Candidate, crops []string) float64 {
	best := 0.0
	for _, crop := range crops {
		family := s.Policy.FamilyOf(crop)
		for _, tc := range c.TargetCrops {
			switch {
			case tc == crop || s.Policy.IsWildcardCrop(tc):
				return CropFullMatch
			case family != "" && s.Policy.FamilyOf(tc) == family:
				best = CropFamilyMatch
			}
		}
	}
	return best
}

// issueMatch is IssueWeight scaled by the share of user issues that some target issue
// covers, by case-insensitive containment in either direction.
func issueMatch(targets, issues []string) float64 {
	if len(issues) == 0 || len(targets) == 0 {
		return 0
	}
	matched := 0
	for _, issue := range issues {
		for _, t := range targets {
			if textx.ContainsFold(issue, t) {
				matched++
				break
			}
		}
	}
	return IssueWeight * float64(matched) / float64(len(issues))
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
