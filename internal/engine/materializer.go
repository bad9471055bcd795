package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/pkg/textx"
)

// actionNamespace seeds deterministic (UUIDv5) IDs for catalog actions.
var actionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:organic-advisor:action"))

// CatalogActionID returns the stable ID of the action built from candidateID for a user and day.
func CatalogActionID(userID, day, candidateID string) string {
	return uuid.NewSHA1(actionNamespace, []byte(userID+"|"+day+"|"+candidateID)).String()
}

// Materializer converts a ranked candidate into a concrete ActionInstance.
type Materializer struct {
	Policy config.Policy
}

// Materialize is pure apart from GeneratedAt, which is set to now.
func (m Materializer) Materialize(c domain.Candidate, u domain.UserContext, b domain.ScoreBreakdown, now time.Time) domain.ActionInstance {
	day := u.Day()
	return domain.ActionInstance{
		ID:                    CatalogActionID(u.UserID, day, c.ID),
		UserID:                u.UserID,
		Title:                 c.Name,
		Description:           m.describe(c, u),
		Category:              c.Category,
		Ingredients:           ResolveIngredients(c.Ingredients, u.AvailableMaterials),
		Steps:                 append([]string{}, c.Steps...),
		Urgency:               m.Urgency(c.TargetIssues),
		EstimatedCostSavings:  m.Savings(c.Category, c.CostPerUnit),
		EstimatedTimeToResult: m.timeToResult(c),
		OrganicCompliance:     c.OrganicCompliance,
		SourceCandidateID:     c.ID,
		Source:                domain.SourceCatalog,
		MatchScore:            b.MatchScore,
		ContextDay:            day,
		GeneratedAt:           now.UTC(),
	}
}

// Urgency is immediate when any issue mentions an urgent term, today for a moderate
// term, and this_week otherwise.
func (m Materializer) Urgency(issues []string) domain.Urgency {
	if mentionsAny(issues, m.Policy.UrgentTerms) {
		return domain.UrgencyImmediate
	}
	if mentionsAny(issues, m.Policy.ModerateTerms) {
		return domain.UrgencyToday
	}
	return domain.UrgencyThisWeek
}

// Savings is baseline[category] - cost, floored at the policy minimum.
func (m Materializer) Savings(cat domain.Category, cost float64) float64 {
	floor := m.Policy.MinSavings
	if floor <= 0 {
		floor = 1
	}
	v := m.Policy.Baseline(cat) - finiteOrZero(cost)
	return math.Max(floor, v)
}

func (m Materializer) timeToResult(c domain.Candidate) string {
	if c.TimeToResult != "" {
		return c.TimeToResult
	}
	return m.Policy.DefaultTimeToResult(c.Category)
}

func (m Materializer) describe(c domain.Candidate, u domain.UserContext) string {
	var matched []string
	for _, issue := range u.Issues {
		for _, t := range c.TargetIssues {
			if textx.ContainsFold(issue, t) {
				matched = append(matched, issue)
				break
			}
		}
	}
	parts := make([]string, 0, 2)
	if d := strings.TrimSpace(c.Description); d != "" {
		parts = append(parts, d)
	}
	crop := u.PrimaryCrop()
	switch {
	case len(matched) > 0 && crop != "" && crop != MixedCrops:
		parts = append(parts, fmt.Sprintf("Targets %s on your %s.", strings.Join(matched, ", "), crop))
	case len(matched) > 0:
		parts = append(parts, fmt.Sprintf("Targets %s.", strings.Join(matched, ", ")))
	case crop != "" && crop != MixedCrops:
		parts = append(parts, fmt.Sprintf("Suited to your %s this %s.", crop, u.Season))
	}
	return strings.Join(parts, " ")
}

// ResolveIngredients marks each ingredient that one of the user's materials covers, by
// case-insensitive containment in either direction. Quantities keep the catalog default.
func ResolveIngredients(ings []domain.Ingredient, materials []string) []domain.ResolvedIngredient {
	out := make([]domain.ResolvedIngredient, 0, len(ings))
	for _, in := range ings {
		r := domain.ResolvedIngredient{Name: in.Name, Quantity: in.Quantity, Unit: in.Unit}
		for _, mat := range materials {
			if textx.ContainsFold(in.Name, mat) {
				r.FromAvailable = true
				r.Material = mat
				break
			}
		}
		out = append(out, r)
	}
	return out
}

func mentionsAny(issues, terms []string) bool {
	for _, issue := range issues {
		issue = strings.ToLower(issue)
		for _, term := range terms {
			if term != "" && strings.Contains(issue, term) {
				return true
			}
		}
	}
	return false
}
