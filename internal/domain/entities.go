// Package domain defines the core entities and ports of the recommendation service.
package domain

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Category enumerates the treatment categories of the catalog.
type Category string

const (
	CategoryPestControl       Category = "pest-control"
	CategoryFertility         Category = "fertility"
	CategorySoilAmendment     Category = "soil-amendment"
	CategoryGrowthEnhancement Category = "growth-enhancement"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{CategoryPestControl, CategoryFertility, CategorySoilAmendment, CategoryGrowthEnhancement}

var categoryAliases = map[string]Category{
	"pest-control":       CategoryPestControl,
	"pesticide":          CategoryPestControl,
	"pest":               CategoryPestControl,
	"fertility":          CategoryFertility,
	"fertilizer":         CategoryFertility,
	"fertiliser":         CategoryFertility,
	"soil-amendment":     CategorySoilAmendment,
	"soil":               CategorySoilAmendment,
	"growth-enhancement": CategoryGrowthEnhancement,
	"growth-enhancer":    CategoryGrowthEnhancement,
}

// ParseCategory maps a category or one of its catalog aliases to a Category.
func ParseCategory(s string) (Category, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("_", "-", " ", "-").Replace(k)
	if c, ok := categoryAliases[k]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, s)
}

// Valid reports whether c is one of the canonical categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// normalizeCategory maps aliases to their canonical category. Unknown values are kept
// trimmed and lower-cased so callers can reject them with Valid.
func normalizeCategory(c Category) Category {
	if p, err := ParseCategory(string(c)); err == nil {
		return p
	}
	return Category(strings.ToLower(strings.TrimSpace(string(c))))
}

// Season of the year. SeasonAll marks a year-round candidate.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
	SeasonAll    Season = "all"
)

// ParseSeason normalizes a season name; "fall" is accepted for autumn.
func ParseSeason(s string) (Season, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spring":
		return SeasonSpring, true
	case "summer":
		return SeasonSummer, true
	case "autumn", "fall":
		return SeasonAutumn, true
	case "winter":
		return SeasonWinter, true
	case "all", "any", "year-round":
		return SeasonAll, true
	}
	return "", false
}

// Ingredient is one catalog ingredient with its default quantity.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// Candidate is an immutable catalog entry describing one organic remedy.
// Invariants after Normalize: Category is canonical when it names a known category or
// alias; Effectiveness in [0,5]; OrganicCompliance in [0,100]; CostPerUnit >= 0; crops,
// issues and seasons are lower-case and non-empty strings.
type Candidate struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	Category          Category     `json:"category"`
	TargetCrops       []string     `json:"target_crops"`
	TargetIssues      []string     `json:"target_issues"`
	Ingredients       []Ingredient `json:"ingredients"`
	Steps             []string     `json:"steps"`
	Effectiveness     float64      `json:"effectiveness"`
	CostPerUnit       float64      `json:"cost_per_unit"`
	OrganicCompliance float64      `json:"organic_compliance"`
	Seasons           []Season     `json:"seasons,omitempty"`
	Verified          bool         `json:"verified"`
	TimeToResult      string       `json:"time_to_result,omitempty"`
}

// Normalize returns a copy with every field coerced into its documented shape.
func (c Candidate) Normalize() Candidate {
	out := c
	out.ID = strings.TrimSpace(c.ID)
	out.Name = strings.TrimSpace(c.Name)
	out.Category = normalizeCategory(c.Category)
	out.TargetCrops = normalizeTerms(c.TargetCrops)
	out.TargetIssues = normalizeTerms(c.TargetIssues)
	out.Effectiveness = clamp(c.Effectiveness, 0, 5)
	out.OrganicCompliance = clamp(c.OrganicCompliance, 0, 100)
	out.CostPerUnit = clamp(c.CostPerUnit, 0, math.MaxFloat64)
	out.Ingredients = make([]Ingredient, 0, len(c.Ingredients))
	for _, in := range c.Ingredients {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		out.Ingredients = append(out.Ingredients, Ingredient{Name: name, Quantity: clamp(in.Quantity, 0, math.MaxFloat64), Unit: strings.TrimSpace(in.Unit)})
	}
	out.Steps = make([]string, 0, len(c.Steps))
	for _, s := range c.Steps {
		if s = strings.TrimSpace(s); s != "" {
			out.Steps = append(out.Steps, s)
		}
	}
	out.Seasons = make([]Season, 0, len(c.Seasons))
	for _, s := range c.Seasons {
		if p, ok := ParseSeason(string(s)); ok {
			out.Seasons = append(out.Seasons, p)
		}
	}
	out.TimeToResult = strings.TrimSpace(c.TimeToResult)
	return out
}

// InSeason reports whether the candidate applies in season s. A candidate with no
// seasons, or with SeasonAll, applies year-round.
func (c Candidate) InSeason(s Season) bool {
	if len(c.Seasons) == 0 || s == "" {
		return true
	}
	for _, cs := range c.Seasons {
		if cs == SeasonAll || cs == s {
			return true
		}
	}
	return false
}

// RawField is an upstream field record as stored by the profile owner.
type RawField struct {
	Crop   string   `json:"crop"`
	Issues []string `json:"issues"`
	SizeHa float64  `json:"size_ha"`
}

// HistoryEntry records a candidate previously recommended to the user.
type HistoryEntry struct {
	CandidateID string    `json:"candidate_id"`
	At          time.Time `json:"at"`
}

// RawProfile holds the unvalidated upstream records used to build a UserContext.
type RawProfile struct {
	UserID    string         `json:"user_id"`
	Region    string         `json:"region"`
	Crops     []string       `json:"crops"`
	Issues    []string       `json:"issues"`
	FarmSize  float64        `json:"farm_size"`
	Materials []string       `json:"materials"`
	Fields    []RawField     `json:"fields"`
	History   []HistoryEntry `json:"history"`
}

// UserContext is the situational snapshot that drives scoring. It is built per request
// and never persisted.
type UserContext struct {
	UserID             string    `json:"user_id"`
	Crops              []string  `json:"crops"`
	Issues             []string  `json:"issues"`
	Region             string    `json:"region"`
	Season             Season    `json:"season"`
	Date               time.Time `json:"date"`
	FarmSize           float64   `json:"farm_size"`
	AvailableMaterials []string  `json:"available_materials"`
	RecentCandidateIDs []string  `json:"recent_candidate_ids"`
	// Degraded lists the defaults substituted for missing or malformed input.
	Degraded []string `json:"degraded,omitempty"`
}

// PrimaryCrop returns the first crop of the context, or "" when none is set.
func (u UserContext) PrimaryCrop() string {
	if len(u.Crops) == 0 {
		return ""
	}
	return u.Crops[0]
}

// RecentlyRecommended reports whether id is in the recency window.
func (u UserContext) RecentlyRecommended(id string) bool {
	for _, r := range u.RecentCandidateIDs {
		if r == id {
			return true
		}
	}
	return false
}

// Day returns the calendar date of the context as yyyy-mm-dd.
func (u UserContext) Day() string { return u.Date.Format(DayLayout) }

// DayLayout is the layout of context days and cache keys.
const DayLayout = "2006-01-02"

// ScoreBreakdown holds the per-component contributions of one scoring pass.
type ScoreBreakdown struct {
	CropMatch         float64 `json:"crop_match"`
	IssueMatch        float64 `json:"issue_match"`
	Effectiveness     float64 `json:"effectiveness"`
	OrganicCompliance float64 `json:"organic_compliance"`
	RecencyPenalty    float64 `json:"recency_penalty"`
	MatchScore        float64 `json:"match_score"`
}

// ScoredCandidate pairs a candidate with its breakdown.
type ScoredCandidate struct {
	Candidate Candidate      `json:"candidate"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// RankedCandidate is one entry of a ranked search result.
type RankedCandidate struct {
	Rank      int            `json:"rank"`
	Candidate Candidate      `json:"candidate"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Urgency of a materialized action.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyToday     Urgency = "today"
	UrgencyThisWeek  Urgency = "this_week"
)

// ParseUrgency validates an urgency value.
func ParseUrgency(s string) (Urgency, bool) {
	switch Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyImmediate:
		return UrgencyImmediate, true
	case UrgencyToday:
		return UrgencyToday, true
	case UrgencyThisWeek, "this-week", "this week":
		return UrgencyThisWeek, true
	}
	return "", false
}

// ActionSource tells where an action came from.
type ActionSource string

const (
	SourceCatalog    ActionSource = "catalog"
	SourceEnrichment ActionSource = "enrichment"
)

// ResolvedIngredient is an ingredient after matching against the user's materials.
type ResolvedIngredient struct {
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit,omitempty"`
	FromAvailable bool    `json:"from_available"`
	Material      string  `json:"material,omitempty"`
}

// ActionInstance is a materialized recommendation.
// Invariant: Source == SourceCatalog iff SourceCandidateID != "".
type ActionInstance struct {
	ID                    string               `json:"id"`
	UserID                string               `json:"user_id"`
	Title                 string               `json:"title"`
	Description           string               `json:"description"`
	Category              Category             `json:"category,omitempty"`
	Ingredients           []ResolvedIngredient `json:"ingredients"`
	Steps                 []string             `json:"steps"`
	Urgency               Urgency              `json:"urgency"`
	EstimatedCostSavings  float64              `json:"estimated_cost_savings"`
	EstimatedTimeToResult string               `json:"estimated_time_to_result"`
	OrganicCompliance     float64              `json:"organic_compliance"`
	SourceCandidateID     string               `json:"source_candidate_id,omitempty"`
	Source                ActionSource         `json:"source"`
	MatchScore            float64              `json:"match_score"`
	ContextDay            string               `json:"context_day"`
	GeneratedAt           time.Time            `json:"generated_at"`
}

// Clone returns a copy of a that shares no slices with it.
func (a ActionInstance) Clone() ActionInstance {
	out := a
	out.Ingredients = slices.Clone(a.Ingredients)
	out.Steps = slices.Clone(a.Steps)
	return out
}

// Feedback captures completion feedback for an action.
type Feedback struct {
	Rating int    `json:"rating,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// CandidateFilter narrows a catalog fetch. VerifiedOnly is always true for the engine.
type CandidateFilter struct {
	VerifiedOnly bool
	Crop         string
	Season       Season
	Category     Category
}

// SearchQuery is the caller-facing candidate search request.
type SearchQuery struct {
	Crop     string
	Issues   []string
	Category Category
	Limit    int
}

// CacheKey identifies one daily recommendation.
type CacheKey struct {
	UserID string
	Day    string
}

// String renders the key in the form used by cache stores.
func (k CacheKey) String() string { return "action:" + k.UserID + ":" + k.Day }

// Repositories (ports)

// CandidateRepository is the read side of the catalog.
type CandidateRepository interface {
	// FetchCandidates returns candidates matching the filter. Implementations must honour
	// VerifiedOnly; the engine re-checks it.
	FetchCandidates(ctx Context, f CandidateFilter) ([]Candidate, error)
	GetCandidate(ctx Context, id string) (Candidate, error)
}

// ActionRepository persists materialized actions and their completion lifecycle.
type ActionRepository interface {
	SaveActionInstance(ctx Context, userID string, a ActionInstance) error
	MarkCompleted(ctx Context, actionID string, fb Feedback) error
	GetAction(ctx Context, id string) (ActionInstance, error)
}

// RatingRepository stores user ratings of catalog candidates.
type RatingRepository interface {
	RateCandidate(ctx Context, candidateID, userID string, rating int) error
}

// ProfileRepository loads the upstream records a UserContext is built from.
type ProfileRepository interface {
	LoadProfile(ctx Context, userID string) (RawProfile, error)
}

// EnrichmentClient (port) asks an external generative service for a context-specific
// action. The reply is untrusted text.
type EnrichmentClient interface {
	Generate(ctx Context, contextSummary string) (string, error)
}

// EventPublisher (port) announces action lifecycle events. Delivery is best-effort.
type EventPublisher interface {
	PublishActionGenerated(ctx Context, a ActionInstance) error
	PublishActionCompleted(ctx Context, actionID string, fb Feedback) error
}

// ResultCache (port) memoizes one action per key and coalesces concurrent computations.
type ResultCache interface {
	Get(ctx Context, key CacheKey) (ActionInstance, bool)
	GetOrCompute(ctx Context, key CacheKey, compute func(ctx Context) (ActionInstance, error)) (ActionInstance, error)
	Invalidate(ctx Context, userID string) error
}

// Context is an alias to keep signatures short across packages.
type Context = context.Context

func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
