package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
	"github.com/fairyhunter13/organic-advisor/pkg/textx"
)

// EnrichmentState is a state of the enrichment attempt.
type EnrichmentState string

const (
	StateAttempt  EnrichmentState = "attempt"
	StateSuccess  EnrichmentState = "success"
	StateTimeout  EnrichmentState = "timeout"
	StateFailure  EnrichmentState = "failure"
	StateFallback EnrichmentState = "fallback"
)

// Failure reasons reported on EnrichmentOutcome.
const (
	ReasonDisabled    = "disabled"
	ReasonCircuitOpen = "circuit_open"
	ReasonUpstream    = "upstream_error"
	ReasonMalformed   = "malformed_response"
	ReasonPanic       = "panic"
)

// EnrichmentOutcome records how the attempt ended. Action is set only on success.
// Path lists every state visited, always starting at attempt.
type EnrichmentOutcome struct {
	Path     []EnrichmentState
	Action   *domain.ActionInstance
	Reason   string
	Err      error
	Duration time.Duration
}

// State returns the terminal state of the attempt (success, timeout or failure).
func (o EnrichmentOutcome) State() EnrichmentState {
	for i := len(o.Path) - 1; i >= 0; i-- {
		if o.Path[i] != StateFallback {
			return o.Path[i]
		}
	}
	return StateAttempt
}

// Succeeded reports whether the attempt produced an action.
func (o EnrichmentOutcome) Succeeded() bool { return o.State() == StateSuccess && o.Action != nil }

// Enricher makes a single bounded attempt to obtain a generated action.
type Enricher struct {
	Client  domain.EnrichmentClient
	Enabled bool
	Timeout time.Duration
	Policy  config.Policy
}

// Attempt never panics and never retries. Any outcome other than success ends in the
// fallback state, with the cause wrapped in domain.ErrEnrichment.
func (e Enricher) Attempt(ctx context.Context, u domain.UserContext, hint domain.Category, now time.Time) (out EnrichmentOutcome) {
	start := time.Now()
	out.Path = []EnrichmentState{StateAttempt}
	defer func() {
		if r := recover(); r != nil {
			out = fail(out, StateFailure, ReasonPanic, fmt.Errorf("recovered: %v", r))
		}
		out.Duration = time.Since(start)
	}()

	if !e.Enabled || e.Client == nil {
		return fail(out, StateFailure, ReasonDisabled, errors.New("enrichment disabled"))
	}
	summary, err := ContextSummary(u, hint)
	if err != nil {
		return fail(out, StateFailure, ReasonMalformed, err)
	}

	callCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	raw, err := e.Client.Generate(callCtx, summary)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCircuitOpen):
			return fail(out, StateFailure, ReasonCircuitOpen, err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrUpstreamTimeout),
			errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return fail(out, StateTimeout, "", err)
		default:
			return fail(out, StateFailure, ReasonUpstream, err)
		}
	}
	action, err := ParseEnrichment(raw, u, hint, e.Policy, now)
	if err != nil {
		return fail(out, StateFailure, ReasonMalformed, err)
	}
	out.Path = append(out.Path, StateSuccess)
	out.Action = &action
	return out
}

func fail(out EnrichmentOutcome, state EnrichmentState, reason string, err error) EnrichmentOutcome {
	out.Path = append(out.Path[:1:1], state, StateFallback)
	out.Reason = reason
	if reason == "" {
		out.Reason = string(state)
	}
	out.Action = nil
	out.Err = fmt.Errorf("%w: %v", domain.ErrEnrichment, err)
	return out
}

type contextSummary struct {
	Crops        []string `json:"crops"`
	Issues       []string `json:"issues"`
	Region       string   `json:"region"`
	Season       string   `json:"season"`
	FarmSize     float64  `json:"farm_size_ha"`
	Materials    []string `json:"available_materials"`
	CategoryHint string   `json:"category_hint,omitempty"`
	Date         string   `json:"date"`
}

// ContextSummary renders the compact JSON handed to the enrichment service. It carries
// no user identifier.
func ContextSummary(u domain.UserContext, hint domain.Category) (string, error) {
	b, err := json.Marshal(contextSummary{
		Crops:        u.Crops,
		Issues:       u.Issues,
		Region:       u.Region,
		Season:       string(u.Season),
		FarmSize:     finiteOrZero(u.FarmSize),
		Materials:    u.AvailableMaterials,
		CategoryHint: string(hint),
		Date:         u.Day(),
	})
	if err != nil {
		return "", fmt.Errorf("op=engine.ContextSummary: %w", err)
	}
	return string(b), nil
}

// CategoryHint picks the category whose hint vocabulary covers the most issues. Ties go
// to the earlier category in domain.Categories; no match returns "".
func CategoryHint(issues []string, p config.Policy) domain.Category {
	var (
		best      domain.Category
		bestCount int
	)
	for _, cat := range domain.Categories {
		count := 0
		for _, issue := range issues {
			if mentionsAny([]string{issue}, p.CategoryHints[cat]) {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = cat, count
		}
	}
	return best
}

// ParseEnrichment decodes an untrusted reply into an ActionInstance. Only title and at
// least one step are required; every other field is type-checked and falls back to a
// default when absent or of the wrong shape.
func ParseEnrichment(raw string, u domain.UserContext, hint domain.Category, p config.Policy, now time.Time) (domain.ActionInstance, error) {
	obj, ok := textx.ExtractJSONObject(raw)
	if !ok {
		return domain.ActionInstance{}, fmt.Errorf("op=engine.ParseEnrichment: no json object in reply")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return domain.ActionInstance{}, fmt.Errorf("op=engine.ParseEnrichment: %w", err)
	}

	title := textx.SanitizeText(stringField(m, "title"))
	if title == "" {
		return domain.ActionInstance{}, fmt.Errorf("op=engine.ParseEnrichment: title missing")
	}
	steps := stringList(m["steps"])
	if len(steps) == 0 {
		return domain.ActionInstance{}, fmt.Errorf("op=engine.ParseEnrichment: steps missing")
	}

	cat := hint
	if c, err := domain.ParseCategory(stringField(m, "category")); err == nil {
		cat = c
	}
	urgency, ok := domain.ParseUrgency(stringField(m, "urgency"))
	if !ok {
		urgency = domain.UrgencyThisWeek
	}
	savings, ok := numberField(m, "estimated_cost_savings")
	if !ok || savings < 0 {
		savings = 0
	}
	compliance, ok := numberField(m, "organic_compliance")
	if !ok {
		compliance = 100
	}
	compliance = math.Min(100, math.Max(0, compliance))
	ttr := textx.SanitizeText(stringField(m, "estimated_time_to_result"))
	if ttr == "" {
		ttr = p.DefaultTimeToResult(cat)
	}

	return domain.ActionInstance{
		ID:                    uuid.New().String(),
		UserID:                u.UserID,
		Title:                 title,
		Description:           textx.SanitizeText(stringField(m, "description")),
		Category:              cat,
		Ingredients:           ResolveIngredients(ingredientList(m["ingredients"]), u.AvailableMaterials),
		Steps:                 steps,
		Urgency:               urgency,
		EstimatedCostSavings:  savings,
		EstimatedTimeToResult: ttr,
		OrganicCompliance:     compliance,
		Source:                domain.SourceEnrichment,
		ContextDay:            u.Day(),
		GeneratedAt:           now.UTC(),
	}, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// stringList accepts a list of strings or a single string.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := textx.SanitizeText(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if s = textx.SanitizeText(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// ingredientList accepts objects with name/quantity/unit or bare names.
func ingredientList(v any) []domain.Ingredient {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]domain.Ingredient, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if s := textx.SanitizeText(t); s != "" {
				out = append(out, domain.Ingredient{Name: s})
			}
		case map[string]any:
			name := textx.SanitizeText(stringField(t, "name"))
			if name == "" {
				continue
			}
			qty, ok := numberField(t, "quantity")
			if !ok || qty < 0 {
				qty = 0
			}
			out = append(out, domain.Ingredient{Name: name, Quantity: qty, Unit: textx.SanitizeText(stringField(t, "unit"))})
		}
	}
	return out
}

