// Package engine holds the deterministic recommendation pipeline: context building,
// candidate retrieval, scoring, ranking, materialization and the enrichment attempt.
package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

const (
	// UnknownRegion is the neutral placeholder for a missing region.
	UnknownRegion = "unknown"
	// MixedCrops stands in for an empty crop list.
	MixedCrops = "mixed"
	// DefaultRecencyWindow bounds the recent-history window when none is configured.
	DefaultRecencyWindow = 10
)

// Degradation notes recorded on UserContext.Degraded.
const (
	DegradedRegion   = "region_missing"
	DegradedCrops    = "crops_missing"
	DegradedFarmSize = "farm_size_invalid"
	DegradedHistory  = "history_entry_invalid"
	DegradedFields   = "field_record_invalid"
)

// ContextBuilder turns raw upstream records into a UserContext. It never fails.
type ContextBuilder struct {
	Policy        config.Policy
	RecencyWindow int
	// Location defines the calendar day; nil means UTC.
	Location *time.Location
}

// NewContextBuilder constructs a ContextBuilder. A non-positive window uses the default.
func NewContextBuilder(p config.Policy, recencyWindow int, loc *time.Location) ContextBuilder {
	if recencyWindow <= 0 {
		recencyWindow = DefaultRecencyWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	return ContextBuilder{Policy: p, RecencyWindow: recencyWindow, Location: loc}
}

// Build assembles the context for userID at now, substituting defaults for anything
// missing or malformed. Every substitution is listed in Degraded.
func (b ContextBuilder) Build(userID string, raw domain.RawProfile, now time.Time) domain.UserContext {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	u := domain.UserContext{
		UserID: strings.TrimSpace(userID),
		Date:   now,
	}

	u.Region = strings.TrimSpace(raw.Region)
	if u.Region == "" {
		u.Region = UnknownRegion
		u.Degraded = append(u.Degraded, DegradedRegion)
	}

	crops := append([]string{}, raw.Crops...)
	issues := append([]string{}, raw.Issues...)
	var fieldSize float64
	for _, f := range raw.Fields {
		if strings.TrimSpace(f.Crop) == "" && len(f.Issues) == 0 {
			u.Degraded = appendOnce(u.Degraded, DegradedFields)
			continue
		}
		crops = append(crops, f.Crop)
		issues = append(issues, f.Issues...)
		if validSize(f.SizeHa) {
			fieldSize += f.SizeHa
		} else {
			u.Degraded = appendOnce(u.Degraded, DegradedFarmSize)
		}
	}
	u.Crops = dedupeTerms(crops)
	if len(u.Crops) == 0 {
		u.Crops = []string{MixedCrops}
		u.Degraded = append(u.Degraded, DegradedCrops)
	}
	u.Issues = dedupeTerms(issues)
	u.AvailableMaterials = dedupeTerms(raw.Materials)

	switch {
	case validSize(raw.FarmSize) && raw.FarmSize > 0:
		u.FarmSize = raw.FarmSize
	case raw.FarmSize != 0 && !validSize(raw.FarmSize):
		u.Degraded = appendOnce(u.Degraded, DegradedFarmSize)
		u.FarmSize = fieldSize
	default:
		u.FarmSize = fieldSize
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	u.RecentCandidateIDs = b.recentIDs(raw.History, dayStart, &u)
	u.Season = SeasonFor(now, b.Policy.IsSouthern(u.Region))
	return u
}

// recentIDs orders history newest first, drops duplicates and keeps the window. Entries
// from dayStart onward belong to the day being computed and are ignored, so a same-day
// recompute does not penalize its own earlier result.
func (b ContextBuilder) recentIDs(history []domain.HistoryEntry, dayStart time.Time, u *domain.UserContext) []string {
	window := b.RecencyWindow
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	entries := make([]domain.HistoryEntry, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h.CandidateID) == "" {
			u.Degraded = appendOnce(u.Degraded, DegradedHistory)
			continue
		}
		if !h.At.Before(dayStart) {
			continue
		}
		entries = append(entries, h)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.After(entries[j].At) })

	ids := make([]string, 0, window)
	seen := make(map[string]struct{}, len(entries))
	for _, h := range entries {
		id := strings.TrimSpace(h.CandidateID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) == window {
			break
		}
	}
	return ids
}

// SeasonFor returns the meteorological season of t, flipped for the southern hemisphere.
func SeasonFor(t time.Time, southern bool) domain.Season {
	var s domain.Season
	switch t.Month() {
	case time.March, time.April, time.May:
		s = domain.SeasonSpring
	case time.June, time.July, time.August:
		s = domain.SeasonSummer
	case time.September, time.October, time.November:
		s = domain.SeasonAutumn
	default:
		s = domain.SeasonWinter
	}
	if !southern {
		return s
	}
	switch s {
	case domain.SeasonSpring:
		return domain.SeasonAutumn
	case domain.SeasonSummer:
		return domain.SeasonWinter
	case domain.SeasonAutumn:
		return domain.SeasonSpring
	default:
		return domain.SeasonSummer
	}
}

func validSize(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func dedupeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func appendOnce(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
