// Package memory provides in-process implementations of the repository ports, used by the
// memory store backend and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

type rating struct {
	value     int
	updatedAt time.Time
}

type action struct {
	inst        domain.ActionInstance
	completed   bool
	completedAt time.Time
	fb          domain.Feedback
}

// Store keeps the catalog, profiles, actions and ratings in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]domain.Candidate
	profiles   map[string]domain.RawProfile
	actions    map[string]*action
	ratings    map[string]map[string]rating
	wildcards  []string
	now        func() time.Time
	// HistoryLimit bounds the history returned by LoadProfile.
	HistoryLimit int
}

// NewStore constructs an empty Store. wildcards lists target crops that match any crop.
func NewStore(wildcards []string) *Store {
	return &Store{
		candidates:   make(map[string]domain.Candidate),
		profiles:     make(map[string]domain.RawProfile),
		actions:      make(map[string]*action),
		ratings:      make(map[string]map[string]rating),
		wildcards:    wildcards,
		now:          time.Now,
		HistoryLimit: 50,
	}
}

// UpsertCandidate stores c after normalization.
func (s *Store) UpsertCandidate(ctx context.Context, c domain.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c = c.Normalize()
	if c.ID == "" || c.Name == "" {
		return fmt.Errorf("op=memory.UpsertCandidate: %w: id and name are required", domain.ErrInvalidArgument)
	}
	if !c.Category.Valid() {
		return fmt.Errorf("op=memory.UpsertCandidate: %w: unknown category %q", domain.ErrInvalidArgument, c.Category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = c
	return nil
}

// UpsertProfile replaces the profile records of p.UserID. History is ignored; it is
// derived from saved actions.
func (s *Store) UpsertProfile(ctx context.Context, p domain.RawProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("op=memory.UpsertProfile: %w: user id is required", domain.ErrInvalidArgument)
	}
	p.History = nil
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// FetchCandidates returns the candidates matching f, ordered by ID.
func (s *Store) FetchCandidates(ctx context.Context, f domain.CandidateFilter) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	crop := strings.ToLower(strings.TrimSpace(f.Crop))
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat := f.Category
	if p, err := domain.ParseCategory(string(cat)); err == nil {
		cat = p
	}
	out := make([]domain.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if f.VerifiedOnly && !c.Verified {
			continue
		}
		if f.Season != "" && !c.InSeason(f.Season) {
			continue
		}
		if crop != "" && !s.listsCrop(c, crop) {
			continue
		}
		if cat != "" && c.Category != cat {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) listsCrop(c domain.Candidate, crop string) bool {
	for _, tc := range c.TargetCrops {
		if tc == crop {
			return true
		}
		for _, w := range s.wildcards {
			if tc == w {
				return true
			}
		}
	}
	return false
}

// GetCandidate returns the candidate with id.
func (s *Store) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return domain.Candidate{}, fmt.Errorf("op=memory.GetCandidate: %w", domain.ErrNotFound)
	}
	return c, nil
}

// SaveActionInstance stores a. Saving an ID that already exists is a no-op.
func (s *Store) SaveActionInstance(ctx context.Context, userID string, a domain.ActionInstance) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("op=memory.SaveActionInstance: %w: %v", domain.ErrRepositoryWrite, err)
	}
	if a.ID == "" {
		return fmt.Errorf("op=memory.SaveActionInstance: %w: action id is required", domain.ErrInvalidArgument)
	}
	a.UserID = userID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; ok {
		return nil
	}
	s.actions[a.ID] = &action{inst: a}
	return nil
}

// MarkCompleted records completion feedback for actionID.
func (s *Store) MarkCompleted(ctx context.Context, actionID string, fb domain.Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[actionID]
	if !ok {
		return fmt.Errorf("op=memory.MarkCompleted: %w", domain.ErrNotFound)
	}
	a.completed = true
	a.completedAt = s.now().UTC()
	a.fb = fb
	return nil
}

// GetAction returns the stored action with id.
func (s *Store) GetAction(ctx context.Context, id string) (domain.ActionInstance, error) {
	if err := ctx.Err(); err != nil {
		return domain.ActionInstance{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return domain.ActionInstance{}, fmt.Errorf("op=memory.GetAction: %w", domain.ErrNotFound)
	}
	return a.inst, nil
}

// Completion returns the feedback recorded for actionID and whether it was completed.
func (s *Store) Completion(id string) (domain.Feedback, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok || !a.completed {
		return domain.Feedback{}, false
	}
	return a.fb, true
}

// RateCandidate records the latest rating of candidateID by userID.
func (s *Store) RateCandidate(ctx context.Context, candidateID, userID string, value int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[candidateID]; !ok {
		return fmt.Errorf("op=memory.RateCandidate: %w", domain.ErrNotFound)
	}
	byUser, ok := s.ratings[candidateID]
	if !ok {
		byUser = make(map[string]rating)
		s.ratings[candidateID] = byUser
	}
	byUser[userID] = rating{value: value, updatedAt: s.now().UTC()}
	return nil
}

// Rating returns the stored rating of candidateID by userID.
func (s *Store) Rating(candidateID, userID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[candidateID][userID]
	return r.value, ok
}

// LoadProfile returns the profile of userID with its history derived from saved catalog
// actions, newest first. An unknown user yields domain.ErrNotFound together with a profile
// that carries whatever history exists.
func (s *Store) LoadProfile(ctx context.Context, userID string) (domain.RawProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawProfile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = domain.RawProfile{UserID: userID}
	}
	p.Crops = append([]string(nil), p.Crops...)
	p.Issues = append([]string(nil), p.Issues...)
	p.Materials = append([]string(nil), p.Materials...)
	p.Fields = append([]domain.RawField(nil), p.Fields...)
	p.History = s.history(userID)
	if !ok {
		return p, fmt.Errorf("op=memory.LoadProfile: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (s *Store) history(userID string) []domain.HistoryEntry {
	var out []domain.HistoryEntry
	for _, a := range s.actions {
		if a.inst.UserID != userID || a.inst.SourceCandidateID == "" {
			continue
		}
		out = append(out, domain.HistoryEntry{CandidateID: a.inst.SourceCandidateID, At: a.inst.GeneratedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	if s.HistoryLimit > 0 && len(out) > s.HistoryLimit {
		out = out[:s.HistoryLimit]
	}
	return out
}

// Ping reports whether the store is usable.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
