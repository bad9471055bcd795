package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/organic-advisor/internal/config"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Recommender is the application API served over HTTP.
type Recommender interface {
	GetDailyAction(ctx context.Context, userID string) (domain.ActionInstance, error)
	SearchCandidates(ctx context.Context, q domain.SearchQuery) ([]domain.RankedCandidate, error)
	RateCandidate(ctx context.Context, candidateID, userID string, rating int) error
	CompleteAction(ctx context.Context, actionID string, fb domain.Feedback) error
	InvalidateContext(ctx context.Context, userID string) error
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Recommend  Recommender
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with its handlers and readiness checks. Nil checks
// are skipped.
func NewServer(cfg config.Config, rec Recommender, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Recommend: rec, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

const maxBodyBytes = 64 << 10

// validationDetails flattens validator errors into field -> failed tag.
func validationDetails(err error) map[string]string {
	out := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return out
}

// acceptsJSON writes 406 and returns false when the client refuses JSON.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") && !strings.Contains(a, "application/*") {
		writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
		return false
	}
	return true
}

type pathID struct {
	ID string `validate:"required,max=128,printascii"`
}

func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, name))
	if err := getValidator().Struct(pathID{ID: id}); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid %s", domain.ErrInvalidArgument, name), nil)
		return "", false
	}
	return id, true
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	return nil
}

// DailyActionHandler returns today's action for the user in the path.
func (s *Server) DailyActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		userID, ok := s.pathParam(w, r, "userID")
		if !ok {
			return
		}
		a, err := s.Recommend.GetDailyAction(r.Context(), userID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=0")
		writeJSON(w, http.StatusOK, a)
	}
}

// ContextChangedHandler drops the user's cached action.
func (s *Server) ContextChangedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.pathParam(w, r, "userID")
		if !ok {
			return
		}
		if err := s.Recommend.InvalidateContext(r.Context(), userID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type searchParams struct {
	Crop     string   `validate:"max=64"`
	Issues   []string `validate:"max=20,dive,max=128"`
	Category string   `validate:"max=32"`
	Limit    int      `validate:"min=0,max=50"`
}

type searchResponse struct {
	Candidates []domain.RankedCandidate `json:"candidates"`
	Count      int                      `json:"count"`
}

// SearchCandidatesHandler ranks verified candidates for ?crop=&issues=a,b&category=&limit=.
func (s *Server) SearchCandidatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		q := r.URL.Query()
		p := searchParams{Crop: strings.TrimSpace(q.Get("crop")), Category: strings.TrimSpace(q.Get("category"))}
		for _, raw := range q["issues"] {
			for _, issue := range strings.Split(raw, ",") {
				if issue = strings.TrimSpace(issue); issue != "" {
					p.Issues = append(p.Issues, issue)
				}
			}
		}
		if l := strings.TrimSpace(q.Get("limit")); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidArgument), map[string]string{"limit": "int"})
				return
			}
			p.Limit = n
		}
		if err := getValidator().Struct(p); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		query := domain.SearchQuery{Crop: p.Crop, Issues: p.Issues, Limit: p.Limit}
		if p.Category != "" {
			cat, err := domain.ParseCategory(p.Category)
			if err != nil {
				writeError(w, r, err, map[string]string{"category": "oneof"})
				return
			}
			query.Category = cat
		}
		ranked, err := s.Recommend.SearchCandidates(r.Context(), query)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if ranked == nil {
			ranked = []domain.RankedCandidate{}
		}
		writeJSON(w, http.StatusOK, searchResponse{Candidates: ranked, Count: len(ranked)})
	}
}

type rateRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
}

// RateCandidateHandler stores a user's rating of a candidate.
func (s *Server) RateCandidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		candidateID, ok := s.pathParam(w, r, "candidateID")
		if !ok {
			return
		}
		var req rateRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		if err := s.Recommend.RateCandidate(r.Context(), candidateID, strings.TrimSpace(req.UserID), req.Rating); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type completeRequest struct {
	Rating int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// CompleteActionHandler marks an action as done with optional feedback.
func (s *Server) CompleteActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actionID, ok := s.pathParam(w, r, "actionID")
		if !ok {
			return
		}
		var req completeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		fb := domain.Feedback{Rating: req.Rating, Notes: strings.TrimSpace(req.Notes)}
		if err := s.Recommend.CompleteAction(r.Context(), actionID, fb); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type readinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// ReadyzHandler probes the configured dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name  string
			check func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}

		checks := make([]readinessCheck, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.check == nil {
				continue
			}
			c := readinessCheck{Name: p.name, OK: true}
			if err := p.check(ctx); err != nil {
				c.OK, c.Details, ok = false, err.Error(), false
			}
			checks = append(checks, c)
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
