package postgres

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

const candidateColumns = `id, name, description, category, target_crops, target_issues, ingredients, steps,
	effectiveness, cost_per_unit, organic_compliance, seasons, verified, time_to_result`

// CandidateRepo reads and seeds the catalog.
type CandidateRepo struct {
	Pool PgxPool
	// Wildcards are target-crop values that match every crop.
	Wildcards []string
}

// NewCandidateRepo constructs a CandidateRepo with the given pool.
func NewCandidateRepo(p PgxPool, wildcards []string) *CandidateRepo {
	return &CandidateRepo{Pool: p, Wildcards: wildcards}
}

// FetchCandidates returns catalog rows matching f ordered by id.
func (r *CandidateRepo) FetchCandidates(ctx domain.Context, f domain.CandidateFilter) ([]domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "candidates"),
		attribute.String("filter.crop", f.Crop),
		attribute.String("filter.season", string(f.Season)),
	)

	q, args := buildFetchQuery(f, r.Wildcards)
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=candidate.fetch: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("op=candidate.fetch: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=candidate.fetch: %w", err)
	}
	span.SetAttributes(attribute.Int("result.count", len(out)))
	return out, nil
}

func buildFetchQuery(f domain.CandidateFilter, wildcards []string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.VerifiedOnly {
		conds = append(conds, "verified")
	}
	if f.Season != "" {
		args = append(args, string(f.Season))
		conds = append(conds, fmt.Sprintf("(cardinality(seasons) = 0 OR $%d = ANY(seasons) OR 'all' = ANY(seasons))", len(args)))
	}
	if f.Crop != "" {
		if wildcards == nil {
			wildcards = []string{}
		}
		args = append(args, strings.ToLower(strings.TrimSpace(f.Crop)), wildcards)
		conds = append(conds, fmt.Sprintf("($%d = ANY(target_crops) OR target_crops && $%d::text[])", len(args)-1, len(args)))
	}
	if f.Category != "" {
		cat := f.Category
		if p, err := domain.ParseCategory(string(cat)); err == nil {
			cat = p
		}
		args = append(args, string(cat))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	q := "SELECT " + candidateColumns + " FROM candidates"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q + " ORDER BY id", args
}

// GetCandidate loads one candidate by id.
func (r *CandidateRepo) GetCandidate(ctx domain.Context, id string) (domain.Candidate, error) {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "candidates"),
	)
	row := r.Pool.QueryRow(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE id=$1", id)
	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Candidate{}, fmt.Errorf("op=candidate.get: %w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("op=candidate.get: %w", err)
	}
	return c, nil
}

// UpsertCandidate inserts or replaces a catalog entry. Used by the seeder.
func (r *CandidateRepo) UpsertCandidate(ctx domain.Context, c domain.Candidate) error {
	tracer := otel.Tracer("repo.candidates")
	ctx, span := tracer.Start(ctx, "candidates.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "candidates"),
	)
	c = c.Normalize()
	if c.ID == "" || c.Name == "" {
		return fmt.Errorf("op=candidate.upsert: %w: id and name are required", domain.ErrInvalidArgument)
	}
	if !c.Category.Valid() {
		return fmt.Errorf("op=candidate.upsert: %w: unknown category %q", domain.ErrInvalidArgument, c.Category)
	}
	ings, err := json.Marshal(c.Ingredients)
	if err != nil {
		return fmt.Errorf("op=candidate.upsert: %w", err)
	}
	q := `INSERT INTO candidates (` + candidateColumns + `, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description, category=EXCLUDED.category,
	target_crops=EXCLUDED.target_crops, target_issues=EXCLUDED.target_issues, ingredients=EXCLUDED.ingredients,
	steps=EXCLUDED.steps, effectiveness=EXCLUDED.effectiveness, cost_per_unit=EXCLUDED.cost_per_unit,
	organic_compliance=EXCLUDED.organic_compliance, seasons=EXCLUDED.seasons, verified=EXCLUDED.verified,
	time_to_result=EXCLUDED.time_to_result, updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q,
		c.ID, c.Name, c.Description, string(c.Category), c.TargetCrops, c.TargetIssues, ings, c.Steps,
		c.Effectiveness, c.CostPerUnit, c.OrganicCompliance, seasonsToStrings(c.Seasons), c.Verified, c.TimeToResult,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=candidate.upsert: %w", err)
	}
	return nil
}

func scanCandidate(row pgx.Row) (domain.Candidate, error) {
	var (
		c        domain.Candidate
		category string
		ings     []byte
		seasons  []string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &category, &c.TargetCrops, &c.TargetIssues, &ings, &c.Steps,
		&c.Effectiveness, &c.CostPerUnit, &c.OrganicCompliance, &seasons, &c.Verified, &c.TimeToResult); err != nil {
		return domain.Candidate{}, err
	}
	c.Category = domain.Category(category)
	for _, s := range seasons {
		c.Seasons = append(c.Seasons, domain.Season(s))
	}
	var err error
	if c.Ingredients, err = decodeIngredients(ings); err != nil {
		return domain.Candidate{}, fmt.Errorf("candidate %s: %w", c.ID, err)
	}
	// rows written before the category constraint may still carry aliases
	return c.Normalize(), nil
}

// decodeIngredients rejects unknown fields so schema drift surfaces at the boundary.
func decodeIngredients(b []byte) ([]domain.Ingredient, error) {
	if len(b) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var out []domain.Ingredient
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("ingredients: %w", err)
	}
	return out, nil
}

func seasonsToStrings(in []domain.Season) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
