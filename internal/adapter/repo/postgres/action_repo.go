package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

const actionColumns = `id, user_id, source, source_candidate_id, title, description, category, ingredients, steps,
	urgency, estimated_cost_savings, estimated_time_to_result, organic_compliance, match_score, context_day, generated_at`

// ActionRepo persists materialized actions.
type ActionRepo struct{ Pool PgxPool }

// NewActionRepo constructs an ActionRepo with the given pool.
func NewActionRepo(p PgxPool) *ActionRepo { return &ActionRepo{Pool: p} }

// SaveActionInstance stores a. Catalog action IDs are deterministic per user and day, so
// saving the same action twice keeps the first row.
func (r *ActionRepo) SaveActionInstance(ctx domain.Context, userID string, a domain.ActionInstance) error {
	tracer := otel.Tracer("repo.actions")
	ctx, span := tracer.Start(ctx, "actions.Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "action_instances"),
	)
	day, err := time.Parse(domain.DayLayout, a.ContextDay)
	if err != nil {
		return fmt.Errorf("op=action.save: %w: context day %q", domain.ErrRepositoryWrite, a.ContextDay)
	}
	ings, err := json.Marshal(a.Ingredients)
	if err != nil {
		return fmt.Errorf("op=action.save: %w: %v", domain.ErrRepositoryWrite, err)
	}
	var candidateID *string
	if a.SourceCandidateID != "" {
		candidateID = &a.SourceCandidateID
	}
	q := `INSERT INTO action_instances (` + actionColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (id) DO NOTHING`
	_, err = r.Pool.Exec(ctx, q,
		a.ID, userID, string(a.Source), candidateID, a.Title, a.Description, string(a.Category), ings, a.Steps,
		string(a.Urgency), a.EstimatedCostSavings, a.EstimatedTimeToResult, a.OrganicCompliance, a.MatchScore,
		day, a.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("op=action.save: %w: %v", domain.ErrRepositoryWrite, err)
	}
	return nil
}

// MarkCompleted records completion feedback. A zero rating is stored as NULL.
func (r *ActionRepo) MarkCompleted(ctx domain.Context, actionID string, fb domain.Feedback) error {
	tracer := otel.Tracer("repo.actions")
	ctx, span := tracer.Start(ctx, "actions.MarkCompleted")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "action_instances"),
	)
	var rating *int
	if fb.Rating != 0 {
		rating = &fb.Rating
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE action_instances SET completed_at=$2, rating=$3, notes=$4 WHERE id=$1`,
		actionID, time.Now().UTC(), rating, fb.Notes)
	if err != nil {
		return fmt.Errorf("op=action.complete: %w: %v", domain.ErrRepositoryWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=action.complete: %w: %s", domain.ErrNotFound, actionID)
	}
	return nil
}

// GetAction loads one action by id.
func (r *ActionRepo) GetAction(ctx domain.Context, id string) (domain.ActionInstance, error) {
	tracer := otel.Tracer("repo.actions")
	ctx, span := tracer.Start(ctx, "actions.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "action_instances"),
	)
	var (
		a           domain.ActionInstance
		source      string
		candidateID *string
		category    string
		ings        []byte
		urgency     string
		day         time.Time
	)
	err := r.Pool.QueryRow(ctx, "SELECT "+actionColumns+" FROM action_instances WHERE id=$1", id).Scan(
		&a.ID, &a.UserID, &source, &candidateID, &a.Title, &a.Description, &category, &ings, &a.Steps,
		&urgency, &a.EstimatedCostSavings, &a.EstimatedTimeToResult, &a.OrganicCompliance, &a.MatchScore,
		&day, &a.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ActionInstance{}, fmt.Errorf("op=action.get: %w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.ActionInstance{}, fmt.Errorf("op=action.get: %w", err)
	}
	a.Source = domain.ActionSource(source)
	if candidateID != nil {
		a.SourceCandidateID = *candidateID
	}
	a.Category = domain.Category(category)
	a.Urgency = domain.Urgency(urgency)
	a.ContextDay = day.Format(domain.DayLayout)
	if len(ings) > 0 {
		if err := json.Unmarshal(ings, &a.Ingredients); err != nil {
			return domain.ActionInstance{}, fmt.Errorf("op=action.get: ingredients: %w", err)
		}
	}
	return a, nil
}
