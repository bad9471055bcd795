package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// pgForeignKeyViolation is the SQLSTATE for a missing referenced row.
const pgForeignKeyViolation = "23503"

// RatingRepo stores one rating per (candidate, user); re-rating replaces it.
type RatingRepo struct{ Pool PgxPool }

// NewRatingRepo constructs a RatingRepo with the given pool.
func NewRatingRepo(p PgxPool) *RatingRepo { return &RatingRepo{Pool: p} }

// RateCandidate upserts the user's rating. An unknown candidate yields ErrNotFound.
func (r *RatingRepo) RateCandidate(ctx domain.Context, candidateID, userID string, rating int) error {
	tracer := otel.Tracer("repo.ratings")
	ctx, span := tracer.Start(ctx, "ratings.Rate")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "candidate_ratings"),
	)
	q := `INSERT INTO candidate_ratings (candidate_id, user_id, rating, created_at) VALUES ($1,$2,$3,$4)
	ON CONFLICT (candidate_id, user_id) DO UPDATE SET rating=EXCLUDED.rating, created_at=EXCLUDED.created_at`
	_, err := r.Pool.Exec(ctx, q, candidateID, userID, rating, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("op=rating.rate: %w: candidate %s", domain.ErrNotFound, candidateID)
		}
		return fmt.Errorf("op=rating.rate: %w: %v", domain.ErrRepositoryWrite, err)
	}
	return nil
}
