package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// defaultHistoryLimit caps the history rows loaded per profile.
const defaultHistoryLimit = 50

// ProfileRepo loads the raw records a UserContext is built from. History is derived from
// the catalog actions already recommended to the user.
type ProfileRepo struct {
	Pool         PgxPool
	HistoryLimit int
}

// NewProfileRepo constructs a ProfileRepo with the given pool.
func NewProfileRepo(p PgxPool) *ProfileRepo {
	return &ProfileRepo{Pool: p, HistoryLimit: defaultHistoryLimit}
}

// LoadProfile returns ErrNotFound when the user has no profile row. Field and history
// rows are loaded in the same call.
func (r *ProfileRepo) LoadProfile(ctx domain.Context, userID string) (domain.RawProfile, error) {
	tracer := otel.Tracer("repo.profiles")
	ctx, span := tracer.Start(ctx, "profiles.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "user_profiles"),
	)

	p := domain.RawProfile{UserID: userID}
	var farmSize *float64
	err := r.Pool.QueryRow(ctx, `SELECT region, crops, issues, farm_size, materials FROM user_profiles WHERE user_id=$1`, userID).
		Scan(&p.Region, &p.Crops, &p.Issues, &farmSize, &p.Materials)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, fmt.Errorf("op=profile.load: %w: %s", domain.ErrNotFound, userID)
	}
	if err != nil {
		return p, fmt.Errorf("op=profile.load: %w", err)
	}
	if farmSize != nil {
		p.FarmSize = *farmSize
	}

	if p.Fields, err = r.loadFields(ctx, userID); err != nil {
		return p, err
	}
	if p.History, err = r.loadHistory(ctx, userID); err != nil {
		return p, err
	}
	return p, nil
}

func (r *ProfileRepo) loadFields(ctx domain.Context, userID string) ([]domain.RawField, error) {
	rows, err := r.Pool.Query(ctx, `SELECT crop, issues, size_ha FROM user_fields WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("op=profile.fields: %w", err)
	}
	defer rows.Close()
	var out []domain.RawField
	for rows.Next() {
		var f domain.RawField
		if err := rows.Scan(&f.Crop, &f.Issues, &f.SizeHa); err != nil {
			return nil, fmt.Errorf("op=profile.fields: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=profile.fields: %w", err)
	}
	return out, nil
}

func (r *ProfileRepo) loadHistory(ctx domain.Context, userID string) ([]domain.HistoryEntry, error) {
	limit := r.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := r.Pool.Query(ctx, `SELECT source_candidate_id, generated_at FROM action_instances
	WHERE user_id=$1 AND source_candidate_id IS NOT NULL ORDER BY generated_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=profile.history: %w", err)
	}
	defer rows.Close()
	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.CandidateID, &h.At); err != nil {
			return nil, fmt.Errorf("op=profile.history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=profile.history: %w", err)
	}
	return out, nil
}

// UpsertProfile replaces a user's profile and field rows in one transaction. History is
// not written here; it follows from saved actions.
func (r *ProfileRepo) UpsertProfile(ctx domain.Context, p domain.RawProfile) (err error) {
	tracer := otel.Tracer("repo.profiles")
	ctx, span := tracer.Start(ctx, "profiles.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "user_profiles"),
	)
	if p.UserID == "" {
		return fmt.Errorf("op=profile.upsert: %w: user id required", domain.ErrInvalidArgument)
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=profile.upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var farmSize *float64
	if p.FarmSize > 0 {
		farmSize = &p.FarmSize
	}
	_, err = tx.Exec(ctx, `INSERT INTO user_profiles (user_id, region, crops, issues, farm_size, materials, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (user_id) DO UPDATE SET region=EXCLUDED.region, crops=EXCLUDED.crops, issues=EXCLUDED.issues,
	farm_size=EXCLUDED.farm_size, materials=EXCLUDED.materials, updated_at=EXCLUDED.updated_at`,
		p.UserID, p.Region, nonNil(p.Crops), nonNil(p.Issues), farmSize, nonNil(p.Materials), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=profile.upsert: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM user_fields WHERE user_id=$1`, p.UserID); err != nil {
		return fmt.Errorf("op=profile.upsert: %w", err)
	}
	for _, f := range p.Fields {
		if _, err = tx.Exec(ctx, `INSERT INTO user_fields (user_id, crop, issues, size_ha) VALUES ($1,$2,$3,$4)`,
			p.UserID, f.Crop, nonNil(f.Issues), f.SizeHa); err != nil {
			return fmt.Errorf("op=profile.upsert: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=profile.upsert: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
