package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const activityColumns = `id, unit_id, kind, name, max_points, active, created_at, updated_at`

// ActivityRepository handles activity persistence.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts a new activity within a transaction, so grade seeding for
// enrolled students commits atomically with it.
func (r *ActivityRepository) Create(ctx context.Context, q sqlx.ExtContext, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	activity.CreatedAt = now
	activity.UpdatedAt = now
	activity.Active = true
	const query = `INSERT INTO activities (id, unit_id, kind, name, max_points, active, created_at, updated_at)
        VALUES (:id, :unit_id, :kind, :name, :max_points, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// GetByID fetches an activity by identifier.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*models.Activity, error) {
	query := fmt.Sprintf("SELECT %s FROM activities WHERE id = $1", activityColumns)
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListActiveByUnit returns the active activities of a unit.
func (r *ActivityRepository) ListActiveByUnit(ctx context.Context, q sqlx.ExtContext, unitID string) ([]models.Activity, error) {
	query := fmt.Sprintf("SELECT %s FROM activities WHERE unit_id = $1 AND active = true ORDER BY created_at", activityColumns)
	var activities []models.Activity
	if err := sqlx.SelectContext(ctx, q, &activities, query, unitID); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// SumActiveMaxPoints sums the max points of active activities of a kind.
func (r *ActivityRepository) SumActiveMaxPoints(ctx context.Context, q sqlx.ExtContext, unitID string, kind models.ActivityKind) (float64, error) {
	const query = `SELECT COALESCE(SUM(max_points), 0) FROM activities
        WHERE unit_id = $1 AND kind = $2 AND active = true`
	var sum float64
	if err := sqlx.GetContext(ctx, q, &sum, query, unitID, kind); err != nil {
		return 0, fmt.Errorf("sum activity points: %w", err)
	}
	return sum, nil
}

// Update persists name and max points of an activity. The service layer
// guards against updates once scores exist.
func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) error {
	activity.UpdatedAt = time.Now().UTC()
	const query = `UPDATE activities SET name = :name, max_points = :max_points, kind = :kind, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, activity)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return requireRowsAffected(result)
}

// SetActive toggles the active flag.
func (r *ActivityRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE activities SET active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set activity active: %w", err)
	}
	return requireRowsAffected(result)
}

// HasScores reports whether any student already has a non-null score on the
// activity, which freezes its configuration.
func (r *ActivityRepository) HasScores(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM grades WHERE activity_id = $1 AND score IS NOT NULL)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check activity scores: %w", err)
	}
	return exists, nil
}
