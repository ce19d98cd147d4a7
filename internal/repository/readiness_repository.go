package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const readinessColumns = `id, unit_id, course_id, activities_sum_to_100, current_activity_sum,
       total_enrolled, total_fully_graded, percent_complete, status, detail, computed_at`

// ReadinessRepository stores the cached course readiness rows.
type ReadinessRepository struct {
	db *sqlx.DB
}

// NewReadinessRepository creates a new readiness repository.
func NewReadinessRepository(db *sqlx.DB) *ReadinessRepository {
	return &ReadinessRepository{db: db}
}

// Upsert writes the readiness row for a (unit, course) pair, last write wins.
func (r *ReadinessRepository) Upsert(ctx context.Context, q sqlx.ExtContext, readiness *models.CourseReadiness) error {
	if readiness.ID == "" {
		readiness.ID = uuid.NewString()
	}
	readiness.ComputedAt = time.Now().UTC()
	const query = `INSERT INTO course_readiness (id, unit_id, course_id, activities_sum_to_100, current_activity_sum,
        total_enrolled, total_fully_graded, percent_complete, status, detail, computed_at)
        VALUES (:id, :unit_id, :course_id, :activities_sum_to_100, :current_activity_sum,
        :total_enrolled, :total_fully_graded, :percent_complete, :status, :detail, :computed_at)
        ON CONFLICT (unit_id, course_id)
        DO UPDATE SET activities_sum_to_100 = EXCLUDED.activities_sum_to_100,
            current_activity_sum = EXCLUDED.current_activity_sum,
            total_enrolled = EXCLUDED.total_enrolled,
            total_fully_graded = EXCLUDED.total_fully_graded,
            percent_complete = EXCLUDED.percent_complete,
            status = EXCLUDED.status,
            detail = EXCLUDED.detail,
            computed_at = EXCLUDED.computed_at`
	if _, err := sqlx.NamedExecContext(ctx, q, query, readiness); err != nil {
		return fmt.Errorf("upsert readiness: %w", err)
	}
	return nil
}

// Get fetches the cached readiness row for a (unit, course) pair.
func (r *ReadinessRepository) Get(ctx context.Context, unitID, courseID string) (*models.CourseReadiness, error) {
	query := fmt.Sprintf("SELECT %s FROM course_readiness WHERE unit_id = $1 AND course_id = $2", readinessColumns)
	var readiness models.CourseReadiness
	if err := r.db.GetContext(ctx, &readiness, query, unitID, courseID); err != nil {
		return nil, err
	}
	return &readiness, nil
}

// ListByUnit returns every cached readiness row of a unit.
func (r *ReadinessRepository) ListByUnit(ctx context.Context, unitID string) ([]models.CourseReadiness, error) {
	query := fmt.Sprintf("SELECT %s FROM course_readiness WHERE unit_id = $1 ORDER BY course_id", readinessColumns)
	var rows []models.CourseReadiness
	if err := r.db.SelectContext(ctx, &rows, query, unitID); err != nil {
		return nil, fmt.Errorf("list readiness: %w", err)
	}
	return rows, nil
}
