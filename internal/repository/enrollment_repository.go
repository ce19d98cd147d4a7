package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

// EnrollmentRepository resolves the students enrolled in an offering.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListStudentIDsByOffering returns the enrolled student IDs in ascending
// order, so batch consolidation is deterministic.
func (r *EnrollmentRepository) ListStudentIDsByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments
        WHERE offering_id = $1 AND status = $2 ORDER BY student_id`
	var ids []string
	if err := sqlx.SelectContext(ctx, q, &ids, query, offeringID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return ids, nil
}
