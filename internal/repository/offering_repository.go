package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const offeringColumns = `id, teacher_id, course_id, grade_level, section, shift, academic_year, created_at`

// OfferingRepository reads course offerings. Offerings are created by the
// admin provisioning flow and never mutated here.
type OfferingRepository struct {
	db *sqlx.DB
}

// NewOfferingRepository creates a new offering repository.
func NewOfferingRepository(db *sqlx.DB) *OfferingRepository {
	return &OfferingRepository{db: db}
}

// GetByID fetches an offering by identifier.
func (r *OfferingRepository) GetByID(ctx context.Context, id string) (*models.CourseOffering, error) {
	query := fmt.Sprintf("SELECT %s FROM course_offerings WHERE id = $1", offeringColumns)
	var offering models.CourseOffering
	if err := r.db.GetContext(ctx, &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}

// GetTx fetches an offering within a transaction.
func (r *OfferingRepository) GetTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.CourseOffering, error) {
	query := fmt.Sprintf("SELECT %s FROM course_offerings WHERE id = $1", offeringColumns)
	var offering models.CourseOffering
	if err := sqlx.GetContext(ctx, q, &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}
