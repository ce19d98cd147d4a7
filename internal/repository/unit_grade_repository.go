package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const unitGradeColumns = `id, unit_id, student_id, zona_subtotal, final_subtotal, total, passed,
       consolidated_at, consolidated_by`

// UnitGradeRepository stores consolidated per-student unit results.
type UnitGradeRepository struct {
	db *sqlx.DB
}

// NewUnitGradeRepository creates a new unit grade repository.
func NewUnitGradeRepository(db *sqlx.DB) *UnitGradeRepository {
	return &UnitGradeRepository{db: db}
}

// Upsert writes a consolidated unit grade inside the closure transaction.
func (r *UnitGradeRepository) Upsert(ctx context.Context, q sqlx.ExtContext, grade *models.UnitGrade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	grade.ConsolidatedAt = time.Now().UTC()
	const query = `INSERT INTO unit_grades (id, unit_id, student_id, zona_subtotal, final_subtotal, total, passed,
        consolidated_at, consolidated_by)
        VALUES (:id, :unit_id, :student_id, :zona_subtotal, :final_subtotal, :total, :passed,
        :consolidated_at, :consolidated_by)
        ON CONFLICT (unit_id, student_id)
        DO UPDATE SET zona_subtotal = EXCLUDED.zona_subtotal,
            final_subtotal = EXCLUDED.final_subtotal,
            total = EXCLUDED.total,
            passed = EXCLUDED.passed,
            consolidated_at = EXCLUDED.consolidated_at,
            consolidated_by = EXCLUDED.consolidated_by`
	if _, err := sqlx.NamedExecContext(ctx, q, query, grade); err != nil {
		return fmt.Errorf("upsert unit grade: %w", err)
	}
	return nil
}

// ListByUnit returns the consolidated grades of a unit in student order.
func (r *UnitGradeRepository) ListByUnit(ctx context.Context, unitID string) ([]models.UnitGrade, error) {
	query := fmt.Sprintf("SELECT %s FROM unit_grades WHERE unit_id = $1 ORDER BY student_id", unitGradeColumns)
	var grades []models.UnitGrade
	if err := r.db.SelectContext(ctx, &grades, query, unitID); err != nil {
		return nil, fmt.Errorf("list unit grades: %w", err)
	}
	return grades, nil
}

// GetByUnitAndStudent fetches one consolidated grade.
func (r *UnitGradeRepository) GetByUnitAndStudent(ctx context.Context, unitID, studentID string) (*models.UnitGrade, error) {
	query := fmt.Sprintf("SELECT %s FROM unit_grades WHERE unit_id = $1 AND student_id = $2", unitGradeColumns)
	var grade models.UnitGrade
	if err := r.db.GetContext(ctx, &grade, query, unitID, studentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByStudent returns a student's consolidated grades across units.
func (r *UnitGradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.UnitGrade, error) {
	query := fmt.Sprintf("SELECT %s FROM unit_grades WHERE student_id = $1 ORDER BY consolidated_at", unitGradeColumns)
	var grades []models.UnitGrade
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student unit grades: %w", err)
	}
	return grades, nil
}
