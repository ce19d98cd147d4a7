package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

// GradeRepository handles per-activity student scores.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// GetByActivityAndStudent fetches a single grade row.
func (r *GradeRepository) GetByActivityAndStudent(ctx context.Context, activityID, studentID string) (*models.Grade, error) {
	const query = `SELECT id, activity_id, student_id, score, graded_by, created_at, updated_at
        FROM grades WHERE activity_id = $1 AND student_id = $2`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, activityID, studentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// UpsertScore inserts or updates a student's score on an activity.
func (r *GradeRepository) UpsertScore(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, activity_id, student_id, score, graded_by, created_at, updated_at)
        VALUES (:id, :activity_id, :student_id, :score, :graded_by, :created_at, :updated_at)
        ON CONFLICT (activity_id, student_id)
        DO UPDATE SET score = EXCLUDED.score, graded_by = EXCLUDED.graded_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// Seed creates ungraded rows for the given students on one activity.
// Existing rows are left untouched.
func (r *GradeRepository) Seed(ctx context.Context, q sqlx.ExtContext, activityID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	const query = `INSERT INTO grades (id, activity_id, student_id, score, graded_by, created_at, updated_at)
        VALUES ($1, $2, $3, NULL, NULL, $4, $4)
        ON CONFLICT (activity_id, student_id) DO NOTHING`
	for _, studentID := range studentIDs {
		if _, err := q.ExecContext(ctx, query, uuid.NewString(), activityID, studentID, now); err != nil {
			return fmt.Errorf("seed grade for student %s: %w", studentID, err)
		}
	}
	return nil
}

// SeedForStudent creates ungraded rows for one student across every activity
// of a unit, used when a student transfers into the group mid-period.
func (r *GradeRepository) SeedForStudent(ctx context.Context, q sqlx.ExtContext, unitID, studentID string) error {
	now := time.Now().UTC()
	const query = `INSERT INTO grades (id, activity_id, student_id, score, graded_by, created_at, updated_at)
        SELECT gen_random_uuid(), a.id, $2, NULL, NULL, $3, $3
        FROM activities a WHERE a.unit_id = $1
        ON CONFLICT (activity_id, student_id) DO NOTHING`
	if _, err := q.ExecContext(ctx, query, unitID, studentID, now); err != nil {
		return fmt.Errorf("seed grades for student: %w", err)
	}
	return nil
}

// FetchUnitRows returns every grade of a unit's active activities joined
// with the activity kind and max points, keyed by student.
func (r *GradeRepository) FetchUnitRows(ctx context.Context, q sqlx.ExtContext, unitID string) (map[string][]models.UnitGradeRow, error) {
	const query = `SELECT g.activity_id, g.student_id, a.kind, a.max_points, g.score
        FROM grades g
        JOIN activities a ON a.id = g.activity_id
        WHERE a.unit_id = $1 AND a.active = true
        ORDER BY g.student_id, a.created_at`
	rows, err := q.QueryxContext(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("fetch unit grades: %w", err)
	}
	defer rows.Close()
	result := make(map[string][]models.UnitGradeRow)
	for rows.Next() {
		var row models.UnitGradeRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan unit grade row: %w", err)
		}
		result[row.StudentID] = append(result[row.StudentID], row)
	}
	return result, rows.Err()
}
