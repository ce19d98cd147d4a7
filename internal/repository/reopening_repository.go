package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const reopeningColumns = `id, unit_id, teacher_id, reason, status, notes, decided_by,
       requested_at, decided_at, deactivated_unit_id`

// ReopeningRepository persists reopening request workflow data.
type ReopeningRepository struct {
	db *sqlx.DB
}

// NewReopeningRepository constructs the repository.
func NewReopeningRepository(db *sqlx.DB) *ReopeningRepository {
	return &ReopeningRepository{db: db}
}

// Create inserts a new pending request.
func (r *ReopeningRepository) Create(ctx context.Context, request *models.ReopeningRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ReopeningStatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reopening_requests
        (id, unit_id, teacher_id, reason, status, notes, decided_by, requested_at, decided_at, deactivated_unit_id)
        VALUES (:id, :unit_id, :teacher_id, :reason, :status, :notes, :decided_by, :requested_at, :decided_at, :deactivated_unit_id)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create reopening request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *ReopeningRepository) GetByID(ctx context.Context, id string) (*models.ReopeningRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM reopening_requests WHERE id = $1", reopeningColumns)
	var request models.ReopeningRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// HasPending reports whether the teacher already has a pending request for
// the unit.
func (r *ReopeningRepository) HasPending(ctx context.Context, unitID, teacherID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reopening_requests
        WHERE unit_id = $1 AND teacher_id = $2 AND status = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, unitID, teacherID, models.ReopeningStatusPending); err != nil {
		return false, fmt.Errorf("check pending reopening: %w", err)
	}
	return exists, nil
}

// ListByTeacher returns the teacher's requests, newest first.
func (r *ReopeningRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ReopeningRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM reopening_requests WHERE teacher_id = $1 ORDER BY requested_at DESC", reopeningColumns)
	var requests []models.ReopeningRequest
	if err := r.db.SelectContext(ctx, &requests, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher reopenings: %w", err)
	}
	return requests, nil
}

// ListPending returns all pending requests, oldest first for FIFO triage.
func (r *ReopeningRepository) ListPending(ctx context.Context) ([]models.ReopeningRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM reopening_requests WHERE status = $1 ORDER BY requested_at ASC", reopeningColumns)
	var requests []models.ReopeningRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.ReopeningStatusPending); err != nil {
		return nil, fmt.Errorf("list pending reopenings: %w", err)
	}
	return requests, nil
}

// Decide persists the review outcome. The status guard in the WHERE clause
// makes a second decision on the same request surface as sql.ErrNoRows.
func (r *ReopeningRepository) Decide(ctx context.Context, q sqlx.ExtContext, params models.ReopeningDecision) error {
	query := fmt.Sprintf(`UPDATE reopening_requests
        SET status = :status, decided_by = :decided_by, decided_at = :decided_at,
            notes = :notes, deactivated_unit_id = :deactivated_unit_id
        WHERE id = :id AND status = '%s'`, models.ReopeningStatusPending)
	result, err := sqlx.NamedExecContext(ctx, q, query, map[string]interface{}{
		"id":                  params.ID,
		"status":              params.Status,
		"decided_by":          params.DecidedBy,
		"decided_at":          params.DecidedAt,
		"notes":               params.Notes,
		"deactivated_unit_id": params.DeactivatedUnitID,
	})
	if err != nil {
		return fmt.Errorf("decide reopening request: %w", err)
	}
	return requireRowsAffected(result)
}
