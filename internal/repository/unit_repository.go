package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const unitColumns = `id, offering_id, sequence, zona_weight, final_weight, active, closed,
       grading_deadline, closed_at, closed_by, notifications_sent, created_at, updated_at`

// UnitRepository handles unit persistence.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository creates a new unit repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// Create inserts a new unit. Units are always created inactive.
func (r *UnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	unit.CreatedAt = now
	unit.UpdatedAt = now
	unit.Active = false
	unit.Closed = false
	const query = `INSERT INTO units (id, offering_id, sequence, zona_weight, final_weight, active, closed,
        grading_deadline, closed_at, closed_by, notifications_sent, created_at, updated_at)
        VALUES (:id, :offering_id, :sequence, :zona_weight, :final_weight, :active, :closed,
        :grading_deadline, :closed_at, :closed_by, :notifications_sent, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// GetByID fetches a unit by identifier.
func (r *UnitRepository) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE id = $1", unitColumns)
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// GetForUpdate fetches a unit inside a transaction with a row lock, so that
// concurrent closure and reopening decisions serialise on the unit row.
func (r *UnitRepository) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Unit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE id = $1 FOR UPDATE", unitColumns)
	var unit models.Unit
	if err := sqlx.GetContext(ctx, q, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ListByOffering returns the units of an offering ordered by sequence.
func (r *UnitRepository) ListByOffering(ctx context.Context, offeringID string) ([]models.Unit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE offering_id = $1 ORDER BY sequence", unitColumns)
	var units []models.Unit
	if err := r.db.SelectContext(ctx, &units, query, offeringID); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// FindActiveByOffering returns the currently active unit of an offering, or
// sql.ErrNoRows when none is active.
func (r *UnitRepository) FindActiveByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) (*models.Unit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE offering_id = $1 AND active = true FOR UPDATE", unitColumns)
	var unit models.Unit
	if err := sqlx.GetContext(ctx, q, &unit, query, offeringID); err != nil {
		return nil, err
	}
	return &unit, nil
}

// FindBySequence fetches the unit with the given sequence within an offering.
func (r *UnitRepository) FindBySequence(ctx context.Context, q sqlx.ExtContext, offeringID string, sequence int) (*models.Unit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE offering_id = $1 AND sequence = $2", unitColumns)
	var unit models.Unit
	if err := sqlx.GetContext(ctx, q, &unit, query, offeringID, sequence); err != nil {
		return nil, err
	}
	return &unit, nil
}

// Activate flips a unit to active. The caller must have deactivated any other
// active unit of the offering inside the same transaction.
func (r *UnitRepository) Activate(ctx context.Context, q sqlx.ExtContext, id string) error {
	const query = `UPDATE units SET active = true, updated_at = $2 WHERE id = $1 AND closed = false`
	result, err := q.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activate unit: %w", err)
	}
	return requireRowsAffected(result)
}

// Deactivate clears the active flag of a unit.
func (r *UnitRepository) Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error {
	const query = `UPDATE units SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate unit: %w", err)
	}
	return nil
}

// MarkClosed flips the lifecycle flags of an open, active unit. The guard in
// the WHERE clause makes double-closure surface as sql.ErrNoRows.
func (r *UnitRepository) MarkClosed(ctx context.Context, q sqlx.ExtContext, id, closedBy string) error {
	now := time.Now().UTC()
	const query = `UPDATE units SET active = false, closed = true, closed_at = $2, closed_by = $3, updated_at = $2
        WHERE id = $1 AND active = true AND closed = false`
	result, err := q.ExecContext(ctx, query, id, now, closedBy)
	if err != nil {
		return fmt.Errorf("close unit: %w", err)
	}
	return requireRowsAffected(result)
}

// Reopen reactivates a closed unit and clears its closure metadata. Guarded
// on closed = true so approving a stale request surfaces as sql.ErrNoRows.
func (r *UnitRepository) Reopen(ctx context.Context, q sqlx.ExtContext, id string) error {
	const query = `UPDATE units SET active = true, closed = false, closed_at = NULL, closed_by = NULL, updated_at = $2
        WHERE id = $1 AND closed = true`
	result, err := q.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reopen unit: %w", err)
	}
	return requireRowsAffected(result)
}

// SetNotificationsSent records that notification generation ran for the unit.
func (r *UnitRepository) SetNotificationsSent(ctx context.Context, id string, sent bool) error {
	const query = `UPDATE units SET notifications_sent = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sent, time.Now().UTC()); err != nil {
		return fmt.Errorf("set notifications sent: %w", err)
	}
	return nil
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
