package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/policy"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type reopeningStore interface {
	Create(ctx context.Context, request *models.ReopeningRequest) error
	GetByID(ctx context.Context, id string) (*models.ReopeningRequest, error)
	HasPending(ctx context.Context, unitID, teacherID string) (bool, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ReopeningRequest, error)
	ListPending(ctx context.Context) ([]models.ReopeningRequest, error)
	Decide(ctx context.Context, q sqlx.ExtContext, params models.ReopeningDecision) error
}

type reopeningUnitStore interface {
	GetByID(ctx context.Context, id string) (*models.Unit, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Unit, error)
	FindActiveByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) (*models.Unit, error)
	Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error
	Reopen(ctx context.Context, q sqlx.ExtContext, id string) error
}

// CreateReopeningRequest is a teacher's petition payload.
type CreateReopeningRequest struct {
	UnitID string `json:"unit_id" validate:"required"`
	Reason string `json:"reason" validate:"required,min=5,max=1000"`
}

// ProcessReopeningRequest is the reviewer's decision payload.
type ProcessReopeningRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Notes    *string `json:"notes" validate:"omitempty,max=1000"`
}

// ReopeningService runs the request and review workflow for reactivating a
// closed unit. Approval reopens the unit and deactivates any other active
// unit of the offering in the same transaction.
type ReopeningService struct {
	db         *sqlx.DB
	reopenings reopeningStore
	units      reopeningUnitStore
	offerings  gradeOfferingReader
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewReopeningService constructs a ReopeningService.
func NewReopeningService(db *sqlx.DB, reopenings reopeningStore, units reopeningUnitStore,
	offerings gradeOfferingReader, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ReopeningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReopeningService{
		db:         db,
		reopenings: reopenings,
		units:      units,
		offerings:  offerings,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
	}
}

// Request files a reopening petition for a closed unit the caller teaches.
func (s *ReopeningService) Request(ctx context.Context, claims *models.JWTClaims, req CreateReopeningRequest) (*models.ReopeningRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reopening payload")
	}

	unit, err := s.units.GetByID(ctx, req.UnitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	if !unit.Closed {
		return nil, appErrors.Clone(appErrors.ErrNotClosed, "only a closed unit can be reopened")
	}

	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}
	owns := claims != nil && claims.UserID == offering.TeacherID
	if claims == nil || !policy.Can(policy.ActionRequestReopening, claims.Role, owns) {
		return nil, appErrors.ErrForbidden
	}

	pending, err := s.reopenings.HasPending(ctx, unit.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePending, "a pending reopening request already exists for this unit")
	}

	request := &models.ReopeningRequest{
		UnitID:    unit.ID,
		TeacherID: claims.UserID,
		Reason:    req.Reason,
	}
	if err := s.reopenings.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create reopening request")
	}
	s.logger.Info("reopening requested",
		zap.String("request_id", request.ID),
		zap.String("unit_id", unit.ID),
		zap.String("teacher_id", claims.UserID))
	return request, nil
}

// Process approves or rejects a pending request. Approval reopens the unit;
// both outcomes are terminal.
func (s *ReopeningService) Process(ctx context.Context, claims *models.JWTClaims, requestID string, req ProcessReopeningRequest) (*models.ReopeningRequest, error) {
	if claims == nil || !policy.Can(policy.ActionProcessReopening, claims.Role, false) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	request, err := s.reopenings.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reopening request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load reopening request")
	}
	if request.Status != models.ReopeningStatusPending {
		return nil, appErrors.ErrNotPending
	}

	decision := models.ReopeningDecision{
		ID:        request.ID,
		Status:    models.ReopeningStatus(req.Decision),
		DecidedBy: claims.UserID,
		DecidedAt: time.Now().UTC(),
		Notes:     req.Notes,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if decision.Status == models.ReopeningStatusApproved {
		deactivatedID, err := s.reopenUnit(ctx, tx, request.UnitID)
		if err != nil {
			return nil, err
		}
		decision.DeactivatedUnitID = deactivatedID
	}

	if err := s.reopenings.Decide(ctx, tx, decision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotPending
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store decision")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit decision")
	}

	s.metrics.RecordReopeningDecision(string(decision.Status))
	s.logger.Info("reopening processed",
		zap.String("request_id", request.ID),
		zap.String("decision", string(decision.Status)),
		zap.String("decided_by", claims.UserID))

	request.Status = decision.Status
	request.DecidedBy = &decision.DecidedBy
	request.DecidedAt = &decision.DecidedAt
	request.Notes = decision.Notes
	request.DeactivatedUnitID = decision.DeactivatedUnitID
	return request, nil
}

// ListMine returns the caller's requests, newest first.
func (s *ReopeningService) ListMine(ctx context.Context, claims *models.JWTClaims) ([]models.ReopeningRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	requests, err := s.reopenings.ListByTeacher(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list requests")
	}
	return requests, nil
}

// ListPending returns every pending request, oldest first.
func (s *ReopeningService) ListPending(ctx context.Context, claims *models.JWTClaims) ([]models.ReopeningRequest, error) {
	if claims == nil || !policy.Can(policy.ActionListReopenings, claims.Role, false) {
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.reopenings.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list pending requests")
	}
	return requests, nil
}

// reopenUnit reactivates the closed unit, first deactivating any other
// active unit of the offering. Returns the deactivated unit's ID, if any.
func (s *ReopeningService) reopenUnit(ctx context.Context, tx sqlx.ExtContext, unitID string) (*string, error) {
	unit, err := s.units.GetForUpdate(ctx, tx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	if !unit.Closed {
		return nil, appErrors.Clone(appErrors.ErrNotClosed, "unit is no longer closed")
	}

	var deactivatedID *string
	current, err := s.units.FindActiveByOffering(ctx, tx, unit.OfferingID)
	switch {
	case err == nil:
		if err := s.units.Deactivate(ctx, tx, current.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "deactivate active unit")
		}
		deactivatedID = &current.ID
	case errors.Is(err, sql.ErrNoRows):
		// Nothing active; the reopened unit simply takes over.
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "find active unit")
	}

	if err := s.units.Reopen(ctx, tx, unit.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotClosed, "unit is no longer closed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "reopen unit")
	}
	return deactivatedID, nil
}
