package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/policy"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type unitStore interface {
	Create(ctx context.Context, unit *models.Unit) error
	GetByID(ctx context.Context, id string) (*models.Unit, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Unit, error)
	ListByOffering(ctx context.Context, offeringID string) ([]models.Unit, error)
	FindActiveByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) (*models.Unit, error)
	FindBySequence(ctx context.Context, q sqlx.ExtContext, offeringID string, sequence int) (*models.Unit, error)
	Activate(ctx context.Context, q sqlx.ExtContext, id string) error
	Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error
}

// CreateUnitRequest configures one grading period of an offering.
type CreateUnitRequest struct {
	OfferingID      string     `json:"offering_id" validate:"required"`
	Sequence        int        `json:"sequence" validate:"required,min=1,max=4"`
	ZonaWeight      float64    `json:"zona_weight" validate:"gte=0,lte=100"`
	FinalWeight     float64    `json:"final_weight" validate:"gte=0,lte=100"`
	GradingDeadline *time.Time `json:"grading_deadline,omitempty"`
}

// UnitService manages unit configuration and activation. Closure and
// reopening are handled by their own workflows.
type UnitService struct {
	db        *sqlx.DB
	units     unitStore
	offerings gradeOfferingReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUnitService constructs a UnitService.
func NewUnitService(db *sqlx.DB, units unitStore, offerings gradeOfferingReader, validate *validator.Validate, logger *zap.Logger) *UnitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitService{db: db, units: units, offerings: offerings, validator: validate, logger: logger}
}

// Create registers a new inactive unit for an offering.
func (s *UnitService) Create(ctx context.Context, claims *models.JWTClaims, req CreateUnitRequest) (*models.Unit, error) {
	if claims == nil || !policy.Can(policy.ActionManageUnits, claims.Role, false) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unit payload")
	}
	if sum := req.ZonaWeight + req.FinalWeight; math.Abs(sum-100) > models.WeightSumTolerance {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights,
			fmt.Sprintf("zona and final weights must sum to 100 (got %.2f)", sum))
	}

	if _, err := s.offerings.GetByID(ctx, req.OfferingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}

	if _, err := s.units.FindBySequence(ctx, s.db, req.OfferingID, req.Sequence); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("unit %d already exists for this offering", req.Sequence))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check sequence")
	}

	unit := &models.Unit{
		OfferingID:      req.OfferingID,
		Sequence:        req.Sequence,
		ZonaWeight:      req.ZonaWeight,
		FinalWeight:     req.FinalWeight,
		GradingDeadline: req.GradingDeadline,
	}
	if err := s.units.Create(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create unit")
	}
	return unit, nil
}

// Activate makes the unit the offering's active grading period, deactivating
// any other active unit in the same transaction.
func (s *UnitService) Activate(ctx context.Context, claims *models.JWTClaims, unitID string) (*models.Unit, error) {
	if claims == nil || !policy.Can(policy.ActionManageUnits, claims.Role, false) {
		return nil, appErrors.ErrForbidden
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	unit, err := s.units.GetForUpdate(ctx, tx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	if unit.Closed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "closed unit must be reopened via a reopening request")
	}
	if unit.Active {
		return unit, nil
	}

	current, err := s.units.FindActiveByOffering(ctx, tx, unit.OfferingID)
	switch {
	case err == nil:
		if err := s.units.Deactivate(ctx, tx, current.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "deactivate current unit")
		}
	case errors.Is(err, sql.ErrNoRows):
		// No active unit yet.
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "find active unit")
	}

	if err := s.units.Activate(ctx, tx, unit.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "unit can no longer be activated")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "activate unit")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit activation")
	}

	unit.Active = true
	s.logger.Info("unit activated", zap.String("unit_id", unit.ID), zap.Int("sequence", unit.Sequence))
	return unit, nil
}

// Get fetches a unit by identifier.
func (s *UnitService) Get(ctx context.Context, unitID string) (*models.Unit, error) {
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	return unit, nil
}

// ListByOffering returns the units of an offering in sequence order.
func (s *UnitService) ListByOffering(ctx context.Context, offeringID string) ([]models.Unit, error) {
	units, err := s.units.ListByOffering(ctx, offeringID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list units")
	}
	return units, nil
}
