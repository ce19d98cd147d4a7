package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/policy"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type activityStore interface {
	Create(ctx context.Context, q sqlx.ExtContext, activity *models.Activity) error
	GetByID(ctx context.Context, id string) (*models.Activity, error)
	ListActiveByUnit(ctx context.Context, q sqlx.ExtContext, unitID string) ([]models.Activity, error)
	Update(ctx context.Context, activity *models.Activity) error
	SetActive(ctx context.Context, id string, active bool) error
	HasScores(ctx context.Context, id string) (bool, error)
}

type activityGradeSeeder interface {
	Seed(ctx context.Context, q sqlx.ExtContext, activityID string, studentIDs []string) error
}

// CreateActivityRequest carries a new gradable component.
type CreateActivityRequest struct {
	UnitID    string  `json:"unit_id" validate:"required"`
	Kind      string  `json:"kind" validate:"required,oneof=ZONA FINAL"`
	Name      string  `json:"name" validate:"required,max=200"`
	MaxPoints float64 `json:"max_points" validate:"required,gt=0,lte=100"`
}

// UpdateActivityRequest adjusts an ungraded activity.
type UpdateActivityRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	MaxPoints float64 `json:"max_points" validate:"required,gt=0,lte=100"`
	Kind      string  `json:"kind" validate:"omitempty,oneof=ZONA FINAL"`
}

// ActivityService manages the gradable components of a unit. Creating an
// activity seeds ungraded rows for every enrolled student in the same
// transaction; once any score exists the activity configuration is frozen.
type ActivityService struct {
	db          *sqlx.DB
	activities  activityStore
	units       gradeUnitReader
	offerings   gradeOfferingReader
	enrollments readinessEnrollmentReader
	grades      activityGradeSeeder
	readiness   readinessRefresher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewActivityService constructs an ActivityService.
func NewActivityService(db *sqlx.DB, activities activityStore, units gradeUnitReader, offerings gradeOfferingReader,
	enrollments readinessEnrollmentReader, grades activityGradeSeeder, readiness readinessRefresher,
	validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		db:          db,
		activities:  activities,
		units:       units,
		offerings:   offerings,
		enrollments: enrollments,
		grades:      grades,
		readiness:   readiness,
		validator:   validate,
		logger:      logger,
	}
}

// Create adds an activity to an active unit and seeds grade rows for every
// enrolled student atomically.
func (s *ActivityService) Create(ctx context.Context, claims *models.JWTClaims, req CreateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}

	unit, offering, err := s.loadOpenUnit(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(claims, offering); err != nil {
		return nil, err
	}

	if err := s.checkWeightBudget(ctx, unit.ID, "", req.MaxPoints); err != nil {
		return nil, err
	}

	students, err := s.enrollments.ListStudentIDsByOffering(ctx, s.db, offering.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list enrollments")
	}

	activity := &models.Activity{
		UnitID:    unit.ID,
		Kind:      models.ActivityKind(req.Kind),
		Name:      req.Name,
		MaxPoints: req.MaxPoints,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.activities.Create(ctx, tx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create activity")
	}
	if err := s.grades.Seed(ctx, tx, activity.ID, students); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "seed grade rows")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit activity")
	}

	s.refreshReadiness(ctx, unit.ID)
	return activity, nil
}

// Update adjusts name, points or kind of an activity that has no scores yet.
func (s *ActivityService) Update(ctx context.Context, claims *models.JWTClaims, activityID string, req UpdateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}

	activity, unit, offering, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(claims, offering); err != nil {
		return nil, err
	}

	hasScores, err := s.activities.HasScores(ctx, activity.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check scores")
	}
	if hasScores {
		return nil, appErrors.Clone(appErrors.ErrImmutable, "activity already has recorded scores")
	}

	if activity.Active {
		if err := s.checkWeightBudget(ctx, unit.ID, activity.ID, req.MaxPoints); err != nil {
			return nil, err
		}
	}

	activity.Name = req.Name
	activity.MaxPoints = req.MaxPoints
	if req.Kind != "" {
		activity.Kind = models.ActivityKind(req.Kind)
	}
	if err := s.activities.Update(ctx, activity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update activity")
	}

	s.refreshReadiness(ctx, unit.ID)
	return activity, nil
}

// Deactivate removes an ungraded activity from readiness and consolidation.
func (s *ActivityService) Deactivate(ctx context.Context, claims *models.JWTClaims, activityID string) error {
	activity, unit, offering, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if err := s.authorizeManage(claims, offering); err != nil {
		return err
	}

	hasScores, err := s.activities.HasScores(ctx, activity.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check scores")
	}
	if hasScores {
		return appErrors.Clone(appErrors.ErrImmutable, "activity with recorded scores cannot be deactivated")
	}

	if err := s.activities.SetActive(ctx, activity.ID, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "deactivate activity")
	}

	s.refreshReadiness(ctx, unit.ID)
	return nil
}

// List returns the active activities of a unit.
func (s *ActivityService) List(ctx context.Context, claims *models.JWTClaims, unitID string) ([]models.Activity, error) {
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}
	owns := claims != nil && claims.UserID == offering.TeacherID
	if claims == nil || !policy.Can(policy.ActionReadReadiness, claims.Role, owns) {
		return nil, appErrors.ErrForbidden
	}
	activities, err := s.activities.ListActiveByUnit(ctx, s.db, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list activities")
	}
	return activities, nil
}

func (s *ActivityService) loadOpenUnit(ctx context.Context, unitID string) (*models.Unit, *models.CourseOffering, error) {
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	if unit.Closed {
		return nil, nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "unit is closed")
	}
	if !unit.Active {
		return nil, nil, appErrors.ErrUnitInactive
	}
	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}
	return unit, offering, nil
}

func (s *ActivityService) loadActivity(ctx context.Context, activityID string) (*models.Activity, *models.Unit, *models.CourseOffering, error) {
	activity, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load activity")
	}
	unit, offering, err := s.loadOpenUnit(ctx, activity.UnitID)
	if err != nil {
		return nil, nil, nil, err
	}
	return activity, unit, offering, nil
}

func (s *ActivityService) authorizeManage(claims *models.JWTClaims, offering *models.CourseOffering) error {
	owns := claims != nil && claims.UserID == offering.TeacherID
	if claims == nil || !policy.Can(policy.ActionManageActivities, claims.Role, owns) {
		return appErrors.ErrForbidden
	}
	return nil
}

// checkWeightBudget rejects a configuration whose active activities would
// exceed 100 points. excludeID discounts the activity being updated.
func (s *ActivityService) checkWeightBudget(ctx context.Context, unitID, excludeID string, maxPoints float64) error {
	activities, err := s.activities.ListActiveByUnit(ctx, s.db, unitID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list activities")
	}
	sum := maxPoints
	for _, a := range activities {
		if a.ID == excludeID {
			continue
		}
		sum += a.MaxPoints
	}
	if sum > 100+models.WeightSumTolerance {
		return appErrors.Clone(appErrors.ErrInvalidWeights,
			fmt.Sprintf("active activities would total %.2f points; the unit maximum is 100", sum))
	}
	return nil
}

func (s *ActivityService) refreshReadiness(ctx context.Context, unitID string) {
	if _, err := s.readiness.Refresh(ctx, unitID); err != nil {
		s.logger.Warn("readiness refresh after activity change failed",
			zap.String("unit_id", unitID), zap.Error(err))
	}
}
