package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/policy"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type gradeStore interface {
	GetByActivityAndStudent(ctx context.Context, activityID, studentID string) (*models.Grade, error)
	UpsertScore(ctx context.Context, grade *models.Grade) error
	SeedForStudent(ctx context.Context, q sqlx.ExtContext, unitID, studentID string) error
}

type gradeActivityReader interface {
	GetByID(ctx context.Context, id string) (*models.Activity, error)
	SumActiveMaxPoints(ctx context.Context, q sqlx.ExtContext, unitID string, kind models.ActivityKind) (float64, error)
}

type gradeUnitReader interface {
	GetByID(ctx context.Context, id string) (*models.Unit, error)
}

type gradeOfferingReader interface {
	GetByID(ctx context.Context, id string) (*models.CourseOffering, error)
}

type readinessRefresher interface {
	Refresh(ctx context.Context, unitID string) (*models.CourseReadiness, error)
}

// UpsertScoreRequest carries one score entry.
type UpsertScoreRequest struct {
	ActivityID string   `json:"activity_id" validate:"required"`
	StudentID  string   `json:"student_id" validate:"required"`
	Score      *float64 `json:"score" validate:"required"`
}

// GradeService handles per-activity score entry. Every write re-checks the
// unit lifecycle and the final-exam gate before touching the grade row.
type GradeService struct {
	db         *sqlx.DB
	grades     gradeStore
	activities gradeActivityReader
	units      gradeUnitReader
	offerings  gradeOfferingReader
	readiness  readinessRefresher
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(db *sqlx.DB, grades gradeStore, activities gradeActivityReader, units gradeUnitReader,
	offerings gradeOfferingReader, readiness readinessRefresher, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		db:         db,
		grades:     grades,
		activities: activities,
		units:      units,
		offerings:  offerings,
		readiness:  readiness,
		validator:  validate,
		logger:     logger,
	}
}

// UpsertScore records or replaces a student's score on an activity.
func (s *GradeService) UpsertScore(ctx context.Context, claims *models.JWTClaims, req UpsertScoreRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}

	activity, err := s.activities.GetByID(ctx, req.ActivityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load activity")
	}
	if !activity.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "activity is deactivated")
	}

	unit, err := s.units.GetByID(ctx, activity.UnitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	if unit.Closed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "unit is closed; request a reopening to edit grades")
	}
	if !unit.Active {
		return nil, appErrors.ErrUnitInactive
	}

	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}
	owns := claims != nil && claims.UserID == offering.TeacherID
	if claims == nil || !policy.Can(policy.ActionEditGrades, claims.Role, owns) {
		return nil, appErrors.ErrForbidden
	}

	score := *req.Score
	if score < 0 || score > activity.MaxPoints {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("score must be between 0 and %.2f", activity.MaxPoints))
	}

	if activity.Kind == models.ActivityKindFinal {
		if err := s.checkFinalGate(ctx, unit); err != nil {
			return nil, err
		}
	}

	grade, err := s.grades.GetByActivityAndStudent(ctx, req.ActivityID, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no grade row on this activity")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load grade")
	}

	grade.Score = &score
	grade.GradedBy = &claims.UserID
	if err := s.grades.UpsertScore(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store grade")
	}

	if _, err := s.readiness.Refresh(ctx, unit.ID); err != nil {
		s.logger.Warn("readiness refresh after grade write failed",
			zap.String("unit_id", unit.ID), zap.Error(err))
	}

	return grade, nil
}

// Get returns a single grade row.
func (s *GradeService) Get(ctx context.Context, claims *models.JWTClaims, activityID, studentID string) (*models.Grade, error) {
	activity, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load activity")
	}
	unit, err := s.units.GetByID(ctx, activity.UnitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}
	owns := claims != nil && claims.UserID == offering.TeacherID
	if claims == nil || !policy.Can(policy.ActionReadUnitGrades, claims.Role, owns) {
		return nil, appErrors.ErrForbidden
	}

	grade, err := s.grades.GetByActivityAndStudent(ctx, activityID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load grade")
	}
	return grade, nil
}

// SeedTransfer creates ungraded rows for a student who joined the offering
// mid-period, across every activity of the unit.
func (s *GradeService) SeedTransfer(ctx context.Context, claims *models.JWTClaims, unitID, studentID string) error {
	if claims == nil || !policy.Can(policy.ActionManageUnits, claims.Role, false) {
		return appErrors.ErrForbidden
	}
	if studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	if unit.Closed {
		return appErrors.Clone(appErrors.ErrAlreadyClosed, "cannot seed grades on a closed unit")
	}
	if err := s.grades.SeedForStudent(ctx, s.db, unit.ID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "seed grades")
	}
	if _, err := s.readiness.Refresh(ctx, unit.ID); err != nil {
		s.logger.Warn("readiness refresh after seed failed", zap.String("unit_id", unit.ID), zap.Error(err))
	}
	return nil
}

// checkFinalGate rejects final-exam grading until the unit's active zona
// activities sum to exactly the configured zona weight.
func (s *GradeService) checkFinalGate(ctx context.Context, unit *models.Unit) error {
	zonaSum, err := s.activities.SumActiveMaxPoints(ctx, s.db, unit.ID, models.ActivityKindZona)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sum zona points")
	}
	if math.Abs(unit.ZonaWeight-zonaSum) > models.WeightSumTolerance {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("zona activities total %.2f points but must equal the unit's zona weight of %.0f before the final exam can be graded", zonaSum, unit.ZonaWeight))
	}
	return nil
}
