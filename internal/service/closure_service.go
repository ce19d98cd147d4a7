package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/policy"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type closureUnitStore interface {
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Unit, error)
	MarkClosed(ctx context.Context, q sqlx.ExtContext, id, closedBy string) error
	FindActiveByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) (*models.Unit, error)
	FindBySequence(ctx context.Context, q sqlx.ExtContext, offeringID string, sequence int) (*models.Unit, error)
	Activate(ctx context.Context, q sqlx.ExtContext, id string) error
}

type closureEvaluator interface {
	EvaluateInTx(ctx context.Context, q sqlx.ExtContext, unit *models.Unit, offering *models.CourseOffering) (*models.CourseReadiness, error)
}

type unitGradeWriter interface {
	Upsert(ctx context.Context, q sqlx.ExtContext, grade *models.UnitGrade) error
	ListByUnit(ctx context.Context, unitID string) ([]models.UnitGrade, error)
	GetByUnitAndStudent(ctx context.Context, unitID, studentID string) (*models.UnitGrade, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.UnitGrade, error)
}

type notificationEnqueuer interface {
	EnqueueGenerate(unitID string) error
}

// StudentConsolidationError records one student whose unit grade could not be
// written during consolidation.
type StudentConsolidationError struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// ClosureStats summarises a consolidation run.
type ClosureStats struct {
	Mean   float64 `json:"mean"`
	Passed int     `json:"passed"`
	Failed int     `json:"failed"`
}

// ClosureResult is returned by closure and recompute operations.
type ClosureResult struct {
	UnitID       string                      `json:"unit_id"`
	UnitClosed   bool                        `json:"unit_closed"`
	Consolidated int                         `json:"consolidated"`
	Stats        ClosureStats                `json:"stats"`
	Errors       []StudentConsolidationError `json:"errors,omitempty"`
}

// ClosureService runs the unit closure workflow: a fresh readiness gate, per
// student consolidation and the lifecycle flag flip, all in one transaction.
type ClosureService struct {
	db          *sqlx.DB
	units       closureUnitStore
	offerings   readinessOfferingReader
	enrollments readinessEnrollmentReader
	grades      readinessGradeReader
	unitGrades  unitGradeWriter
	evaluator   closureEvaluator
	cache       *CacheService
	notifier    notificationEnqueuer
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewClosureService constructs a ClosureService.
func NewClosureService(db *sqlx.DB, units closureUnitStore, offerings readinessOfferingReader,
	enrollments readinessEnrollmentReader, grades readinessGradeReader, unitGrades unitGradeWriter,
	evaluator closureEvaluator, cache *CacheService, notifier notificationEnqueuer,
	metrics *MetricsService, logger *zap.Logger) *ClosureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClosureService{
		db:          db,
		units:       units,
		offerings:   offerings,
		enrollments: enrollments,
		grades:      grades,
		unitGrades:  unitGrades,
		evaluator:   evaluator,
		cache:       cache,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// Close consolidates every student's unit grade and closes the unit. The
// readiness gate is recomputed inside the transaction; a cached READY is
// never trusted. When some students fail consolidation the successful grades
// commit but the unit stays open.
func (s *ClosureService) Close(ctx context.Context, claims *models.JWTClaims, unitID string) (*ClosureResult, error) {
	if claims == nil || !policy.Can(policy.ActionCloseUnit, claims.Role, false) {
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

	offering, err := s.offerings.GetTx(ctx, tx, unit.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}

	result, err := s.closeInTx(ctx, tx, unit, offering, claims.UserID)
	if err != nil {
		s.metrics.RecordClosure("rejected", 0)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit closure")
	}
	s.cache.Invalidate(ctx, ReadinessKey(unit.ID, offering.CourseID))

	outcome := "closed"
	if !result.UnitClosed {
		outcome = "partial"
	}
	s.metrics.RecordClosure(outcome, result.Consolidated)
	s.logger.Info("unit closure finished",
		zap.String("unit_id", unit.ID),
		zap.Bool("closed", result.UnitClosed),
		zap.Int("consolidated", result.Consolidated),
		zap.Int("failed_students", len(result.Errors)))
	return result, nil
}

// Recompute rewrites the consolidated unit grades without touching the
// lifecycle flags, used after an approved correction on a closed unit.
func (s *ClosureService) Recompute(ctx context.Context, claims *models.JWTClaims, unitID string) (*ClosureResult, error) {
	if claims == nil || !policy.Can(policy.ActionRecomputeGrades, claims.Role, false) {
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
	offering, err := s.offerings.GetTx(ctx, tx, unit.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}

	result, err := s.consolidate(ctx, tx, unit, offering, claims.UserID)
	if err != nil {
		return nil, err
	}
	result.UnitClosed = unit.Closed

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit recompute")
	}
	s.logger.Info("unit grades recomputed", zap.String("unit_id", unit.ID), zap.Int("consolidated", result.Consolidated))
	return result, nil
}

// Advance closes the offering's active unit and activates the next sequence
// atomically. Any consolidation failure aborts the whole roll-forward.
func (s *ClosureService) Advance(ctx context.Context, claims *models.JWTClaims, offeringID string) (*ClosureResult, error) {
	if claims == nil || !policy.Can(policy.ActionCloseUnit, claims.Role, false) {
		return nil, appErrors.ErrForbidden
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	offering, err := s.offerings.GetTx(ctx, tx, offeringID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}

	current, err := s.units.FindActiveByOffering(ctx, tx, offeringID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "offering has no active unit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "find active unit")
	}
	if current.Sequence >= models.MaxUnitSequence {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unit %d is the last grading period", current.Sequence))
	}

	result, err := s.closeInTx(ctx, tx, current, offering, claims.UserID)
	if err != nil {
		s.metrics.RecordClosure("rejected", 0)
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("consolidation failed for %d students; advance aborted", len(result.Errors)))
	}

	next, err := s.units.FindBySequence(ctx, tx, offeringID, current.Sequence+1)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("offering has no unit with sequence %d", current.Sequence+1))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "find next unit")
	}
	if next.Closed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClosed, "next unit is already closed")
	}
	if err := s.units.Activate(ctx, tx, next.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "activate next unit")
	}

	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "commit advance")
	}
	s.cache.Invalidate(ctx, ReadinessKey(current.ID, offering.CourseID))
	s.metrics.RecordClosure("closed", result.Consolidated)

	if s.notifier != nil {
		if err := s.notifier.EnqueueGenerate(next.ID); err != nil {
			s.logger.Warn("enqueue notification generation failed", zap.String("unit_id", next.ID), zap.Error(err))
		}
	}
	s.logger.Info("offering advanced",
		zap.String("offering_id", offeringID),
		zap.Int("closed_sequence", current.Sequence),
		zap.Int("activated_sequence", next.Sequence))
	return result, nil
}

// ListUnitGrades returns the consolidated grades of a unit.
func (s *ClosureService) ListUnitGrades(ctx context.Context, unitID string) ([]models.UnitGrade, error) {
	grades, err := s.unitGrades.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list unit grades")
	}
	return grades, nil
}

// GetUnitGrade returns one student's consolidated grade for a unit.
func (s *ClosureService) GetUnitGrade(ctx context.Context, unitID, studentID string) (*models.UnitGrade, error) {
	grade, err := s.unitGrades.GetByUnitAndStudent(ctx, unitID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get unit grade")
	}
	return grade, nil
}

// ListStudentGrades returns a student's consolidated grades across units.
func (s *ClosureService) ListStudentGrades(ctx context.Context, studentID string) ([]models.UnitGrade, error) {
	grades, err := s.unitGrades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list student grades")
	}
	return grades, nil
}

func (s *ClosureService) closeInTx(ctx context.Context, tx sqlx.ExtContext, unit *models.Unit, offering *models.CourseOffering, actorID string) (*ClosureResult, error) {
	if unit.Closed {
		return nil, appErrors.ErrAlreadyClosed
	}
	if !unit.Active {
		return nil, appErrors.ErrUnitInactive
	}

	readiness, err := s.evaluator.EvaluateInTx(ctx, tx, unit, offering)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "evaluate readiness")
	}
	if readiness.Status != models.ReadinessStatusReady {
		return nil, appErrors.Clone(appErrors.ErrNotReady, notReadyMessage(offering.CourseID, readiness))
	}

	result, err := s.consolidate(ctx, tx, unit, offering, actorID)
	if err != nil {
		return nil, err
	}

	if len(result.Errors) == 0 {
		if err := s.units.MarkClosed(ctx, tx, unit.ID, actorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrAlreadyClosed
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "close unit")
		}
		result.UnitClosed = true
	}
	return result, nil
}

// consolidate writes one unit grade per enrolled student, in ascending
// student order so batch runs are deterministic. Failures are collected per
// student rather than aborting the batch.
func (s *ClosureService) consolidate(ctx context.Context, tx sqlx.ExtContext, unit *models.Unit, offering *models.CourseOffering, actorID string) (*ClosureResult, error) {
	students, err := s.enrollments.ListStudentIDsByOffering(ctx, tx, offering.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list enrollments")
	}
	rows, err := s.grades.FetchUnitRows(ctx, tx, unit.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "fetch grades")
	}

	result := &ClosureResult{UnitID: unit.ID}
	var totalSum float64
	for _, studentID := range students {
		grade := consolidateStudent(unit.ID, studentID, actorID, rows[studentID])
		if err := s.unitGrades.Upsert(ctx, tx, grade); err != nil {
			s.logger.Warn("unit grade consolidation failed",
				zap.String("unit_id", unit.ID), zap.String("student_id", studentID), zap.Error(err))
			result.Errors = append(result.Errors, StudentConsolidationError{StudentID: studentID, Reason: err.Error()})
			continue
		}
		result.Consolidated++
		totalSum += grade.Total
		if grade.Passed {
			result.Stats.Passed++
		} else {
			result.Stats.Failed++
		}
	}
	if result.Consolidated > 0 {
		result.Stats.Mean = totalSum / float64(result.Consolidated)
	}
	return result, nil
}

// consolidateStudent sums the student's zona and final scores. Null scores
// cannot pass the readiness gate, but recompute runs on any state, so they
// are skipped instead of trusted.
func consolidateStudent(unitID, studentID, actorID string, rows []models.UnitGradeRow) *models.UnitGrade {
	var zona, final float64
	for _, row := range rows {
		if row.Score == nil {
			continue
		}
		switch row.Kind {
		case models.ActivityKindFinal:
			final += *row.Score
		default:
			zona += *row.Score
		}
	}
	total := zona + final
	return &models.UnitGrade{
		UnitID:         unitID,
		StudentID:      studentID,
		ZonaSubtotal:   zona,
		FinalSubtotal:  final,
		Total:          total,
		Passed:         total >= models.PassingTotal,
		ConsolidatedBy: actorID,
	}
}

func notReadyMessage(courseID string, readiness *models.CourseReadiness) string {
	reasons := []string{}
	if !readiness.ActivitiesSumTo100 {
		reasons = append(reasons, fmt.Sprintf("activities sum to %.2f of 100 points", readiness.CurrentActivitySum))
	}
	if readiness.TotalFullyGraded < readiness.TotalEnrolled {
		reasons = append(reasons, fmt.Sprintf("%d of %d students fully graded",
			readiness.TotalFullyGraded, readiness.TotalEnrolled))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, string(readiness.Status))
	}
	return fmt.Sprintf("course %s is not ready for closure: %s", courseID, strings.Join(reasons, "; "))
}
