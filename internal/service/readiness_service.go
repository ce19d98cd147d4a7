package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/policy"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

// readinessPendingThreshold is the fully-graded percentage from which an
// otherwise incomplete course is reported as PENDING instead of INCOMPLETE.
const readinessPendingThreshold = 80.0

type readinessUnitReader interface {
	GetByID(ctx context.Context, id string) (*models.Unit, error)
}

type readinessOfferingReader interface {
	GetByID(ctx context.Context, id string) (*models.CourseOffering, error)
	GetTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.CourseOffering, error)
}

type readinessActivityReader interface {
	ListActiveByUnit(ctx context.Context, q sqlx.ExtContext, unitID string) ([]models.Activity, error)
}

type readinessGradeReader interface {
	FetchUnitRows(ctx context.Context, q sqlx.ExtContext, unitID string) (map[string][]models.UnitGradeRow, error)
}

type readinessEnrollmentReader interface {
	ListStudentIDsByOffering(ctx context.Context, q sqlx.ExtContext, offeringID string) ([]string, error)
}

type readinessStore interface {
	Upsert(ctx context.Context, q sqlx.ExtContext, readiness *models.CourseReadiness) error
	Get(ctx context.Context, unitID, courseID string) (*models.CourseReadiness, error)
	ListByUnit(ctx context.Context, unitID string) ([]models.CourseReadiness, error)
}

// ReadinessService computes and caches how close each course of a unit is to
// closure. The cached row is derived state: recomputable at any time and
// re-checked fresh inside the closure transaction.
type ReadinessService struct {
	db          *sqlx.DB
	units       readinessUnitReader
	offerings   readinessOfferingReader
	activities  readinessActivityReader
	grades      readinessGradeReader
	enrollments readinessEnrollmentReader
	readiness   readinessStore
	cache       *CacheService
	logger      *zap.Logger
}

// NewReadinessService constructs a ReadinessService.
func NewReadinessService(db *sqlx.DB, units readinessUnitReader, offerings readinessOfferingReader,
	activities readinessActivityReader, grades readinessGradeReader, enrollments readinessEnrollmentReader,
	readiness readinessStore, cache *CacheService, logger *zap.Logger) *ReadinessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadinessService{
		db:          db,
		units:       units,
		offerings:   offerings,
		activities:  activities,
		grades:      grades,
		enrollments: enrollments,
		readiness:   readiness,
		cache:       cache,
		logger:      logger,
	}
}

// Evaluate recomputes readiness for the unit's course on behalf of a caller.
func (s *ReadinessService) Evaluate(ctx context.Context, claims *models.JWTClaims, unitID string) (*models.CourseReadiness, error) {
	unit, offering, err := s.authorize(ctx, claims, unitID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, unit, offering)
}

// Refresh recomputes and stores readiness without an authorization check. It
// is invoked internally after grade and activity mutations.
func (s *ReadinessService) Refresh(ctx context.Context, unitID string) (*models.CourseReadiness, error) {
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
	return s.refresh(ctx, unit, offering)
}

// Get returns the cached readiness of a unit's course, recomputing when no
// snapshot exists yet.
func (s *ReadinessService) Get(ctx context.Context, claims *models.JWTClaims, unitID string) (*models.CourseReadiness, error) {
	unit, offering, err := s.authorize(ctx, claims, unitID)
	if err != nil {
		return nil, err
	}

	var cached models.CourseReadiness
	if hit, _ := s.cache.Get(ctx, ReadinessKey(unit.ID, offering.CourseID), &cached); hit {
		return &cached, nil
	}

	readiness, err := s.readiness.Get(ctx, unit.ID, offering.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.refresh(ctx, unit, offering)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load readiness")
	}
	s.cache.Set(ctx, ReadinessKey(unit.ID, offering.CourseID), readiness)
	return readiness, nil
}

// EvaluateInTx recomputes readiness inside the caller's transaction. Closure
// uses it as the authoritative gate, ignoring any cached snapshot.
func (s *ReadinessService) EvaluateInTx(ctx context.Context, q sqlx.ExtContext, unit *models.Unit, offering *models.CourseOffering) (*models.CourseReadiness, error) {
	readiness, err := s.compute(ctx, q, unit, offering)
	if err != nil {
		return nil, err
	}
	if err := s.readiness.Upsert(ctx, q, readiness); err != nil {
		return nil, err
	}
	return readiness, nil
}

func (s *ReadinessService) authorize(ctx context.Context, claims *models.JWTClaims, unitID string) (*models.Unit, *models.CourseOffering, error) {
	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}
	if claims != nil {
		owns := claims.UserID == offering.TeacherID
		if !policy.Can(policy.ActionReadReadiness, claims.Role, owns) {
			return nil, nil, appErrors.ErrForbidden
		}
	}
	return unit, offering, nil
}

func (s *ReadinessService) refresh(ctx context.Context, unit *models.Unit, offering *models.CourseOffering) (*models.CourseReadiness, error) {
	readiness, err := s.compute(ctx, s.db, unit, offering)
	if err != nil {
		return nil, err
	}
	if err := s.readiness.Upsert(ctx, s.db, readiness); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store readiness")
	}
	s.cache.Set(ctx, ReadinessKey(unit.ID, offering.CourseID), readiness)
	return readiness, nil
}

func (s *ReadinessService) compute(ctx context.Context, q sqlx.ExtContext, unit *models.Unit, offering *models.CourseOffering) (*models.CourseReadiness, error) {
	activities, err := s.activities.ListActiveByUnit(ctx, q, unit.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list activities")
	}
	students, err := s.enrollments.ListStudentIDsByOffering(ctx, q, offering.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list enrollments")
	}
	rows, err := s.grades.FetchUnitRows(ctx, q, unit.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "fetch grades")
	}

	var activitySum float64
	for _, activity := range activities {
		activitySum += activity.MaxPoints
	}
	sumsTo100 := math.Abs(activitySum-100) <= models.WeightSumTolerance

	graded := make(map[string]map[string]bool, len(rows))
	for studentID, studentRows := range rows {
		scored := make(map[string]bool, len(studentRows))
		for _, row := range studentRows {
			if row.Score != nil {
				scored[row.ActivityID] = true
			}
		}
		graded[studentID] = scored
	}

	var fullyGraded int
	var pending []string
	for _, studentID := range students {
		if isFullyGraded(activities, graded[studentID]) {
			fullyGraded++
		} else {
			pending = append(pending, studentID)
		}
	}

	// An offering without enrolled students is never ready for closure.
	percent := 0.0
	if len(students) > 0 {
		percent = 100 * float64(fullyGraded) / float64(len(students))
	}

	status := models.ReadinessStatusIncomplete
	switch {
	case sumsTo100 && percent == 100:
		status = models.ReadinessStatusReady
	case sumsTo100 && percent >= readinessPendingThreshold:
		status = models.ReadinessStatusPending
	}

	detail := models.ReadinessDetail{
		UngradedStudents: len(pending),
		PendingStudents:  pending,
	}
	if !sumsTo100 {
		detail.WeightShortfall = 100 - activitySum
	}
	rawDetail, err := json.Marshal(detail)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode readiness detail")
	}

	return &models.CourseReadiness{
		UnitID:             unit.ID,
		CourseID:           offering.CourseID,
		ActivitiesSumTo100: sumsTo100,
		CurrentActivitySum: activitySum,
		TotalEnrolled:      len(students),
		TotalFullyGraded:   fullyGraded,
		PercentComplete:    percent,
		Status:             status,
		Detail:             rawDetail,
	}, nil
}

// isFullyGraded reports whether every active activity has a non-null score
// for the student. A unit without activities counts as not graded.
func isFullyGraded(activities []models.Activity, scored map[string]bool) bool {
	if len(activities) == 0 {
		return false
	}
	for _, activity := range activities {
		if !scored[activity.ID] {
			return false
		}
	}
	return true
}
