package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type gradeStoreStub struct {
	grades map[string]*models.Grade
	seeded []string
}

func gradeKey(activityID, studentID string) string { return activityID + ":" + studentID }

func (s *gradeStoreStub) GetByActivityAndStudent(ctx context.Context, activityID, studentID string) (*models.Grade, error) {
	if grade, ok := s.grades[gradeKey(activityID, studentID)]; ok {
		copy := *grade
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *gradeStoreStub) UpsertScore(ctx context.Context, grade *models.Grade) error {
	copy := *grade
	s.grades[gradeKey(grade.ActivityID, grade.StudentID)] = &copy
	return nil
}

func (s *gradeStoreStub) SeedForStudent(ctx context.Context, q sqlx.ExtContext, unitID, studentID string) error {
	s.seeded = append(s.seeded, studentID)
	return nil
}

type gradeActivityStub struct {
	activities map[string]*models.Activity
	zonaSum    float64
}

func (s *gradeActivityStub) GetByID(ctx context.Context, id string) (*models.Activity, error) {
	if activity, ok := s.activities[id]; ok {
		copy := *activity
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *gradeActivityStub) SumActiveMaxPoints(ctx context.Context, q sqlx.ExtContext, unitID string, kind models.ActivityKind) (float64, error) {
	return s.zonaSum, nil
}

type refresherStub struct {
	count    int
	lastUnit string
}

func (s *refresherStub) Refresh(ctx context.Context, unitID string) (*models.CourseReadiness, error) {
	s.count++
	s.lastUnit = unitID
	return &models.CourseReadiness{UnitID: unitID}, nil
}

type gradeFixture struct {
	svc        *GradeService
	grades     *gradeStoreStub
	activities *gradeActivityStub
	units      *readinessUnitStub
	refresher  *refresherStub
}

func newGradeFixture() *gradeFixture {
	grades := &gradeStoreStub{grades: map[string]*models.Grade{
		gradeKey("act-zona", "student-a"):  {ID: "g-1", ActivityID: "act-zona", StudentID: "student-a"},
		gradeKey("act-final", "student-a"): {ID: "g-2", ActivityID: "act-final", StudentID: "student-a"},
	}}
	activities := &gradeActivityStub{
		activities: map[string]*models.Activity{
			"act-zona":  {ID: "act-zona", UnitID: "unit-1", Kind: models.ActivityKindZona, MaxPoints: 40, Active: true},
			"act-final": {ID: "act-final", UnitID: "unit-1", Kind: models.ActivityKindFinal, MaxPoints: 25, Active: true},
		},
		zonaSum: 75,
	}
	units := &readinessUnitStub{units: map[string]*models.Unit{
		"unit-1": {ID: "unit-1", OfferingID: "off-1", Sequence: 1, ZonaWeight: 75, FinalWeight: 25, Active: true},
	}}
	offerings := &closureOfferingStub{offerings: map[string]*models.CourseOffering{
		"off-1": {ID: "off-1", TeacherID: "teacher-1", CourseID: "course-1"},
	}}
	refresher := &refresherStub{}
	svc := NewGradeService(nil, grades, activities, units, offerings, refresher, nil, nil)
	return &gradeFixture{svc: svc, grades: grades, activities: activities, units: units, refresher: refresher}
}

func TestUpsertScore(t *testing.T) {
	f := newGradeFixture()

	grade, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-a",
		Score:      fptr(35),
	})
	require.NoError(t, err)
	require.NotNil(t, grade.Score)
	require.Equal(t, 35.0, *grade.Score)
	require.Equal(t, "teacher-1", *grade.GradedBy)

	stored := f.grades.grades[gradeKey("act-zona", "student-a")]
	require.Equal(t, 35.0, *stored.Score)
	require.Equal(t, 1, f.refresher.count)
	require.Equal(t, "unit-1", f.refresher.lastUnit)
}

func TestUpsertScoreZeroIsValid(t *testing.T) {
	f := newGradeFixture()

	grade, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-a",
		Score:      fptr(0),
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, *grade.Score)
}

func TestUpsertScoreUnitInactive(t *testing.T) {
	f := newGradeFixture()
	f.units.units["unit-1"].Active = false

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-a",
		Score:      fptr(10),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrUnitInactive))
	require.Equal(t, 0, f.refresher.count)
}

func TestUpsertScoreClosedUnit(t *testing.T) {
	f := newGradeFixture()
	f.units.units["unit-1"].Active = false
	f.units.units["unit-1"].Closed = true

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-a",
		Score:      fptr(10),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyClosed))
}

func TestUpsertScoreAboveMaxPoints(t *testing.T) {
	f := newGradeFixture()

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-a",
		Score:      fptr(41),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUpsertScoreFinalGateBlocked(t *testing.T) {
	f := newGradeFixture()
	f.activities.zonaSum = 55 // 20 points of zona activities still missing

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-final",
		StudentID:  "student-a",
		Score:      fptr(20),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Contains(t, err.Error(), "55.00")
}

func TestUpsertScoreFinalGateOverAllocated(t *testing.T) {
	f := newGradeFixture()
	f.activities.zonaSum = 90 // zona activities exceed the configured weight

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-final",
		StudentID:  "student-a",
		Score:      fptr(20),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Contains(t, err.Error(), "90.00")
}

func TestUpsertScoreFinalGateOpen(t *testing.T) {
	f := newGradeFixture()

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-final",
		StudentID:  "student-a",
		Score:      fptr(20),
	})
	require.NoError(t, err)
}

func TestUpsertScoreNotOwner(t *testing.T) {
	f := newGradeFixture()
	other := &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}

	_, err := f.svc.UpsertScore(context.Background(), other, UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-a",
		Score:      fptr(10),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestUpsertScoreUnknownStudentRow(t *testing.T) {
	f := newGradeFixture()

	_, err := f.svc.UpsertScore(context.Background(), teacherClaims(), UpsertScoreRequest{
		ActivityID: "act-zona",
		StudentID:  "student-z",
		Score:      fptr(10),
	})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSeedTransfer(t *testing.T) {
	f := newGradeFixture()

	err := f.svc.SeedTransfer(context.Background(), adminClaims(), "unit-1", "student-new")
	require.NoError(t, err)
	require.Equal(t, []string{"student-new"}, f.grades.seeded)
	require.Equal(t, 1, f.refresher.count)
}

func TestSeedTransferForbiddenForTeacher(t *testing.T) {
	f := newGradeFixture()

	err := f.svc.SeedTransfer(context.Background(), teacherClaims(), "unit-1", "student-new")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
