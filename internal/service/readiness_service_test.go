package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
)

type readinessUnitStub struct {
	units map[string]*models.Unit
}

func (s *readinessUnitStub) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	if unit, ok := s.units[id]; ok {
		copy := *unit
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type activityListStub struct {
	activities []models.Activity
}

func (s *activityListStub) ListActiveByUnit(ctx context.Context, q sqlx.ExtContext, unitID string) ([]models.Activity, error) {
	return s.activities, nil
}

type readinessStoreStub struct {
	rows    map[string]*models.CourseReadiness
	upserts int
}

func newReadinessStoreStub() *readinessStoreStub {
	return &readinessStoreStub{rows: make(map[string]*models.CourseReadiness)}
}

func (s *readinessStoreStub) Upsert(ctx context.Context, q sqlx.ExtContext, readiness *models.CourseReadiness) error {
	s.upserts++
	copy := *readiness
	s.rows[readiness.UnitID+":"+readiness.CourseID] = &copy
	return nil
}

func (s *readinessStoreStub) Get(ctx context.Context, unitID, courseID string) (*models.CourseReadiness, error) {
	if row, ok := s.rows[unitID+":"+courseID]; ok {
		copy := *row
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *readinessStoreStub) ListByUnit(ctx context.Context, unitID string) ([]models.CourseReadiness, error) {
	var result []models.CourseReadiness
	for _, row := range s.rows {
		if row.UnitID == unitID {
			result = append(result, *row)
		}
	}
	return result, nil
}

type readinessFixture struct {
	svc        *ReadinessService
	activities *activityListStub
	students   *studentsStub
	rows       *unitRowsStub
	store      *readinessStoreStub
}

func newReadinessFixture() *readinessFixture {
	units := &readinessUnitStub{units: map[string]*models.Unit{
		"unit-1": {ID: "unit-1", OfferingID: "off-1", Sequence: 1, ZonaWeight: 75, FinalWeight: 25, Active: true},
	}}
	offerings := &closureOfferingStub{offerings: map[string]*models.CourseOffering{
		"off-1": {ID: "off-1", TeacherID: "teacher-1", CourseID: "course-1"},
	}}
	activities := &activityListStub{activities: []models.Activity{
		{ID: "act-1", UnitID: "unit-1", Kind: models.ActivityKindZona, MaxPoints: 40, Active: true},
		{ID: "act-2", UnitID: "unit-1", Kind: models.ActivityKindZona, MaxPoints: 35, Active: true},
		{ID: "act-3", UnitID: "unit-1", Kind: models.ActivityKindFinal, MaxPoints: 25, Active: true},
	}}
	students := &studentsStub{ids: []string{"student-a", "student-b"}}
	rows := &unitRowsStub{rows: map[string][]models.UnitGradeRow{
		"student-a": {
			{ActivityID: "act-1", StudentID: "student-a", Score: fptr(30)},
			{ActivityID: "act-2", StudentID: "student-a", Score: fptr(20)},
			{ActivityID: "act-3", StudentID: "student-a", Score: fptr(22)},
		},
		"student-b": {
			{ActivityID: "act-1", StudentID: "student-b", Score: fptr(15)},
			{ActivityID: "act-2", StudentID: "student-b", Score: fptr(33)},
			{ActivityID: "act-3", StudentID: "student-b", Score: fptr(10)},
		},
	}}
	store := newReadinessStoreStub()
	svc := NewReadinessService(nil, units, offerings, activities, rows, students, store,
		NewCacheService(nil, nil, 0, nil), nil)
	return &readinessFixture{svc: svc, activities: activities, students: students, rows: rows, store: store}
}

func TestReadinessEvaluateReady(t *testing.T) {
	f := newReadinessFixture()

	readiness, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Equal(t, models.ReadinessStatusReady, readiness.Status)
	require.True(t, readiness.ActivitiesSumTo100)
	require.Equal(t, 100.0, readiness.CurrentActivitySum)
	require.Equal(t, 2, readiness.TotalEnrolled)
	require.Equal(t, 2, readiness.TotalFullyGraded)
	require.Equal(t, 100.0, readiness.PercentComplete)
	require.Equal(t, 1, f.store.upserts)
}

func TestReadinessEvaluateWeightShortfall(t *testing.T) {
	f := newReadinessFixture()
	f.activities.activities = f.activities.activities[:2] // 75 of 100 points

	readiness, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Equal(t, models.ReadinessStatusIncomplete, readiness.Status)
	require.False(t, readiness.ActivitiesSumTo100)
	require.Equal(t, 75.0, readiness.CurrentActivitySum)

	var detail models.ReadinessDetail
	require.NoError(t, json.Unmarshal(readiness.Detail, &detail))
	require.Equal(t, 25.0, detail.WeightShortfall)
}

func TestReadinessEvaluateUngradedStudents(t *testing.T) {
	f := newReadinessFixture()
	f.rows.rows["student-b"] = []models.UnitGradeRow{
		{ActivityID: "act-1", StudentID: "student-b", Score: fptr(15)},
		{ActivityID: "act-2", StudentID: "student-b", Score: nil},
		{ActivityID: "act-3", StudentID: "student-b", Score: nil},
	}

	readiness, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Equal(t, models.ReadinessStatusIncomplete, readiness.Status)
	require.Equal(t, 1, readiness.TotalFullyGraded)
	require.Equal(t, 50.0, readiness.PercentComplete)

	var detail models.ReadinessDetail
	require.NoError(t, json.Unmarshal(readiness.Detail, &detail))
	require.Equal(t, 1, detail.UngradedStudents)
	require.Equal(t, []string{"student-b"}, detail.PendingStudents)
}

func TestReadinessPendingThreshold(t *testing.T) {
	f := newReadinessFixture()
	f.students.ids = []string{"s1", "s2", "s3", "s4", "s5"}
	f.rows.rows = map[string][]models.UnitGradeRow{}
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		f.rows.rows[id] = []models.UnitGradeRow{
			{ActivityID: "act-1", StudentID: id, Score: fptr(30)},
			{ActivityID: "act-2", StudentID: id, Score: fptr(30)},
			{ActivityID: "act-3", StudentID: id, Score: fptr(20)},
		}
	}

	readiness, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Equal(t, models.ReadinessStatusPending, readiness.Status)
	require.Equal(t, 80.0, readiness.PercentComplete)
}

func TestReadinessEmptyRosterNeverReady(t *testing.T) {
	f := newReadinessFixture()
	f.students.ids = nil
	f.rows.rows = map[string][]models.UnitGradeRow{}

	readiness, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)
	require.Equal(t, models.ReadinessStatusIncomplete, readiness.Status)
	require.True(t, readiness.ActivitiesSumTo100)
	require.Equal(t, 0, readiness.TotalEnrolled)
	require.Equal(t, 0.0, readiness.PercentComplete)
}

func TestReadinessEvaluateIdempotent(t *testing.T) {
	f := newReadinessFixture()

	first, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)
	second, err := f.svc.Refresh(context.Background(), "unit-1")
	require.NoError(t, err)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.PercentComplete, second.PercentComplete)
	require.Len(t, f.store.rows, 1)
	require.Equal(t, 2, f.store.upserts)
}

func TestReadinessGetForbiddenForOtherTeacher(t *testing.T) {
	f := newReadinessFixture()
	other := &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}

	_, err := f.svc.Get(context.Background(), other, "unit-1")
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestReadinessGetRecomputesWhenMissing(t *testing.T) {
	f := newReadinessFixture()
	owner := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	readiness, err := f.svc.Get(context.Background(), owner, "unit-1")
	require.NoError(t, err)
	require.Equal(t, models.ReadinessStatusReady, readiness.Status)
	require.Equal(t, 1, f.store.upserts)
}
