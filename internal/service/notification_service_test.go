package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/colegio-gt/unidades-api/internal/models"
)

type notificationStoreStub struct {
	notifications []*models.TeacherNotification
}

func (s *notificationStoreStub) Create(ctx context.Context, notification *models.TeacherNotification) error {
	copy := *notification
	if copy.ID == "" {
		copy.ID = "notif-" + copy.CourseID + "-" + string(copy.Kind)
	}
	s.notifications = append(s.notifications, &copy)
	return nil
}

func (s *notificationStoreStub) ExistsUnread(ctx context.Context, teacherID, courseID, unitID string, kind models.NotificationKind) (bool, error) {
	for _, n := range s.notifications {
		if n.TeacherID == teacherID && n.CourseID == courseID && n.UnitID == unitID && n.Kind == kind && !n.Read {
			return true, nil
		}
	}
	return false, nil
}

func (s *notificationStoreStub) ListByTeacher(ctx context.Context, teacherID string, unreadOnly bool) ([]models.TeacherNotification, error) {
	var result []models.TeacherNotification
	for _, n := range s.notifications {
		if n.TeacherID != teacherID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		result = append(result, *n)
	}
	return result, nil
}

func (s *notificationStoreStub) MarkRead(ctx context.Context, id, teacherID string) error {
	for _, n := range s.notifications {
		if n.ID == id && n.TeacherID == teacherID {
			n.Read = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *notificationStoreStub) DeleteRead(ctx context.Context, teacherID string) (int64, error) {
	var kept []*models.TeacherNotification
	var deleted int64
	for _, n := range s.notifications {
		if n.TeacherID == teacherID && n.Read {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept
	return deleted, nil
}

type notificationUnitStub struct {
	units map[string]*models.Unit
	sent  map[string]bool
}

func (s *notificationUnitStub) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	if unit, ok := s.units[id]; ok {
		copy := *unit
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *notificationUnitStub) SetNotificationsSent(ctx context.Context, id string, sent bool) error {
	s.sent[id] = sent
	return nil
}

type notificationFixture struct {
	svc   *NotificationService
	store *notificationStoreStub
	units *notificationUnitStub
	rows  *readinessStoreStub
}

func newNotificationFixture(enabled bool) *notificationFixture {
	store := &notificationStoreStub{}
	units := &notificationUnitStub{
		units: map[string]*models.Unit{
			"unit-1": {ID: "unit-1", OfferingID: "off-1", Sequence: 1, Active: true},
		},
		sent: make(map[string]bool),
	}
	offerings := &closureOfferingStub{offerings: map[string]*models.CourseOffering{
		"off-1": {ID: "off-1", TeacherID: "teacher-1", CourseID: "course-1"},
	}}
	rows := newReadinessStoreStub()
	detail, _ := json.Marshal(models.ReadinessDetail{WeightShortfall: 20, UngradedStudents: 3})
	rows.rows["unit-1:course-1"] = &models.CourseReadiness{
		UnitID:             "unit-1",
		CourseID:           "course-1",
		ActivitiesSumTo100: false,
		CurrentActivitySum: 80,
		TotalEnrolled:      10,
		TotalFullyGraded:   7,
		Status:             models.ReadinessStatusIncomplete,
		Detail:             detail,
	}
	svc := NewNotificationService(store, units, offerings, rows, &refresherStub{},
		NotificationConfig{Enabled: enabled, DeadlineFallback: 72 * time.Hour}, nil, nil)
	return &notificationFixture{svc: svc, store: store, units: units, rows: rows}
}

func TestGenerateCreatesOnePerDeficiency(t *testing.T) {
	f := newNotificationFixture(true)

	created, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	kinds := map[models.NotificationKind]bool{}
	for _, n := range f.store.notifications {
		require.Equal(t, "teacher-1", n.TeacherID)
		require.Equal(t, "course-1", n.CourseID)
		kinds[n.Kind] = true
		if n.Kind == models.NotificationActivitiesIncomplete {
			// 80 of 100 points planned, so the message names the 20 missing.
			require.Contains(t, n.Message, "missing 20.00")
		}
	}
	require.True(t, kinds[models.NotificationActivitiesIncomplete])
	require.True(t, kinds[models.NotificationGradingIncomplete])
	require.True(t, f.units.sent["unit-1"])
}

func TestGenerateDeduplicatesUnread(t *testing.T) {
	f := newNotificationFixture(true)

	first, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, first)

	second, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, second)
	require.Len(t, f.store.notifications, 2)
}

func TestGenerateAgainAfterRead(t *testing.T) {
	f := newNotificationFixture(true)

	_, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	for _, n := range f.store.notifications {
		n.Read = true
	}

	created, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, created)
}

func TestGenerateSkipsReadyCourse(t *testing.T) {
	f := newNotificationFixture(true)
	f.rows.rows["unit-1:course-1"].Status = models.ReadinessStatusReady
	f.rows.rows["unit-1:course-1"].ActivitiesSumTo100 = true
	f.rows.rows["unit-1:course-1"].Detail = nil

	created, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, created)
	require.Empty(t, f.store.notifications)
}

func TestGenerateDisabled(t *testing.T) {
	f := newNotificationFixture(false)

	created, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, created)
	require.Empty(t, f.store.notifications)
}

func TestGenerateDeadlineFallback(t *testing.T) {
	f := newNotificationFixture(true)

	_, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, f.store.notifications)
	require.WithinDuration(t, time.Now().UTC().Add(72*time.Hour), f.store.notifications[0].Deadline, time.Minute)
}

func TestGenerateUsesUnitDeadline(t *testing.T) {
	f := newNotificationFixture(true)
	deadline := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	f.units.units["unit-1"].GradingDeadline = &deadline

	_, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)
	require.Equal(t, deadline, f.store.notifications[0].Deadline)
	require.Contains(t, f.store.notifications[0].Message, "2026-10-15")
}

func TestMarkReadAndDeleteRead(t *testing.T) {
	f := newNotificationFixture(true)
	_, err := f.svc.GenerateForUnit(context.Background(), "unit-1", nil)
	require.NoError(t, err)

	claims := teacherClaims()
	listed, err := f.svc.ListForTeacher(context.Background(), claims, true)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	require.NoError(t, f.svc.MarkRead(context.Background(), claims, listed[0].ID))

	unread, err := f.svc.ListForTeacher(context.Background(), claims, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	deleted, err := f.svc.DeleteRead(context.Background(), claims)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
