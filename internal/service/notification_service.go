package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/colegio-gt/unidades-api/internal/models"
	appErrors "github.com/colegio-gt/unidades-api/pkg/errors"
	"github.com/colegio-gt/unidades-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.TeacherNotification) error
	ExistsUnread(ctx context.Context, teacherID, courseID, unitID string, kind models.NotificationKind) (bool, error)
	ListByTeacher(ctx context.Context, teacherID string, unreadOnly bool) ([]models.TeacherNotification, error)
	MarkRead(ctx context.Context, id, teacherID string) error
	DeleteRead(ctx context.Context, teacherID string) (int64, error)
}

type notificationUnitStore interface {
	GetByID(ctx context.Context, id string) (*models.Unit, error)
	SetNotificationsSent(ctx context.Context, id string, sent bool) error
}

type notificationReadinessReader interface {
	ListByUnit(ctx context.Context, unitID string) ([]models.CourseReadiness, error)
}

// NotificationConfig tunes notification generation.
type NotificationConfig struct {
	Enabled          bool
	DeadlineFallback time.Duration
	WorkerCount      int
}

// NotificationService turns non-ready course readiness into per-teacher
// action items. Unread notifications of the same kind deduplicate repeated
// generation runs, so the generator is safe to invoke on a schedule.
type NotificationService struct {
	notifications notificationStore
	units         notificationUnitStore
	offerings     gradeOfferingReader
	readiness     notificationReadinessReader
	refresher     readinessRefresher
	queue         *jobs.Queue
	cfg           NotificationConfig
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewNotificationService constructs a NotificationService with its own
// background generation queue.
func NewNotificationService(notifications notificationStore, units notificationUnitStore,
	offerings gradeOfferingReader, readiness notificationReadinessReader, refresher readinessRefresher,
	cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DeadlineFallback <= 0 {
		cfg.DeadlineFallback = 72 * time.Hour
	}
	s := &NotificationService{
		notifications: notifications,
		units:         units,
		offerings:     offerings,
		readiness:     readiness,
		refresher:     refresher,
		cfg:           cfg,
		metrics:       metrics,
		logger:        logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers: cfg.WorkerCount,
		Logger:  logger,
	})
	return s
}

// Start launches the background generation workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the background workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// EnqueueGenerate schedules asynchronous notification generation for a unit.
func (s *NotificationService) EnqueueGenerate(unitID string) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "notifications.generate",
		Payload: unitID,
	})
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	unitID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("unexpected notification job payload", zap.String("job_id", job.ID))
		return nil
	}
	_, err := s.GenerateForUnit(ctx, unitID, nil)
	return err
}

// GenerateForUnit creates one notification per deficiency class for every
// course of the unit that is not READY. Returns the number created.
func (s *NotificationService) GenerateForUnit(ctx context.Context, unitID string, deadlineOverride *time.Time) (int, error) {
	if !s.cfg.Enabled {
		return 0, nil
	}

	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load unit")
	}
	offering, err := s.offerings.GetByID(ctx, unit.OfferingID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load offering")
	}

	rows, err := s.readiness.ListByUnit(ctx, unit.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list readiness")
	}
	if len(rows) == 0 {
		fresh, err := s.refresher.Refresh(ctx, unit.ID)
		if err != nil {
			return 0, err
		}
		rows = []models.CourseReadiness{*fresh}
	}

	deadline := s.resolveDeadline(unit, deadlineOverride)
	created := 0
	for _, row := range rows {
		if row.Status == models.ReadinessStatusReady {
			continue
		}
		var detail models.ReadinessDetail
		if len(row.Detail) > 0 {
			if err := json.Unmarshal(row.Detail, &detail); err != nil {
				s.logger.Warn("malformed readiness detail",
					zap.String("unit_id", unit.ID), zap.String("course_id", row.CourseID), zap.Error(err))
			}
		}

		if !row.ActivitiesSumTo100 {
			message := fmt.Sprintf("activities for unit %d are missing %.2f of 100 points; complete the activity plan before %s",
				unit.Sequence, 100-row.CurrentActivitySum, deadline.Format("2006-01-02"))
			n, err := s.createIfAbsent(ctx, offering.TeacherID, row.CourseID, unit.ID,
				models.NotificationActivitiesIncomplete, message, deadline)
			if err != nil {
				return created, err
			}
			created += n
		}
		if detail.UngradedStudents > 0 {
			message := fmt.Sprintf("%d students are missing grades in unit %d; grading closes %s",
				detail.UngradedStudents, unit.Sequence, deadline.Format("2006-01-02"))
			n, err := s.createIfAbsent(ctx, offering.TeacherID, row.CourseID, unit.ID,
				models.NotificationGradingIncomplete, message, deadline)
			if err != nil {
				return created, err
			}
			created += n
		}
	}

	if err := s.units.SetNotificationsSent(ctx, unit.ID, true); err != nil {
		s.logger.Warn("mark notifications sent failed", zap.String("unit_id", unit.ID), zap.Error(err))
	}
	s.logger.Info("notification generation finished",
		zap.String("unit_id", unit.ID), zap.Int("created", created))
	return created, nil
}

// ListForTeacher returns the caller's notifications.
func (s *NotificationService) ListForTeacher(ctx context.Context, claims *models.JWTClaims, unreadOnly bool) ([]models.TeacherNotification, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	notifications, err := s.notifications.ListByTeacher(ctx, claims.UserID, unreadOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list notifications")
	}
	return notifications, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.notifications.MarkRead(ctx, id, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "mark notification read")
	}
	return nil
}

// DeleteRead removes the caller's read notifications and returns the count.
func (s *NotificationService) DeleteRead(ctx context.Context, claims *models.JWTClaims) (int64, error) {
	if claims == nil {
		return 0, appErrors.ErrUnauthorized
	}
	deleted, err := s.notifications.DeleteRead(ctx, claims.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete read notifications")
	}
	return deleted, nil
}

func (s *NotificationService) createIfAbsent(ctx context.Context, teacherID, courseID, unitID string,
	kind models.NotificationKind, message string, deadline time.Time) (int, error) {
	exists, err := s.notifications.ExistsUnread(ctx, teacherID, courseID, unitID, kind)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check existing notification")
	}
	if exists {
		return 0, nil
	}
	notification := &models.TeacherNotification{
		TeacherID: teacherID,
		CourseID:  courseID,
		UnitID:    unitID,
		Kind:      kind,
		Message:   message,
		Deadline:  deadline,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create notification")
	}
	s.metrics.RecordNotification(string(kind))
	return 1, nil
}

func (s *NotificationService) resolveDeadline(unit *models.Unit, override *time.Time) time.Time {
	if override != nil {
		return *override
	}
	if unit.GradingDeadline != nil {
		return *unit.GradingDeadline
	}
	return time.Now().UTC().Add(s.cfg.DeadlineFallback)
}
