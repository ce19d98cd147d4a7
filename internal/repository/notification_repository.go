package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-gt/unidades-api/internal/models"
)

const notificationColumns = `id, teacher_id, course_id, unit_id, kind, message, deadline, read, created_at`

// NotificationRepository persists teacher notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.TeacherNotification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_notifications (id, teacher_id, course_id, unit_id, kind, message, deadline, read, created_at)
        VALUES (:id, :teacher_id, :course_id, :unit_id, :kind, :message, :deadline, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ExistsUnread reports whether an unread notification of the same kind is
// already pending for the (teacher, course, unit) triple.
func (r *NotificationRepository) ExistsUnread(ctx context.Context, teacherID, courseID, unitID string, kind models.NotificationKind) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teacher_notifications
        WHERE teacher_id = $1 AND course_id = $2 AND unit_id = $3 AND kind = $4 AND read = false)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, teacherID, courseID, unitID, kind); err != nil {
		return false, fmt.Errorf("check unread notification: %w", err)
	}
	return exists, nil
}

// ListByTeacher returns a teacher's notifications, newest first.
func (r *NotificationRepository) ListByTeacher(ctx context.Context, teacherID string, unreadOnly bool) ([]models.TeacherNotification, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_notifications WHERE teacher_id = $1", notificationColumns)
	if unreadOnly {
		query += " AND read = false"
	}
	query += " ORDER BY created_at DESC"
	var notifications []models.TeacherNotification
	if err := r.db.SelectContext(ctx, &notifications, query, teacherID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flips the read flag of a teacher's notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, teacherID string) error {
	const query = `UPDATE teacher_notifications SET read = true WHERE id = $1 AND teacher_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, teacherID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireRowsAffected(result)
}

// DeleteRead removes a teacher's read notifications and returns the count.
func (r *NotificationRepository) DeleteRead(ctx context.Context, teacherID string) (int64, error) {
	const query = `DELETE FROM teacher_notifications WHERE teacher_id = $1 AND read = true`
	result, err := r.db.ExecContext(ctx, query, teacherID)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check deleted notifications: %w", err)
	}
	return rows, nil
}
