package models

import "time"

// NotificationKind classifies the deficiency a notification reports.
type NotificationKind string

const (
	// NotificationActivitiesIncomplete flags activity weights not summing to 100.
	NotificationActivitiesIncomplete NotificationKind = "ACTIVITIES_INCOMPLETE"
	// NotificationGradingIncomplete flags students still missing grades.
	NotificationGradingIncomplete NotificationKind = "GRADING_INCOMPLETE"
)

// TeacherNotification is an action item derived from course readiness and
// shown to the owning teacher. Unread notifications of a kind deduplicate
// repeated generation runs.
type TeacherNotification struct {
	ID        string           `db:"id" json:"id"`
	TeacherID string           `db:"teacher_id" json:"teacher_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	UnitID    string           `db:"unit_id" json:"unit_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Message   string           `db:"message" json:"message"`
	Deadline  time.Time        `db:"deadline" json:"deadline"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
