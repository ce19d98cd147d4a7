package models

import "time"

// EnrollmentStatus tracks a student's membership in an offering.
type EnrollmentStatus string

const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusWithdrawn   EnrollmentStatus = "WITHDRAWN"
)

// Enrollment links a student to a course offering for an academic year.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	OfferingID   string           `db:"offering_id" json:"offering_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	AcademicYear int              `db:"academic_year" json:"academic_year"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	JoinedAt     time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt       *time.Time       `db:"left_at" json:"left_at,omitempty"`
}
