package models

import (
	"encoding/json"
	"time"
)

// ReadinessStatus summarises how close a course is to closure within a unit.
type ReadinessStatus string

const (
	ReadinessStatusReady      ReadinessStatus = "READY"
	ReadinessStatusPending    ReadinessStatus = "PENDING"
	ReadinessStatusIncomplete ReadinessStatus = "INCOMPLETE"
)

// CourseReadiness is the cached result of the readiness evaluation for a
// (unit, course) pair. It is derived state: always recomputable from
// activities, grades and enrollments, and re-checked fresh before closure.
type CourseReadiness struct {
	ID                 string          `db:"id" json:"id"`
	UnitID             string          `db:"unit_id" json:"unit_id"`
	CourseID           string          `db:"course_id" json:"course_id"`
	ActivitiesSumTo100 bool            `db:"activities_sum_to_100" json:"activities_sum_to_100"`
	CurrentActivitySum float64         `db:"current_activity_sum" json:"current_activity_sum"`
	TotalEnrolled      int             `db:"total_enrolled" json:"total_enrolled"`
	TotalFullyGraded   int             `db:"total_fully_graded" json:"total_fully_graded"`
	PercentComplete    float64         `db:"percent_complete" json:"percent_complete"`
	Status             ReadinessStatus `db:"status" json:"status"`
	Detail             json.RawMessage `db:"detail" json:"detail,omitempty"`
	ComputedAt         time.Time       `db:"computed_at" json:"computed_at"`
}

// ReadinessDetail is the structured description of outstanding items stored
// in the detail column and returned to API consumers.
type ReadinessDetail struct {
	WeightShortfall  float64  `json:"weight_shortfall,omitempty"`
	UngradedStudents int      `json:"ungraded_students,omitempty"`
	PendingStudents  []string `json:"pending_students,omitempty"`
}
