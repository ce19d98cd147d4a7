package models

import "time"

// Grade holds the score of one student on one activity. Score stays null
// until the teacher grades it; rows are seeded when an activity is created
// and when a student transfers into the group mid-period.
type Grade struct {
	ID         string    `db:"id" json:"id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Score      *float64  `db:"score" json:"score,omitempty"`
	GradedBy   *string   `db:"graded_by" json:"graded_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// UnitGradeRow is a grade joined with its activity metadata, used by the
// readiness and consolidation computations.
type UnitGradeRow struct {
	ActivityID string       `db:"activity_id"`
	StudentID  string       `db:"student_id"`
	Kind       ActivityKind `db:"kind"`
	MaxPoints  float64      `db:"max_points"`
	Score      *float64     `db:"score"`
}
