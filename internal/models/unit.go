package models

import "time"

// Unit is one of the four grading periods of a course offering.
//
// At most one unit per offering is active at a time, and zona_weight +
// final_weight must equal 100 whenever both are set. Closure is performed by
// the closure workflow only; reopening goes through the reopening workflow.
type Unit struct {
	ID                string     `db:"id" json:"id"`
	OfferingID        string     `db:"offering_id" json:"offering_id"`
	Sequence          int        `db:"sequence" json:"sequence"`
	ZonaWeight        float64    `db:"zona_weight" json:"zona_weight"`
	FinalWeight       float64    `db:"final_weight" json:"final_weight"`
	Active            bool       `db:"active" json:"active"`
	Closed            bool       `db:"closed" json:"closed"`
	GradingDeadline   *time.Time `db:"grading_deadline" json:"grading_deadline,omitempty"`
	ClosedAt          *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	ClosedBy          *string    `db:"closed_by" json:"closed_by,omitempty"`
	NotificationsSent bool       `db:"notifications_sent" json:"notifications_sent"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// MaxUnitSequence bounds the number of grading periods per offering.
const MaxUnitSequence = 4
