package models

import "time"

// ReopeningStatus captures workflow states for reopening requests.
type ReopeningStatus string

const (
	ReopeningStatusPending  ReopeningStatus = "PENDING"
	ReopeningStatusApproved ReopeningStatus = "APPROVED"
	ReopeningStatusRejected ReopeningStatus = "REJECTED"
)

// ReopeningDecision groups the columns written when a pending request is
// processed.
type ReopeningDecision struct {
	ID                string
	Status            ReopeningStatus
	DecidedBy         string
	DecidedAt         time.Time
	Notes             *string
	DeactivatedUnitID *string
}

// ReopeningRequest is a teacher's petition to reactivate a closed unit.
// At most one pending request may exist per (unit, teacher); approval and
// rejection are terminal.
type ReopeningRequest struct {
	ID                string          `db:"id" json:"id"`
	UnitID            string          `db:"unit_id" json:"unit_id"`
	TeacherID         string          `db:"teacher_id" json:"teacher_id"`
	Reason            string          `db:"reason" json:"reason"`
	Status            ReopeningStatus `db:"status" json:"status"`
	Notes             *string         `db:"notes" json:"notes,omitempty"`
	DecidedBy         *string         `db:"decided_by" json:"decided_by,omitempty"`
	RequestedAt       time.Time       `db:"requested_at" json:"requested_at"`
	DecidedAt         *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	DeactivatedUnitID *string         `db:"deactivated_unit_id" json:"deactivated_unit_id,omitempty"`
}
