package models

import "time"

// PassingTotal is the minimum consolidated total considered a pass.
const PassingTotal = 60.0

// UnitGrade is the consolidated result of one student for one unit. Rows are
// written only by the closure workflow or an explicit recompute.
type UnitGrade struct {
	ID             string    `db:"id" json:"id"`
	UnitID         string    `db:"unit_id" json:"unit_id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	ZonaSubtotal   float64   `db:"zona_subtotal" json:"zona_subtotal"`
	FinalSubtotal  float64   `db:"final_subtotal" json:"final_subtotal"`
	Total          float64   `db:"total" json:"total"`
	Passed         bool      `db:"passed" json:"passed"`
	ConsolidatedAt time.Time `db:"consolidated_at" json:"consolidated_at"`
	ConsolidatedBy string    `db:"consolidated_by" json:"consolidated_by"`
}
