package models

import "time"

// ActivityKind distinguishes continuous assessment from the end-of-unit exam.
type ActivityKind string

const (
	ActivityKindZona  ActivityKind = "ZONA"
	ActivityKindFinal ActivityKind = "FINAL"
)

// Activity is a gradable component within a unit. Active zona and final
// activities of a unit must sum to 100 points for the course to be ready,
// and a final activity accepts scores only once the zona activities cover
// the unit's configured zona weight.
type Activity struct {
	ID        string       `db:"id" json:"id"`
	UnitID    string       `db:"unit_id" json:"unit_id"`
	Kind      ActivityKind `db:"kind" json:"kind"`
	Name      string       `db:"name" json:"name"`
	MaxPoints float64      `db:"max_points" json:"max_points"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// WeightSumTolerance is the permitted deviation when activity max points are
// compared against the expected 100-point total.
const WeightSumTolerance = 0.01
