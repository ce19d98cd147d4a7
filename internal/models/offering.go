package models

import "time"

// CourseOffering assigns a teacher to a course for a grade level, section and
// shift within one academic year. The tuple is immutable once created; units
// and enrollments hang off it.
type CourseOffering struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	GradeLevel   string    `db:"grade_level" json:"grade_level"`
	Section      string    `db:"section" json:"section"`
	Shift        string    `db:"shift" json:"shift"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
