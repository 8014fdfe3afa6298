package models

import "time"

// GradeReplica is a local projection of the grading service's grade records,
// used only by analytics queries.
type GradeReplica struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Score     float64   `db:"score" json:"score"`
	GradedAt  time.Time `db:"graded_at" json:"graded_at"`
}
