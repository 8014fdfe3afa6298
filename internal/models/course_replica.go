package models

import "time"

// CourseStatus mirrors the owning service's course lifecycle.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "DRAFT"
	CourseStatusPublished CourseStatus = "PUBLISHED"
)

// CourseReplica is a local, minimal projection of the course service's course
// entity. It is written exclusively by the read-model sync listeners and is
// eventually consistent with the upstream source of truth.
type CourseReplica struct {
	ID                   string       `db:"id" json:"id"`
	InstructorID         string       `db:"instructor_id" json:"instructor_id"`
	Status               CourseStatus `db:"status" json:"status"`
	PrerequisiteCourseID *string      `db:"prerequisite_course_id" json:"prerequisite_course_id,omitempty"`
	Price                float64      `db:"price" json:"price"`
	Currency             string       `db:"currency" json:"currency"`
	Title                string       `db:"title" json:"title"`
	UpdatedAt            time.Time    `db:"updated_at" json:"updated_at"`
}
