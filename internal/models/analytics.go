package models

import "time"

// Trend compares a trailing window against the immediately preceding one.
// ChangePercent follows round(((current-previous)/previous)*100); a previous
// value of 0 yields 100 when current > 0 and 0 otherwise.
type Trend struct {
	Current       int `json:"current"`
	Previous      int `json:"previous"`
	ChangePercent int `json:"change_percent"`
}

// GradeBracket buckets replicated grade scores.
type GradeBracket struct {
	Bracket string `db:"bracket" json:"bracket"`
	Count   int    `db:"count" json:"count"`
}

// InstructorSummary aggregates cross-course statistics for one instructor.
type InstructorSummary struct {
	InstructorID     string         `json:"instructor_id"`
	DistinctStudents int            `json:"distinct_students"`
	Revenue          float64        `json:"revenue"`
	GradeHistogram   []GradeBracket `json:"grade_histogram"`
	EnrollmentTrend  Trend          `json:"enrollment_trend"`
	DiscussionTrend  Trend          `json:"discussion_trend"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// ModuleCompletion is the completion percentage of one module across all
// enrollments of a course, computed against each enrollment's frozen snapshot.
type ModuleCompletion struct {
	ModuleID          string  `json:"module_id"`
	Title             string  `json:"title"`
	CompletionPercent float64 `json:"completion_percent"`
}

// CourseSummary aggregates per-course statistics.
type CourseSummary struct {
	CourseID         string             `json:"course_id"`
	Enrollments      int                `json:"enrollments"`
	Completions      int                `json:"completions"`
	AverageProgress  float64            `json:"average_progress"`
	ModuleCompletion []ModuleCompletion `json:"module_completion"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// StudentSummary aggregates one student's standing across enrollments.
type StudentSummary struct {
	UserID           string    `json:"user_id"`
	TotalEnrollments int       `json:"total_enrollments"`
	CompletedCourses int       `json:"completed_courses"`
	AverageProgress  float64   `json:"average_progress"`
	AverageGrade     float64   `json:"average_grade"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// CourseProgressRow carries the raw snapshot/progress pair for in-process
// module-completion aggregation.
type CourseProgressRow struct {
	CourseStructure CourseStructureSnapshot `db:"course_structure"`
	Progress        Progress                `db:"progress"`
}
