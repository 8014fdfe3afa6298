package events

import "time"

// Topic names for the shared topic exchange. Dot-separated, stable contract
// with the other platform services.
const (
	TopicCourseCreated = "course.created"
	TopicCourseUpdated = "course.updated"
	TopicCourseDeleted = "course.deleted"

	TopicGradeRecorded = "grade.recorded"
	TopicGradeDeleted  = "grade.deleted"

	TopicDiscussionCreated = "discussion.created"

	TopicUserEnrolled          = "user.enrolled"
	TopicProgressUpdated       = "student.progress.updated"
	TopicCourseCompleted       = "student.course.completed"
	TopicEnrollmentSuspended   = "user.enrollment.suspended"
	TopicEnrollmentReactivated = "user.enrollment.reactivated"
	TopicProgressReset         = "student.progress.reset"

	TopicReportRequested = "report.generate.request"
	TopicReportCompleted = "report.generate.result"
)

// CourseEvent is the payload for course.created and course.updated.
type CourseEvent struct {
	CourseID             string  `json:"courseId"`
	InstructorID         string  `json:"instructorId"`
	Status               string  `json:"status"`
	PrerequisiteCourseID *string `json:"prerequisiteCourseId,omitempty"`
	Price                float64 `json:"price"`
	Currency             string  `json:"currency"`
	Title                string  `json:"title"`
}

// CourseDeletedEvent signals removal of a course upstream.
type CourseDeletedEvent struct {
	CourseID string `json:"courseId"`
}

// GradeEvent is the payload for grade.recorded.
type GradeEvent struct {
	GradeID   string    `json:"gradeId"`
	StudentID string    `json:"studentId"`
	CourseID  string    `json:"courseId"`
	Score     float64   `json:"score"`
	GradedAt  time.Time `json:"gradedAt"`
}

// GradeDeletedEvent signals removal of a grade upstream.
type GradeDeletedEvent struct {
	GradeID string `json:"gradeId"`
}

// DiscussionCreatedEvent feeds the per-instructor daily activity counters.
type DiscussionCreatedEvent struct {
	DiscussionID string    `json:"discussionId"`
	InstructorID string    `json:"instructorId"`
	CourseID     string    `json:"courseId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserEnrolledEvent announces a successful enrollment.
type UserEnrolledEvent struct {
	UserID       string    `json:"userId"`
	CourseID     string    `json:"courseId"`
	EnrollmentID string    `json:"enrollmentId"`
	EnrolledAt   time.Time `json:"enrolledAt"`
	InstructorID string    `json:"instructorId,omitempty"`
}

// ProgressUpdatedEvent announces a lesson completion.
type ProgressUpdatedEvent struct {
	UserID             string  `json:"userId"`
	CourseID           string  `json:"courseId"`
	LessonID           string  `json:"lessonId"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// CourseCompletedEvent fires exactly once per enrollment, at the first
// transition to 100% progress.
type CourseCompletedEvent struct {
	UserID       string    `json:"userId"`
	CourseID     string    `json:"courseId"`
	EnrollmentID string    `json:"enrollmentId"`
	CompletedAt  time.Time `json:"completedAt"`
}

// EnrollmentLifecycleEvent is shared by suspend, reinstate and reset.
type EnrollmentLifecycleEvent struct {
	UserID       string `json:"userId"`
	CourseID     string `json:"courseId"`
	EnrollmentID string `json:"enrollmentId"`
	ActorID      string `json:"actorId"`
}

// ReportRequestedEvent asks a worker to generate a report artifact.
type ReportRequestedEvent struct {
	JobID string `json:"jobId"`
}

// ReportCompletedEvent carries the outcome of a report job back.
type ReportCompletedEvent struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	ResultURL string `json:"resultUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}
