package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// State machine: ACTIVE <-> SUSPENDED, ACTIVE -> COMPLETED (terminal).
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Versions tag the persisted JSON shapes so future changes can be migrated
// deliberately instead of silently.
const (
	SnapshotVersion = 1
	ProgressVersion = 1
)

// ModuleSnapshot is one module of a frozen course structure.
type ModuleSnapshot struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	LessonIDs []string `json:"lessonIds"`
}

// CourseStructureSnapshot is an immutable copy of a course's module/lesson
// layout taken at enrollment time. It never tracks later course edits, so the
// progress denominator stays stable for the student.
type CourseStructureSnapshot struct {
	Version      int              `json:"version"`
	TotalLessons int              `json:"totalLessons"`
	Modules      []ModuleSnapshot `json:"modules"`
}

// HasLesson reports whether the lesson belongs to the frozen structure.
func (s CourseStructureSnapshot) HasLesson(lessonID string) bool {
	for _, m := range s.Modules {
		for _, id := range m.LessonIDs {
			if id == lessonID {
				return true
			}
		}
	}
	return false
}

// Value marshals the snapshot for JSONB persistence.
func (s CourseStructureSnapshot) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal course structure: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB snapshot column.
func (s *CourseStructureSnapshot) Scan(value interface{}) error {
	return scanJSON(value, s, "CourseStructureSnapshot")
}

// Progress is the mutable set of completed lesson ids. Set semantics: adding
// an already-present lesson is a no-op.
type Progress struct {
	Version          int      `json:"version"`
	CompletedLessons []string `json:"completedLessons"`
}

// Contains reports whether the lesson has been completed.
func (p Progress) Contains(lessonID string) bool {
	for _, id := range p.CompletedLessons {
		if id == lessonID {
			return true
		}
	}
	return false
}

// Add unions the lesson into the completed set, returning false when it was
// already present.
func (p *Progress) Add(lessonID string) bool {
	if p.Contains(lessonID) {
		return false
	}
	p.CompletedLessons = append(p.CompletedLessons, lessonID)
	return true
}

// Value marshals progress for JSONB persistence.
func (p Progress) Value() (driver.Value, error) {
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal progress: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB progress column.
func (p *Progress) Scan(value interface{}) error {
	return scanJSON(value, p, "Progress")
}

// ProgressPercentage computes 100 * |completed ∩ snapshot lessons| / total
// snapshot lessons, rounded to two decimals. Lessons foreign to the snapshot
// never count, so the result stays within [0, 100].
func ProgressPercentage(progress Progress, snapshot CourseStructureSnapshot) float64 {
	if snapshot.TotalLessons <= 0 {
		return 0
	}
	counted := 0
	for _, id := range progress.CompletedLessons {
		if snapshot.HasLesson(id) {
			counted++
		}
	}
	pct := float64(counted) / float64(snapshot.TotalLessons) * 100
	return math.Round(pct*100) / 100
}

// Enrollment is the central aggregate: a student's registration to a course,
// its frozen structure snapshot, and mutable progress state.
type Enrollment struct {
	ID                 string                  `db:"id" json:"id"`
	UserID             string                  `db:"user_id" json:"user_id"`
	CourseID           string                  `db:"course_id" json:"course_id"`
	Status             EnrollmentStatus        `db:"status" json:"status"`
	CourseStructure    CourseStructureSnapshot `db:"course_structure" json:"course_structure"`
	Progress           Progress                `db:"progress" json:"progress"`
	ProgressPercentage float64                 `db:"progress_percentage" json:"progress_percentage"`
	PriceAtEnrollment  float64                 `db:"price_at_enrollment" json:"price_at_enrollment"`
	Currency           string                  `db:"currency" json:"currency"`
	EnrolledAt         time.Time               `db:"enrolled_at" json:"enrolled_at"`
	LastAccessedAt     *time.Time              `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	UpdatedAt          time.Time               `db:"updated_at" json:"updated_at"`

	// Certificate metadata, populated after completion.
	CertificateID  *string    `db:"certificate_id" json:"certificate_id,omitempty"`
	CertificateURL *string    `db:"certificate_url" json:"certificate_url,omitempty"`
	Favorite       bool       `db:"favorite" json:"favorite"`
	Archived       bool       `db:"archived" json:"archived"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}

// EnrollmentDetail enriches an enrollment with replica-sourced course info and
// a best-effort user display name.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle  string `db:"course_title" json:"course_title"`
	InstructorID string `db:"instructor_id" json:"instructor_id"`
	UserName     string `db:"-" json:"user_name,omitempty"`
}

// EnrollmentFilter provides filters for course-scoped enrollment listings.
type EnrollmentFilter struct {
	Status   EnrollmentStatus
	Page     int
	PageSize int
}

func scanJSON(value interface{}, dest interface{}, kind string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, kind)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return nil
}
