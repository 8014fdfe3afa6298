package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/learnsphere/enrollment-api/internal/models"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

const enrollmentColumns = `id, user_id, course_id, status, course_structure, progress, progress_percentage,
        price_at_enrollment, currency, enrolled_at, last_accessed_at, updated_at,
        certificate_id, certificate_url, favorite, archived, notes, deleted_at`

// EnrollmentRepository owns persistence of the enrollment aggregate. No other
// component writes to the enrollments table.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment. A concurrent duplicate for the same
// (user, course) pair trips the unique constraint and surfaces as a conflict.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}

	const query = `INSERT INTO enrollments (id, user_id, course_id, status, course_structure, progress,
        progress_percentage, price_at_enrollment, currency, enrolled_at, updated_at, favorite, archived)
        VALUES (:id, :user_id, :course_id, :status, :course_structure, :progress,
        :progress_percentage, :price_at_enrollment, :currency, :enrolled_at, :updated_at, :favorite, :archived)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "user already enrolled in course")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 AND deleted_at IS NULL`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByUserAndCourse returns the enrollment for a (user, course) pair.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE user_id = $1 AND course_id = $2 AND deleted_at IS NULL`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// HasCompleted reports whether the user holds a COMPLETED enrollment for the
// course, used for prerequisite checks.
func (r *EnrollmentRepository) HasCompleted(ctx context.Context, userID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND status = $3 AND deleted_at IS NULL LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, userID, courseID, models.EnrollmentStatusCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check completed enrollment: %w", err)
	}
	return true, nil
}

// ListByUser returns the user's enrollments enriched with replica course info.
// A deleted course replica degrades to empty title, not a missing row.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.user_id, e.course_id, e.status, e.course_structure, e.progress,
        e.progress_percentage, e.price_at_enrollment, e.currency, e.enrolled_at, e.last_accessed_at, e.updated_at,
        e.certificate_id, e.certificate_url, e.favorite, e.archived, e.notes, e.deleted_at,
        COALESCE(c.title, '') AS course_title, COALESCE(c.instructor_id, '') AS instructor_id
        FROM enrollments e
        LEFT JOIN course_replicas c ON c.id = e.course_id
        WHERE e.user_id = $1 AND e.deleted_at IS NULL
        ORDER BY e.enrolled_at DESC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return details, nil
}

// ListByCourse returns a page of enrollments for one course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	conditions := []string{"course_id = $1", "deleted_at IS NULL"}
	args := []interface{}{courseID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY enrolled_at DESC LIMIT %d OFFSET %d`,
		enrollmentColumns, clause, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list course enrollments: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM enrollments" + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return enrollments, total, nil
}

// MarkLessonComplete unions the lesson into the completed set under a row
// lock, so two concurrent completions for the same enrollment cannot overwrite
// each other. It returns the updated enrollment and whether this call was the
// first to reach 100%.
func (r *EnrollmentRepository) MarkLessonComplete(ctx context.Context, userID, courseID, lessonID string) (*models.Enrollment, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin progress tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE user_id = $1 AND course_id = $2 AND deleted_at IS NULL FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		return nil, false, err
	}

	if !enrollment.CourseStructure.HasLesson(lessonID) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "lesson does not belong to the enrolled course structure")
	}

	now := time.Now().UTC()
	completedNow := false
	if enrollment.Progress.Add(lessonID) {
		previous := enrollment.ProgressPercentage
		enrollment.ProgressPercentage = models.ProgressPercentage(enrollment.Progress, enrollment.CourseStructure)
		if previous < 100 && enrollment.ProgressPercentage >= 100 {
			completedNow = true
			enrollment.Status = models.EnrollmentStatusCompleted
		}
	}
	enrollment.LastAccessedAt = &now
	enrollment.UpdatedAt = now

	const update = `UPDATE enrollments SET progress = $2, progress_percentage = $3, status = $4,
        last_accessed_at = $5, updated_at = $6 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, enrollment.ID, enrollment.Progress,
		enrollment.ProgressPercentage, enrollment.Status, enrollment.LastAccessedAt, enrollment.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("update progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit progress tx: %w", err)
	}
	return &enrollment, completedNow, nil
}

// UpdateStatus moves the enrollment to the given status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// ResetProgress clears the completed set, zeroes the percentage, and forces
// the enrollment back to ACTIVE.
func (r *EnrollmentRepository) ResetProgress(ctx context.Context, id string) error {
	empty := models.Progress{Version: models.ProgressVersion, CompletedLessons: []string{}}
	const query = `UPDATE enrollments SET progress = $2, progress_percentage = 0, status = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, empty, models.EnrollmentStatusActive, time.Now().UTC()); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
