package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/learnsphere/enrollment-api/internal/models"
)

// AnalyticsRepository exposes read-only aggregation queries over the locally
// owned enrollment table and the replicated course, grade, and activity
// tables. It has no side effects and guarantees no freshness beyond the
// replicas it reads.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// DistinctStudents counts unique students enrolled across an instructor's courses.
func (r *AnalyticsRepository) DistinctStudents(ctx context.Context, instructorID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT e.user_id)
        FROM enrollments e
        JOIN course_replicas c ON c.id = e.course_id
        WHERE c.instructor_id = $1 AND e.deleted_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, instructorID); err != nil {
		return 0, fmt.Errorf("count distinct students: %w", err)
	}
	return count, nil
}

// Revenue sums price-at-enrollment across an instructor's courses. The frozen
// price is used deliberately: later course price changes do not rewrite history.
func (r *AnalyticsRepository) Revenue(ctx context.Context, instructorID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(e.price_at_enrollment), 0)
        FROM enrollments e
        JOIN course_replicas c ON c.id = e.course_id
        WHERE c.instructor_id = $1 AND e.deleted_at IS NULL`
	var revenue float64
	if err := r.db.GetContext(ctx, &revenue, query, instructorID); err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return revenue, nil
}

// GradeHistogram buckets replicated grades for an instructor's courses.
func (r *AnalyticsRepository) GradeHistogram(ctx context.Context, instructorID string) ([]models.GradeBracket, error) {
	const query = `SELECT bracket, COUNT(*) AS count FROM (
            SELECT CASE
                WHEN g.score >= 90 THEN 'A'
                WHEN g.score >= 80 THEN 'B'
                WHEN g.score >= 70 THEN 'C'
                WHEN g.score >= 60 THEN 'D'
                ELSE 'F'
            END AS bracket
            FROM grade_replicas g
            JOIN course_replicas c ON c.id = g.course_id
            WHERE c.instructor_id = $1
        ) brackets GROUP BY bracket ORDER BY bracket`
	var histogram []models.GradeBracket
	if err := r.db.SelectContext(ctx, &histogram, query, instructorID); err != nil {
		return nil, fmt.Errorf("grade histogram: %w", err)
	}
	return histogram, nil
}

// EnrollmentCount counts enrollments into an instructor's courses within
// [from, to).
func (r *AnalyticsRepository) EnrollmentCount(ctx context.Context, instructorID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*)
        FROM enrollments e
        JOIN course_replicas c ON c.id = e.course_id
        WHERE c.instructor_id = $1 AND e.enrolled_at >= $2 AND e.enrolled_at < $3 AND e.deleted_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, instructorID, from, to); err != nil {
		return 0, fmt.Errorf("count window enrollments: %w", err)
	}
	return count, nil
}

// DiscussionCount sums daily discussion counters within [from, to).
func (r *AnalyticsRepository) DiscussionCount(ctx context.Context, instructorID string, from, to time.Time) (int, error) {
	const query = `SELECT COALESCE(SUM(discussion_count), 0)
        FROM daily_activities
        WHERE instructor_id = $1 AND activity_date >= $2 AND activity_date < $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, instructorID, from, to); err != nil {
		return 0, fmt.Errorf("sum window discussions: %w", err)
	}
	return count, nil
}

// CourseCounts returns total, completed, and average progress for one course.
func (r *AnalyticsRepository) CourseCounts(ctx context.Context, courseID string) (total, completed int, avgProgress float64, err error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = $2) AS completed,
        COALESCE(AVG(progress_percentage), 0) AS avg_progress
        FROM enrollments WHERE course_id = $1 AND deleted_at IS NULL`
	row := struct {
		Total       int     `db:"total"`
		Completed   int     `db:"completed"`
		AvgProgress float64 `db:"avg_progress"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, courseID, models.EnrollmentStatusCompleted); err != nil {
		return 0, 0, 0, fmt.Errorf("course counts: %w", err)
	}
	return row.Total, row.Completed, row.AvgProgress, nil
}

// CourseProgressRows returns every enrollment's frozen snapshot and progress
// for module-level completion aggregation in the service layer.
func (r *AnalyticsRepository) CourseProgressRows(ctx context.Context, courseID string) ([]models.CourseProgressRow, error) {
	const query = `SELECT course_structure, progress FROM enrollments
        WHERE course_id = $1 AND deleted_at IS NULL`
	var rows []models.CourseProgressRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("course progress rows: %w", err)
	}
	return rows, nil
}

// StudentOverview returns enrollment counts, average progress, and average
// replicated grade for one student.
func (r *AnalyticsRepository) StudentOverview(ctx context.Context, userID string) (*models.StudentSummary, error) {
	const enrollQuery = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = $2) AS completed,
        COALESCE(AVG(progress_percentage), 0) AS avg_progress
        FROM enrollments WHERE user_id = $1 AND deleted_at IS NULL`
	row := struct {
		Total       int     `db:"total"`
		Completed   int     `db:"completed"`
		AvgProgress float64 `db:"avg_progress"`
	}{}
	if err := r.db.GetContext(ctx, &row, enrollQuery, userID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("student enrollment overview: %w", err)
	}

	const gradeQuery = `SELECT COALESCE(AVG(score), 0) FROM grade_replicas WHERE student_id = $1`
	var avgGrade float64
	if err := r.db.GetContext(ctx, &avgGrade, gradeQuery, userID); err != nil {
		return nil, fmt.Errorf("student grade average: %w", err)
	}

	return &models.StudentSummary{
		UserID:           userID,
		TotalEnrollments: row.Total,
		CompletedCourses: row.Completed,
		AverageProgress:  row.AvgProgress,
		AverageGrade:     avgGrade,
	}, nil
}
