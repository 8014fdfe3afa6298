package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/models"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

type analyticsStore interface {
	DistinctStudents(ctx context.Context, instructorID string) (int, error)
	Revenue(ctx context.Context, instructorID string) (float64, error)
	GradeHistogram(ctx context.Context, instructorID string) ([]models.GradeBracket, error)
	EnrollmentCount(ctx context.Context, instructorID string, from, to time.Time) (int, error)
	DiscussionCount(ctx context.Context, instructorID string, from, to time.Time) (int, error)
	CourseCounts(ctx context.Context, courseID string) (total, completed int, avgProgress float64, err error)
	CourseProgressRows(ctx context.Context, courseID string) ([]models.CourseProgressRow, error)
	StudentOverview(ctx context.Context, userID string) (*models.StudentSummary, error)
}

// AnalyticsService assembles read-only summaries from the enrollment table and
// the replicated course, grade, and activity tables. Summaries are cached with
// a short TTL; staleness up to the TTL plus replica lag is acceptable.
type AnalyticsService struct {
	repo      analyticsStore
	courses   courseReplicaReader
	cache     *CacheService
	cacheTTL  time.Duration
	trendDays int
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalyticsService constructs AnalyticsService. trendDays sets the width of
// the trailing comparison windows.
func NewAnalyticsService(repo analyticsStore, courses courseReplicaReader, cache *CacheService, cacheTTL time.Duration, trendDays int, logger *zap.Logger) *AnalyticsService {
	if trendDays <= 0 {
		trendDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		repo:      repo,
		courses:   courses,
		cache:     cache,
		cacheTTL:  cacheTTL,
		trendDays: trendDays,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InstructorSummary aggregates distinct students, frozen-price revenue, the
// grade histogram, and enrollment/discussion trends for one instructor.
func (s *AnalyticsService) InstructorSummary(ctx context.Context, instructorID string) (*models.InstructorSummary, error) {
	key := cacheKeyInstructorSummary + instructorID
	var cached models.InstructorSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	students, err := s.repo.DistinctStudents(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	revenue, err := s.repo.Revenue(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum revenue")
	}
	histogram, err := s.repo.GradeHistogram(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bucket grades")
	}
	if histogram == nil {
		histogram = []models.GradeBracket{}
	}

	currentFrom, previousFrom, to := s.trendWindows()
	enrollTrend, err := s.trend(ctx, instructorID, currentFrom, previousFrom, to, s.repo.EnrollmentCount)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute enrollment trend")
	}
	discussTrend, err := s.trend(ctx, instructorID, currentFrom, previousFrom, to, s.repo.DiscussionCount)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute discussion trend")
	}

	summary := &models.InstructorSummary{
		InstructorID:     instructorID,
		DistinctStudents: students,
		Revenue:          revenue,
		GradeHistogram:   histogram,
		EnrollmentTrend:  enrollTrend,
		DiscussionTrend:  discussTrend,
		GeneratedAt:      s.now(),
	}
	s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, nil
}

// CourseSummaryFor authorizes the actor against the course before computing
// its summary. Instructors may only read their own courses.
func (s *AnalyticsService) CourseSummaryFor(ctx context.Context, actor models.JWTClaims, courseID string) (*models.CourseSummary, error) {
	if actor.Role != models.RoleAdmin {
		course, err := s.courses.FindByID(ctx, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		if actor.Role != models.RoleInstructor || course.InstructorID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this course's analytics")
		}
	}
	return s.CourseSummary(ctx, courseID)
}

// CourseSummary aggregates one course's enrollment counts, average progress,
// and per-module completion percentages.
func (s *AnalyticsService) CourseSummary(ctx context.Context, courseID string) (*models.CourseSummary, error) {
	key := cacheKeyCourseSummary + courseID
	var cached models.CourseSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	total, completed, avgProgress, err := s.repo.CourseCounts(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	rows, err := s.repo.CourseProgressRows(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress rows")
	}

	summary := &models.CourseSummary{
		CourseID:         courseID,
		Enrollments:      total,
		Completions:      completed,
		AverageProgress:  round2(avgProgress),
		ModuleCompletion: moduleCompletion(rows),
		GeneratedAt:      s.now(),
	}
	s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, nil
}

// StudentSummary aggregates one student's enrollments and replicated grades.
func (s *AnalyticsService) StudentSummary(ctx context.Context, userID string) (*models.StudentSummary, error) {
	key := cacheKeyStudentSummary + userID
	var cached models.StudentSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	summary, err := s.repo.StudentOverview(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student overview")
	}
	summary.AverageProgress = round2(summary.AverageProgress)
	summary.AverageGrade = round2(summary.AverageGrade)
	summary.GeneratedAt = s.now()

	s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, nil
}

// trendWindows splits the recent past into two adjacent windows of trendDays
// each: [previousFrom, currentFrom) and [currentFrom, to).
func (s *AnalyticsService) trendWindows() (currentFrom, previousFrom, to time.Time) {
	to = s.now()
	currentFrom = to.AddDate(0, 0, -s.trendDays)
	previousFrom = currentFrom.AddDate(0, 0, -s.trendDays)
	return currentFrom, previousFrom, to
}

func (s *AnalyticsService) trend(ctx context.Context, instructorID string, currentFrom, previousFrom, to time.Time,
	count func(ctx context.Context, instructorID string, from, to time.Time) (int, error)) (models.Trend, error) {
	current, err := count(ctx, instructorID, currentFrom, to)
	if err != nil {
		return models.Trend{}, err
	}
	previous, err := count(ctx, instructorID, previousFrom, currentFrom)
	if err != nil {
		return models.Trend{}, err
	}
	return models.Trend{
		Current:       current,
		Previous:      previous,
		ChangePercent: percentChange(current, previous),
	}, nil
}

// percentChange reports the rounded relative change between two window counts.
// A zero previous window maps to 100 when the current window has any activity
// and 0 otherwise, so consumers never see a division artifact.
func percentChange(current, previous int) int {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(current-previous) / float64(previous) * 100))
}

// moduleCompletion averages, per module, each enrollment's completion of that
// module measured against its own frozen snapshot. Enrollments whose snapshot
// lacks the module are excluded from that module's denominator.
func moduleCompletion(rows []models.CourseProgressRow) []models.ModuleCompletion {
	type acc struct {
		title string
		sum   float64
		n     int
	}
	order := []string{}
	byModule := map[string]*acc{}

	for _, row := range rows {
		done := make(map[string]struct{}, len(row.Progress.CompletedLessons))
		for _, id := range row.Progress.CompletedLessons {
			done[id] = struct{}{}
		}
		for _, module := range row.CourseStructure.Modules {
			if len(module.LessonIDs) == 0 {
				continue
			}
			a, ok := byModule[module.ID]
			if !ok {
				a = &acc{title: module.Title}
				byModule[module.ID] = a
				order = append(order, module.ID)
			}
			completed := 0
			for _, lessonID := range module.LessonIDs {
				if _, ok := done[lessonID]; ok {
					completed++
				}
			}
			a.sum += float64(completed) / float64(len(module.LessonIDs)) * 100
			a.n++
		}
	}

	result := make([]models.ModuleCompletion, 0, len(order))
	for _, id := range order {
		a := byModule[id]
		result = append(result, models.ModuleCompletion{
			ModuleID:          id,
			Title:             a.title,
			CompletionPercent: round2(a.sum / float64(a.n)),
		})
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
