package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/events"
	"github.com/learnsphere/enrollment-api/internal/models"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	HasCompleted(ctx context.Context, userID, courseID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
	ListByCourse(ctx context.Context, courseID string, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	MarkLessonComplete(ctx context.Context, userID, courseID, lessonID string) (*models.Enrollment, bool, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ResetProgress(ctx context.Context, id string) error
}

type courseReplicaReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseReplica, error)
}

type structureFetcher interface {
	FetchStructure(ctx context.Context, courseID string) (models.CourseStructureSnapshot, error)
}

type userDirectory interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

type enrollmentEventPublisher interface {
	UserEnrolled(ctx context.Context, evt events.UserEnrolledEvent) error
	ProgressUpdated(ctx context.Context, evt events.ProgressUpdatedEvent) error
	CourseCompleted(ctx context.Context, evt events.CourseCompletedEvent) error
	EnrollmentSuspended(ctx context.Context, evt events.EnrollmentLifecycleEvent) error
	EnrollmentReactivated(ctx context.Context, evt events.EnrollmentLifecycleEvent) error
	ProgressReset(ctx context.Context, evt events.EnrollmentLifecycleEvent) error
}

// EnrollRequest describes enrollment creation.
type EnrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// EnrollmentService orchestrates the enrollment aggregate: enrollment
// creation, the progress state machine, and lifecycle transitions. Every
// mutation invalidates the enrolling user's cached list after the write and
// publishes the corresponding domain event; both are best-effort post-steps.
type EnrollmentService struct {
	repo       enrollmentStore
	courses    courseReplicaReader
	structures structureFetcher
	users      userDirectory
	publisher  enrollmentEventPublisher
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, courses courseReplicaReader, structures structureFetcher,
	users userDirectory, publisher enrollmentEventPublisher, cache *CacheService,
	validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:       repo,
		courses:    courses,
		structures: structures,
		users:      users,
		publisher:  publisher,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// Enroll registers a user to a published course, freezing the course
// structure as the progress denominator.
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.repo.FindByUserAndCourse(ctx, userID, req.CourseID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already enrolled in course")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not published")
	}

	if course.PrerequisiteCourseID != nil && *course.PrerequisiteCourseID != "" {
		done, err := s.repo.HasCompleted(ctx, userID, *course.PrerequisiteCourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite")
		}
		if !done {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "prerequisite course not completed")
		}
	}

	structure, err := s.structures.FetchStructure(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course structure")
	}
	if structure.TotalLessons == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course has no lessons")
	}

	enrollment := &models.Enrollment{
		UserID:            userID,
		CourseID:          req.CourseID,
		Status:            models.EnrollmentStatusActive,
		CourseStructure:   structure,
		Progress:          models.Progress{Version: models.ProgressVersion, CompletedLessons: []string{}},
		PriceAtEnrollment: course.Price,
		Currency:          course.Currency,
		EnrolledAt:        time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err := s.publisher.UserEnrolled(ctx, events.UserEnrolledEvent{
		UserID:       userID,
		CourseID:     req.CourseID,
		EnrollmentID: enrollment.ID,
		EnrolledAt:   enrollment.EnrolledAt,
		InstructorID: course.InstructorID,
	}); err != nil {
		s.logger.Error("user.enrolled publish failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, UserEnrollmentsKey(userID))

	return enrollment, nil
}

// ListMine returns the user's enrollments through the read-through cache.
func (s *EnrollmentService) ListMine(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	key := UserEnrollmentsKey(userID)
	var cached []models.EnrollmentDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	details, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if details == nil {
		details = []models.EnrollmentDetail{}
	}
	s.cache.Set(ctx, key, details, 0)
	return details, nil
}

// ListByCourse returns a page of a course's enrollments for its instructor or
// an admin, enriched with best-effort user display names.
func (s *EnrollmentService) ListByCourse(ctx context.Context, actor models.JWTClaims, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.authorizeCourseAccess(actor, course); err != nil {
		return nil, nil, err
	}

	enrollments, total, err := s.repo.ListByCourse(ctx, courseID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course enrollments")
	}

	details := make([]models.EnrollmentDetail, 0, len(enrollments))
	names := s.resolveNames(ctx, enrollments)
	for _, e := range enrollments {
		detail := models.EnrollmentDetail{Enrollment: e}
		if course != nil {
			detail.CourseTitle = course.Title
			detail.InstructorID = course.InstructorID
		}
		detail.UserName = names[e.UserID]
		details = append(details, detail)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return details, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkLessonComplete records a lesson completion. Re-marking a completed
// lesson is a no-op; the completion event fires exactly once, at the first
// transition to 100%.
func (s *EnrollmentService) MarkLessonComplete(ctx context.Context, userID, courseID, lessonID string) (*models.Enrollment, error) {
	enrollment, completedNow, err := s.repo.MarkLessonComplete(ctx, userID, courseID, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no enrollment for this course")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progress")
	}

	if err := s.publisher.ProgressUpdated(ctx, events.ProgressUpdatedEvent{
		UserID:             userID,
		CourseID:           courseID,
		LessonID:           lessonID,
		ProgressPercentage: enrollment.ProgressPercentage,
	}); err != nil {
		s.logger.Error("student.progress.updated publish failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}

	if completedNow {
		if err := s.publisher.CourseCompleted(ctx, events.CourseCompletedEvent{
			UserID:       userID,
			CourseID:     courseID,
			EnrollmentID: enrollment.ID,
			CompletedAt:  enrollment.UpdatedAt,
		}); err != nil {
			s.logger.Error("student.course.completed publish failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		}
	}
	s.cache.Invalidate(ctx, UserEnrollmentsKey(userID))

	return enrollment, nil
}

// Suspend moves an ACTIVE enrollment to SUSPENDED. Only the course's owning
// instructor or an admin may suspend.
func (s *EnrollmentService) Suspend(ctx context.Context, actor models.JWTClaims, enrollmentID string) (*models.Enrollment, error) {
	return s.transition(ctx, actor, enrollmentID,
		models.EnrollmentStatusActive, models.EnrollmentStatusSuspended, s.publisher.EnrollmentSuspended)
}

// Reinstate moves a SUSPENDED enrollment back to ACTIVE.
func (s *EnrollmentService) Reinstate(ctx context.Context, actor models.JWTClaims, enrollmentID string) (*models.Enrollment, error) {
	return s.transition(ctx, actor, enrollmentID,
		models.EnrollmentStatusSuspended, models.EnrollmentStatusActive, s.publisher.EnrollmentReactivated)
}

func (s *EnrollmentService) transition(ctx context.Context, actor models.JWTClaims, enrollmentID string,
	from, to models.EnrollmentStatus, publish func(context.Context, events.EnrollmentLifecycleEvent) error) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != from {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not "+string(from))
	}

	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.authorizeCourseAccess(actor, course); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, enrollmentID, to); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	enrollment.Status = to

	if err := publish(ctx, events.EnrollmentLifecycleEvent{
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		EnrollmentID: enrollment.ID,
		ActorID:      actor.UserID,
	}); err != nil {
		s.logger.Error("lifecycle event publish failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, UserEnrollmentsKey(enrollment.UserID))

	return enrollment, nil
}

// ResetProgress clears progress for the requester's own enrollment and forces
// it back to ACTIVE.
func (s *EnrollmentService) ResetProgress(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.repo.ResetProgress(ctx, enrollment.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset progress")
	}
	enrollment.Progress = models.Progress{Version: models.ProgressVersion, CompletedLessons: []string{}}
	enrollment.ProgressPercentage = 0
	enrollment.Status = models.EnrollmentStatusActive

	if err := s.publisher.ProgressReset(ctx, events.EnrollmentLifecycleEvent{
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		EnrollmentID: enrollment.ID,
		ActorID:      userID,
	}); err != nil {
		s.logger.Error("student.progress.reset publish failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, UserEnrollmentsKey(userID))

	return enrollment, nil
}

// authorizeCourseAccess allows admins always; instructors only for their own
// course. When the replica is gone, ownership cannot be verified and only an
// admin may proceed.
func (s *EnrollmentService) authorizeCourseAccess(actor models.JWTClaims, course *models.CourseReplica) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == models.RoleInstructor && course != nil && course.InstructorID == actor.UserID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this course's enrollments")
}

func (s *EnrollmentService) resolveNames(ctx context.Context, enrollments []models.Enrollment) map[string]string {
	if len(enrollments) == 0 || s.users == nil {
		return map[string]string{}
	}
	seen := make(map[string]struct{}, len(enrollments))
	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		ids = append(ids, e.UserID)
	}

	names, err := s.users.DisplayNames(ctx, ids)
	if err != nil {
		// Enrichment is non-critical: degrade to placeholders.
		s.logger.Warn("user display name lookup failed", zap.Error(err))
		names = map[string]string{}
	}
	for _, id := range ids {
		if names[id] == "" {
			names[id] = "Unknown User"
		}
	}
	return names
}
