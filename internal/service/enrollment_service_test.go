package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/events"
	"github.com/learnsphere/enrollment-api/internal/models"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

type fakeEnrollmentStore struct {
	byID             map[string]*models.Enrollment
	byUserCourse     map[string]*models.Enrollment
	completedCourses map[string]bool

	created      []*models.Enrollment
	createErr    error
	markResult   *models.Enrollment
	markNow      bool
	markErr      error
	statusSet    map[string]models.EnrollmentStatus
	resetIDs     []string
	listByUser   []models.EnrollmentDetail
	listByCourse []models.Enrollment
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{
		byID:             map[string]*models.Enrollment{},
		byUserCourse:     map[string]*models.Enrollment{},
		completedCourses: map[string]bool{},
		statusSet:        map[string]models.EnrollmentStatus{},
	}
}

func (f *fakeEnrollmentStore) put(e *models.Enrollment) {
	f.byID[e.ID] = e
	f.byUserCourse[e.UserID+"|"+e.CourseID] = e
}

func (f *fakeEnrollmentStore) Create(ctx context.Context, e *models.Enrollment) error {
	if f.createErr != nil {
		return f.createErr
	}
	e.ID = "enr-new"
	f.created = append(f.created, e)
	f.put(e)
	return nil
}

func (f *fakeEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := f.byID[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentStore) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if e, ok := f.byUserCourse[userID+"|"+courseID]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentStore) HasCompleted(ctx context.Context, userID, courseID string) (bool, error) {
	return f.completedCourses[userID+"|"+courseID], nil
}

func (f *fakeEnrollmentStore) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	return f.listByUser, nil
}

func (f *fakeEnrollmentStore) ListByCourse(ctx context.Context, courseID string, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	return f.listByCourse, len(f.listByCourse), nil
}

func (f *fakeEnrollmentStore) MarkLessonComplete(ctx context.Context, userID, courseID, lessonID string) (*models.Enrollment, bool, error) {
	if f.markErr != nil {
		return nil, false, f.markErr
	}
	return f.markResult, f.markNow, nil
}

func (f *fakeEnrollmentStore) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	f.statusSet[id] = status
	return nil
}

func (f *fakeEnrollmentStore) ResetProgress(ctx context.Context, id string) error {
	f.resetIDs = append(f.resetIDs, id)
	return nil
}

type fakeCourseReader struct {
	courses map[string]*models.CourseReplica
}

func (f *fakeCourseReader) FindByID(ctx context.Context, id string) (*models.CourseReplica, error) {
	if c, ok := f.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type fakeStructureFetcher struct {
	snapshot models.CourseStructureSnapshot
	err      error
}

func (f *fakeStructureFetcher) FetchStructure(ctx context.Context, courseID string) (models.CourseStructureSnapshot, error) {
	return f.snapshot, f.err
}

type fakeUserDirectory struct {
	names map[string]string
	err   error
}

func (f *fakeUserDirectory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	return f.names, f.err
}

type fakeEventRecorder struct {
	enrolled    []events.UserEnrolledEvent
	progress    []events.ProgressUpdatedEvent
	completed   []events.CourseCompletedEvent
	suspended   []events.EnrollmentLifecycleEvent
	reactivated []events.EnrollmentLifecycleEvent
	reset       []events.EnrollmentLifecycleEvent
}

func (f *fakeEventRecorder) UserEnrolled(ctx context.Context, evt events.UserEnrolledEvent) error {
	f.enrolled = append(f.enrolled, evt)
	return nil
}

func (f *fakeEventRecorder) ProgressUpdated(ctx context.Context, evt events.ProgressUpdatedEvent) error {
	f.progress = append(f.progress, evt)
	return nil
}

func (f *fakeEventRecorder) CourseCompleted(ctx context.Context, evt events.CourseCompletedEvent) error {
	f.completed = append(f.completed, evt)
	return nil
}

func (f *fakeEventRecorder) EnrollmentSuspended(ctx context.Context, evt events.EnrollmentLifecycleEvent) error {
	f.suspended = append(f.suspended, evt)
	return nil
}

func (f *fakeEventRecorder) EnrollmentReactivated(ctx context.Context, evt events.EnrollmentLifecycleEvent) error {
	f.reactivated = append(f.reactivated, evt)
	return nil
}

func (f *fakeEventRecorder) ProgressReset(ctx context.Context, evt events.EnrollmentLifecycleEvent) error {
	f.reset = append(f.reset, evt)
	return nil
}

func tenLessonSnapshot() models.CourseStructureSnapshot {
	lessons := []string{"l1", "l2", "l3", "l4", "l5", "l6", "l7", "l8", "l9", "l10"}
	return models.CourseStructureSnapshot{
		Version:      models.SnapshotVersion,
		TotalLessons: 10,
		Modules:      []models.ModuleSnapshot{{ID: "m1", Title: "Basics", LessonIDs: lessons}},
	}
}

func publishedCourse() *models.CourseReplica {
	return &models.CourseReplica{
		ID:           "course-1",
		InstructorID: "inst-1",
		Status:       models.CourseStatusPublished,
		Price:        49.90,
		Currency:     "USD",
		Title:        "Go Basics",
	}
}

func newTestEnrollmentService(store *fakeEnrollmentStore, courses *fakeCourseReader,
	structures *fakeStructureFetcher, publisher *fakeEventRecorder) *EnrollmentService {
	cacheSvc := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	return NewEnrollmentService(store, courses, structures, &fakeUserDirectory{}, publisher, cacheSvc, nil, zap.NewNop())
}

func TestEnrollFreezesStructureAndPrice(t *testing.T) {
	store := newFakeEnrollmentStore()
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	structures := &fakeStructureFetcher{snapshot: tenLessonSnapshot()}
	publisher := &fakeEventRecorder{}
	svc := newTestEnrollmentService(store, courses, structures, publisher)

	enrollment, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Equal(t, 10, enrollment.CourseStructure.TotalLessons)
	require.Equal(t, 49.90, enrollment.PriceAtEnrollment)
	require.Equal(t, "USD", enrollment.Currency)
	require.Empty(t, enrollment.Progress.CompletedLessons)

	require.Len(t, publisher.enrolled, 1)
	require.Equal(t, "user-1", publisher.enrolled[0].UserID)
	require.Equal(t, "inst-1", publisher.enrolled[0].InstructorID)
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.put(&models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1"})
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	svc := newTestEnrollmentService(store, courses, &fakeStructureFetcher{}, &fakeEventRecorder{})

	_, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestEnrollRejectsUnpublishedCourse(t *testing.T) {
	store := newFakeEnrollmentStore()
	draft := publishedCourse()
	draft.Status = models.CourseStatusDraft
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": draft}}
	svc := newTestEnrollmentService(store, courses, &fakeStructureFetcher{}, &fakeEventRecorder{})

	_, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestEnrollRejectsUnknownCourse(t *testing.T) {
	svc := newTestEnrollmentService(newFakeEnrollmentStore(),
		&fakeCourseReader{courses: map[string]*models.CourseReplica{}}, &fakeStructureFetcher{}, &fakeEventRecorder{})

	_, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "missing"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestEnrollEnforcesPrerequisite(t *testing.T) {
	store := newFakeEnrollmentStore()
	prereq := "course-0"
	course := publishedCourse()
	course.PrerequisiteCourseID = &prereq
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": course}}
	structures := &fakeStructureFetcher{snapshot: tenLessonSnapshot()}
	svc := newTestEnrollmentService(store, courses, structures, &fakeEventRecorder{})

	_, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)

	store.completedCourses["user-1|course-0"] = true
	_, err = svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	require.NoError(t, err)
}

func TestEnrollRejectsEmptyCourse(t *testing.T) {
	store := newFakeEnrollmentStore()
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	structures := &fakeStructureFetcher{snapshot: models.CourseStructureSnapshot{Version: 1}}
	svc := newTestEnrollmentService(store, courses, structures, &fakeEventRecorder{})

	_, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Empty(t, store.created)
}

func TestMarkLessonCompletePublishesProgress(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.markResult = &models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1", ProgressPercentage: 10}
	publisher := &fakeEventRecorder{}
	svc := newTestEnrollmentService(store, &fakeCourseReader{}, &fakeStructureFetcher{}, publisher)

	enrollment, err := svc.MarkLessonComplete(context.Background(), "user-1", "course-1", "l1")
	require.NoError(t, err)
	require.Equal(t, float64(10), enrollment.ProgressPercentage)
	require.Len(t, publisher.progress, 1)
	require.Empty(t, publisher.completed)
}

func TestMarkLessonCompleteEmitsCompletionOnce(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.markResult = &models.Enrollment{
		ID: "enr-1", UserID: "user-1", CourseID: "course-1",
		ProgressPercentage: 100, Status: models.EnrollmentStatusCompleted,
	}
	store.markNow = true
	publisher := &fakeEventRecorder{}
	svc := newTestEnrollmentService(store, &fakeCourseReader{}, &fakeStructureFetcher{}, publisher)

	_, err := svc.MarkLessonComplete(context.Background(), "user-1", "course-1", "l10")
	require.NoError(t, err)
	require.Len(t, publisher.completed, 1)

	// Re-marking the same lesson is a no-op and must not fire again.
	store.markNow = false
	_, err = svc.MarkLessonComplete(context.Background(), "user-1", "course-1", "l10")
	require.NoError(t, err)
	require.Len(t, publisher.completed, 1)
	require.Len(t, publisher.progress, 2)
}

func TestMarkLessonCompleteWithoutEnrollment(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.markErr = sql.ErrNoRows
	svc := newTestEnrollmentService(store, &fakeCourseReader{}, &fakeStructureFetcher{}, &fakeEventRecorder{})

	_, err := svc.MarkLessonComplete(context.Background(), "user-1", "course-1", "l1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestSuspendRequiresOwnership(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.put(&models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusActive})
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	publisher := &fakeEventRecorder{}
	svc := newTestEnrollmentService(store, courses, &fakeStructureFetcher{}, publisher)

	_, err := svc.Suspend(context.Background(),
		models.JWTClaims{UserID: "inst-other", Role: models.RoleInstructor}, "enr-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	enrollment, err := svc.Suspend(context.Background(),
		models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor}, "enr-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusSuspended, enrollment.Status)
	require.Equal(t, models.EnrollmentStatusSuspended, store.statusSet["enr-1"])
	require.Len(t, publisher.suspended, 1)
	require.Equal(t, "inst-1", publisher.suspended[0].ActorID)
}

func TestSuspendRejectsNonActive(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.put(&models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusCompleted})
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	svc := newTestEnrollmentService(store, courses, &fakeStructureFetcher{}, &fakeEventRecorder{})

	_, err := svc.Suspend(context.Background(), models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, "enr-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestSuspendWithMissingReplicaAdminOnly(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.put(&models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "gone", Status: models.EnrollmentStatusActive})
	svc := newTestEnrollmentService(store, &fakeCourseReader{courses: map[string]*models.CourseReplica{}},
		&fakeStructureFetcher{}, &fakeEventRecorder{})

	_, err := svc.Suspend(context.Background(), models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor}, "enr-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	_, err = svc.Suspend(context.Background(), models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, "enr-1")
	require.NoError(t, err)
}

func TestReinstateRequiresSuspended(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.put(&models.Enrollment{ID: "enr-1", UserID: "user-1", CourseID: "course-1", Status: models.EnrollmentStatusSuspended})
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	publisher := &fakeEventRecorder{}
	svc := newTestEnrollmentService(store, courses, &fakeStructureFetcher{}, publisher)

	enrollment, err := svc.Reinstate(context.Background(),
		models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor}, "enr-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Len(t, publisher.reactivated, 1)

	// Once active, reinstating again fails the precondition.
	store.byID["enr-1"].Status = models.EnrollmentStatusActive
	_, err = svc.Reinstate(context.Background(), models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor}, "enr-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestResetProgress(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.put(&models.Enrollment{
		ID: "enr-1", UserID: "user-1", CourseID: "course-1",
		Status:             models.EnrollmentStatusCompleted,
		Progress:           models.Progress{Version: 1, CompletedLessons: []string{"l1", "l2"}},
		ProgressPercentage: 100,
	})
	publisher := &fakeEventRecorder{}
	svc := newTestEnrollmentService(store, &fakeCourseReader{}, &fakeStructureFetcher{}, publisher)

	enrollment, err := svc.ResetProgress(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Zero(t, enrollment.ProgressPercentage)
	require.Empty(t, enrollment.Progress.CompletedLessons)
	require.Equal(t, []string{"enr-1"}, store.resetIDs)
	require.Len(t, publisher.reset, 1)
}

func TestResetProgressUnknownEnrollment(t *testing.T) {
	svc := newTestEnrollmentService(newFakeEnrollmentStore(), &fakeCourseReader{}, &fakeStructureFetcher{}, &fakeEventRecorder{})
	_, err := svc.ResetProgress(context.Background(), "user-1", "course-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestListByCourseEnrichesNames(t *testing.T) {
	store := newFakeEnrollmentStore()
	store.listByCourse = []models.Enrollment{
		{ID: "enr-1", UserID: "user-1", CourseID: "course-1"},
		{ID: "enr-2", UserID: "user-2", CourseID: "course-1"},
	}
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	cacheSvc := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	users := &fakeUserDirectory{names: map[string]string{"user-1": "Ada"}}
	svc := NewEnrollmentService(store, courses, &fakeStructureFetcher{}, users, &fakeEventRecorder{}, cacheSvc, nil, zap.NewNop())

	details, pagination, err := svc.ListByCourse(context.Background(),
		models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor}, "course-1", models.EnrollmentFilter{})
	require.NoError(t, err)
	require.Len(t, details, 2)
	require.Equal(t, "Ada", details[0].UserName)
	require.Equal(t, "Unknown User", details[1].UserName)
	require.Equal(t, "Go Basics", details[0].CourseTitle)
	require.Equal(t, 2, pagination.TotalCount)
}

func TestEnrollInvalidatesUserCache(t *testing.T) {
	store := newFakeEnrollmentStore()
	courses := &fakeCourseReader{courses: map[string]*models.CourseReplica{"course-1": publishedCourse()}}
	structures := &fakeStructureFetcher{snapshot: tenLessonSnapshot()}
	repo := newFakeCacheRepo()
	cacheSvc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := NewEnrollmentService(store, courses, structures, &fakeUserDirectory{},
		&fakeEventRecorder{}, cacheSvc, nil, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "user-1", EnrollRequest{CourseID: "course-1"})
	require.NoError(t, err)
	require.Contains(t, repo.deleted, UserEnrollmentsKey("user-1"))
}
