package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/models"
	"github.com/learnsphere/enrollment-api/pkg/broker"
)

type fakeCourseWriter struct {
	rows map[string]*models.CourseReplica
}

func newFakeCourseWriter() *fakeCourseWriter {
	return &fakeCourseWriter{rows: map[string]*models.CourseReplica{}}
}

func (f *fakeCourseWriter) Upsert(ctx context.Context, course *models.CourseReplica) error {
	f.rows[course.ID] = course
	return nil
}

func (f *fakeCourseWriter) Delete(ctx context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

func TestCourseCreatedListenerIsIdempotent(t *testing.T) {
	writer := newFakeCourseWriter()
	listener := NewCourseCreatedListener(writer, zap.NewNop())

	body, err := json.Marshal(CourseEvent{
		CourseID: "course-1", InstructorID: "inst-1", Status: "PUBLISHED",
		Price: 10, Currency: "USD", Title: "Go Basics",
	})
	require.NoError(t, err)

	require.NoError(t, listener.Handle(context.Background(), body))
	require.NoError(t, listener.Handle(context.Background(), body))
	require.Len(t, writer.rows, 1)
	require.Equal(t, "Go Basics", writer.rows["course-1"].Title)
}

func TestCourseListenersConvergeOutOfOrder(t *testing.T) {
	// The update lands before the create; both are upserts, so the later
	// create must not clobber nothing and the row carries the last applied
	// payload either way.
	writer := newFakeCourseWriter()
	created := NewCourseCreatedListener(writer, zap.NewNop())
	updated := NewCourseUpdatedListener(writer, zap.NewNop())

	updateBody, _ := json.Marshal(CourseEvent{CourseID: "course-1", Status: "PUBLISHED", Title: "Go Basics v2"})
	createBody, _ := json.Marshal(CourseEvent{CourseID: "course-1", Status: "DRAFT", Title: "Go Basics"})

	require.NoError(t, updated.Handle(context.Background(), updateBody))
	require.NoError(t, created.Handle(context.Background(), createBody))
	require.Len(t, writer.rows, 1)
}

func TestCourseDeletedListener(t *testing.T) {
	writer := newFakeCourseWriter()
	writer.rows["course-1"] = &models.CourseReplica{ID: "course-1"}
	listener := NewCourseDeletedListener(writer, zap.NewNop())

	body, _ := json.Marshal(CourseDeletedEvent{CourseID: "course-1"})
	require.NoError(t, listener.Handle(context.Background(), body))
	require.Empty(t, writer.rows)
}

func TestCourseListenerRejectsMalformedPayload(t *testing.T) {
	listener := NewCourseCreatedListener(newFakeCourseWriter(), zap.NewNop())
	require.Error(t, listener.Handle(context.Background(), []byte("{not json")))
	require.Error(t, listener.Handle(context.Background(), []byte(`{"title":"no id"}`)))
}

type fakeGradeWriter struct {
	rows map[string]*models.GradeReplica
}

func (f *fakeGradeWriter) Upsert(ctx context.Context, grade *models.GradeReplica) error {
	f.rows[grade.ID] = grade
	return nil
}

func (f *fakeGradeWriter) Delete(ctx context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

func TestGradeListeners(t *testing.T) {
	writer := &fakeGradeWriter{rows: map[string]*models.GradeReplica{}}
	recorded := NewGradeRecordedListener(writer, zap.NewNop())
	deleted := NewGradeDeletedListener(writer, zap.NewNop())

	body, _ := json.Marshal(GradeEvent{GradeID: "g1", StudentID: "user-1", CourseID: "course-1", Score: 91})
	require.NoError(t, recorded.Handle(context.Background(), body))
	require.NoError(t, recorded.Handle(context.Background(), body))
	require.Len(t, writer.rows, 1)
	require.Equal(t, 91.0, writer.rows["g1"].Score)

	delBody, _ := json.Marshal(GradeDeletedEvent{GradeID: "g1"})
	require.NoError(t, deleted.Handle(context.Background(), delBody))
	require.Empty(t, writer.rows)
}

type fakeActivityCounter struct {
	increments []time.Time
	err        error
}

func (f *fakeActivityCounter) IncrementDiscussions(ctx context.Context, instructorID string, day time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.increments = append(f.increments, day)
	return nil
}

func TestDiscussionCreatedListener(t *testing.T) {
	counter := &fakeActivityCounter{}
	listener := NewDiscussionCreatedListener(counter, zap.NewNop())

	created := time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)
	body, _ := json.Marshal(DiscussionCreatedEvent{DiscussionID: "d1", InstructorID: "inst-1", CreatedAt: created})
	require.NoError(t, listener.Handle(context.Background(), body))
	require.Len(t, counter.increments, 1)
	require.Equal(t, created, counter.increments[0])

	require.Error(t, listener.Handle(context.Background(), []byte(`{"discussionId":"d2"}`)))
}

type fakeFinisher struct {
	finished []string
	statuses []models.ReportStatus
}

func (f *fakeFinisher) Finish(ctx context.Context, jobID string, status models.ReportStatus, resultURL, errorMessage string) error {
	f.finished = append(f.finished, jobID)
	f.statuses = append(f.statuses, status)
	return nil
}

func TestReportCompletedListener(t *testing.T) {
	finisher := &fakeFinisher{}
	listener := NewReportCompletedListener(finisher, zap.NewNop())

	body, _ := json.Marshal(ReportCompletedEvent{JobID: "job-1", Status: "COMPLETED", ResultURL: "/api/v1/reports/job-1/download"})
	require.NoError(t, listener.Handle(context.Background(), body))
	require.Equal(t, []string{"job-1"}, finisher.finished)

	badStatus, _ := json.Marshal(ReportCompletedEvent{JobID: "job-2", Status: "RUNNING"})
	require.Error(t, listener.Handle(context.Background(), badStatus))
	require.Len(t, finisher.finished, 1)
}

type fakeProcessor struct {
	jobs []string
	err  error
}

func (f *fakeProcessor) Process(ctx context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, jobID)
	return nil
}

func TestReportRequestedListener(t *testing.T) {
	processor := &fakeProcessor{}
	listener := NewReportRequestedListener(processor, zap.NewNop())

	body, _ := json.Marshal(ReportRequestedEvent{JobID: "job-1"})
	require.NoError(t, listener.Handle(context.Background(), body))
	require.Equal(t, []string{"job-1"}, processor.jobs)

	require.Error(t, listener.Handle(context.Background(), []byte(`{}`)))
}

func TestRunnerPrefixesQueuesAndDelivers(t *testing.T) {
	ch := broker.NewMemoryChannel()
	writer := newFakeCourseWriter()
	runner := NewRunner(ch, "enrollment", nil, zap.NewNop())
	runner.Register(NewCourseCreatedListener(writer, zap.NewNop()))
	require.NoError(t, runner.Start())

	require.NoError(t, ch.Publish(context.Background(),
		TopicCourseCreated, CourseEvent{CourseID: "course-1", Title: "Go Basics"}))
	require.Len(t, writer.rows, 1)
}

type countingMetrics struct {
	published, consumed, failed int
}

func (m *countingMetrics) RecordEventPublished(topic string) { m.published++ }
func (m *countingMetrics) RecordEventConsumed(queue string)  { m.consumed++ }
func (m *countingMetrics) RecordEventFailure(queue string)   { m.failed++ }

func TestRunnerRecordsMetrics(t *testing.T) {
	ch := broker.NewMemoryChannel()
	metrics := &countingMetrics{}
	runner := NewRunner(ch, "enrollment", metrics, zap.NewNop())

	counter := &fakeActivityCounter{err: errors.New("db down")}
	runner.Register(NewDiscussionCreatedListener(counter, zap.NewNop()))
	require.NoError(t, runner.Start())

	body := DiscussionCreatedEvent{DiscussionID: "d1", InstructorID: "inst-1"}
	require.NoError(t, ch.Publish(context.Background(), TopicDiscussionCreated, body))
	require.NotZero(t, metrics.failed)

	counter.err = nil
	require.NoError(t, ch.Publish(context.Background(), TopicDiscussionCreated, body))
	require.NotZero(t, metrics.consumed)
}

func TestPublisherRecordsMetrics(t *testing.T) {
	ch := broker.NewMemoryChannel()
	metrics := &countingMetrics{}
	publisher := NewPublisher(ch, metrics, zap.NewNop())

	require.NoError(t, publisher.UserEnrolled(context.Background(), UserEnrolledEvent{UserID: "user-1", CourseID: "course-1"}))
	require.Equal(t, 1, metrics.published)
}
