package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/models"
)

type courseReplicaWriter interface {
	Upsert(ctx context.Context, course *models.CourseReplica) error
	Delete(ctx context.Context, id string) error
}

// CourseCreatedListener keeps the local course replica in sync with
// course.created events. The write is an upsert keyed by course id, so a
// duplicate delivery or a create arriving after its own update converges to
// one row with the latest fields.
type CourseCreatedListener struct {
	courses courseReplicaWriter
	logger  *zap.Logger
}

// NewCourseCreatedListener constructs the listener.
func NewCourseCreatedListener(courses courseReplicaWriter, logger *zap.Logger) *CourseCreatedListener {
	return &CourseCreatedListener{courses: courses, logger: logger}
}

func (l *CourseCreatedListener) Topic() string { return TopicCourseCreated }
func (l *CourseCreatedListener) Queue() string { return "sync.course.created" }

func (l *CourseCreatedListener) Handle(ctx context.Context, body []byte) error {
	return applyCourseEvent(ctx, l.courses, l.logger, body, TopicCourseCreated)
}

// CourseUpdatedListener applies course.updated events with the same upsert
// semantics as create, so reordering across the two queues still converges.
type CourseUpdatedListener struct {
	courses courseReplicaWriter
	logger  *zap.Logger
}

// NewCourseUpdatedListener constructs the listener.
func NewCourseUpdatedListener(courses courseReplicaWriter, logger *zap.Logger) *CourseUpdatedListener {
	return &CourseUpdatedListener{courses: courses, logger: logger}
}

func (l *CourseUpdatedListener) Topic() string { return TopicCourseUpdated }
func (l *CourseUpdatedListener) Queue() string { return "sync.course.updated" }

func (l *CourseUpdatedListener) Handle(ctx context.Context, body []byte) error {
	return applyCourseEvent(ctx, l.courses, l.logger, body, TopicCourseUpdated)
}

// CourseDeletedListener removes the replica row. Existing enrollments keep
// their frozen snapshots and stay readable.
type CourseDeletedListener struct {
	courses courseReplicaWriter
	logger  *zap.Logger
}

// NewCourseDeletedListener constructs the listener.
func NewCourseDeletedListener(courses courseReplicaWriter, logger *zap.Logger) *CourseDeletedListener {
	return &CourseDeletedListener{courses: courses, logger: logger}
}

func (l *CourseDeletedListener) Topic() string { return TopicCourseDeleted }
func (l *CourseDeletedListener) Queue() string { return "sync.course.deleted" }

func (l *CourseDeletedListener) Handle(ctx context.Context, body []byte) error {
	var evt CourseDeletedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", TopicCourseDeleted, err)
	}
	if evt.CourseID == "" {
		return fmt.Errorf("%s: missing courseId", TopicCourseDeleted)
	}
	if err := l.courses.Delete(ctx, evt.CourseID); err != nil {
		return fmt.Errorf("delete course replica %s: %w", evt.CourseID, err)
	}
	l.logger.Info("course replica removed", zap.String("course_id", evt.CourseID))
	return nil
}

func applyCourseEvent(ctx context.Context, courses courseReplicaWriter, logger *zap.Logger, body []byte, topic string) error {
	var evt CourseEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", topic, err)
	}
	if evt.CourseID == "" {
		return fmt.Errorf("%s: missing courseId", topic)
	}

	replica := &models.CourseReplica{
		ID:                   evt.CourseID,
		InstructorID:         evt.InstructorID,
		Status:               models.CourseStatus(evt.Status),
		PrerequisiteCourseID: evt.PrerequisiteCourseID,
		Price:                evt.Price,
		Currency:             evt.Currency,
		Title:                evt.Title,
		UpdatedAt:            time.Now().UTC(),
	}
	if err := courses.Upsert(ctx, replica); err != nil {
		return fmt.Errorf("upsert course replica %s: %w", evt.CourseID, err)
	}
	logger.Debug("course replica synced", zap.String("course_id", evt.CourseID), zap.String("topic", topic))
	return nil
}
