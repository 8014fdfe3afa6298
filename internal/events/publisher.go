package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/pkg/broker"
)

// Publisher is the typed outbound side of the message channel: one method per
// event kind this service emits. Publish errors indicate broker trouble only;
// callers log them and let the triggering operation complete.
type Publisher struct {
	ch      broker.Channel
	metrics Metrics
	logger  *zap.Logger
}

// NewPublisher constructs a typed publisher over the channel. metrics may be
// nil.
func NewPublisher(ch broker.Channel, metrics Metrics, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, metrics: metrics, logger: logger}
}

// UserEnrolled publishes user.enrolled.
func (p *Publisher) UserEnrolled(ctx context.Context, evt UserEnrolledEvent) error {
	return p.publish(ctx, TopicUserEnrolled, evt)
}

// ProgressUpdated publishes student.progress.updated.
func (p *Publisher) ProgressUpdated(ctx context.Context, evt ProgressUpdatedEvent) error {
	return p.publish(ctx, TopicProgressUpdated, evt)
}

// CourseCompleted publishes student.course.completed.
func (p *Publisher) CourseCompleted(ctx context.Context, evt CourseCompletedEvent) error {
	return p.publish(ctx, TopicCourseCompleted, evt)
}

// EnrollmentSuspended publishes user.enrollment.suspended.
func (p *Publisher) EnrollmentSuspended(ctx context.Context, evt EnrollmentLifecycleEvent) error {
	return p.publish(ctx, TopicEnrollmentSuspended, evt)
}

// EnrollmentReactivated publishes user.enrollment.reactivated.
func (p *Publisher) EnrollmentReactivated(ctx context.Context, evt EnrollmentLifecycleEvent) error {
	return p.publish(ctx, TopicEnrollmentReactivated, evt)
}

// ProgressReset publishes student.progress.reset.
func (p *Publisher) ProgressReset(ctx context.Context, evt EnrollmentLifecycleEvent) error {
	return p.publish(ctx, TopicProgressReset, evt)
}

// ReportRequested publishes report.generate.request.
func (p *Publisher) ReportRequested(ctx context.Context, evt ReportRequestedEvent) error {
	return p.publish(ctx, TopicReportRequested, evt)
}

// ReportCompleted publishes report.generate.result.
func (p *Publisher) ReportCompleted(ctx context.Context, evt ReportCompletedEvent) error {
	return p.publish(ctx, TopicReportCompleted, evt)
}

func (p *Publisher) publish(ctx context.Context, topic string, payload interface{}) error {
	if err := p.ch.Publish(ctx, topic, payload); err != nil {
		p.logger.Error("event publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordEventPublished(topic)
	}
	p.logger.Debug("event published", zap.String("topic", topic))
	return nil
}
