package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type activityCounter interface {
	IncrementDiscussions(ctx context.Context, instructorID string, day time.Time) error
}

// DiscussionCreatedListener bumps the per-instructor daily discussion counter.
// The increment has no dedupe key: a redelivered event double counts, which is
// an accepted approximation for trend data.
type DiscussionCreatedListener struct {
	activity activityCounter
	logger   *zap.Logger
}

// NewDiscussionCreatedListener constructs the listener.
func NewDiscussionCreatedListener(activity activityCounter, logger *zap.Logger) *DiscussionCreatedListener {
	return &DiscussionCreatedListener{activity: activity, logger: logger}
}

func (l *DiscussionCreatedListener) Topic() string { return TopicDiscussionCreated }
func (l *DiscussionCreatedListener) Queue() string { return "activity.discussion.created" }

func (l *DiscussionCreatedListener) Handle(ctx context.Context, body []byte) error {
	var evt DiscussionCreatedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", TopicDiscussionCreated, err)
	}
	if evt.InstructorID == "" {
		return fmt.Errorf("%s: missing instructorId", TopicDiscussionCreated)
	}
	day := evt.CreatedAt
	if day.IsZero() {
		day = time.Now().UTC()
	}
	if err := l.activity.IncrementDiscussions(ctx, evt.InstructorID, day); err != nil {
		return fmt.Errorf("increment discussion counter: %w", err)
	}
	return nil
}
