package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/models"
)

type gradeReplicaWriter interface {
	Upsert(ctx context.Context, grade *models.GradeReplica) error
	Delete(ctx context.Context, id string) error
}

// GradeRecordedListener mirrors grade records into the local replica table for
// analytics. Upsert keyed by grade id keeps redelivery idempotent.
type GradeRecordedListener struct {
	grades gradeReplicaWriter
	logger *zap.Logger
}

// NewGradeRecordedListener constructs the listener.
func NewGradeRecordedListener(grades gradeReplicaWriter, logger *zap.Logger) *GradeRecordedListener {
	return &GradeRecordedListener{grades: grades, logger: logger}
}

func (l *GradeRecordedListener) Topic() string { return TopicGradeRecorded }
func (l *GradeRecordedListener) Queue() string { return "sync.grade.recorded" }

func (l *GradeRecordedListener) Handle(ctx context.Context, body []byte) error {
	var evt GradeEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", TopicGradeRecorded, err)
	}
	if evt.GradeID == "" {
		return fmt.Errorf("%s: missing gradeId", TopicGradeRecorded)
	}
	replica := &models.GradeReplica{
		ID:        evt.GradeID,
		StudentID: evt.StudentID,
		CourseID:  evt.CourseID,
		Score:     evt.Score,
		GradedAt:  evt.GradedAt,
	}
	if err := l.grades.Upsert(ctx, replica); err != nil {
		return fmt.Errorf("upsert grade replica %s: %w", evt.GradeID, err)
	}
	l.logger.Debug("grade replica synced", zap.String("grade_id", evt.GradeID))
	return nil
}

// GradeDeletedListener removes a grade replica.
type GradeDeletedListener struct {
	grades gradeReplicaWriter
	logger *zap.Logger
}

// NewGradeDeletedListener constructs the listener.
func NewGradeDeletedListener(grades gradeReplicaWriter, logger *zap.Logger) *GradeDeletedListener {
	return &GradeDeletedListener{grades: grades, logger: logger}
}

func (l *GradeDeletedListener) Topic() string { return TopicGradeDeleted }
func (l *GradeDeletedListener) Queue() string { return "sync.grade.deleted" }

func (l *GradeDeletedListener) Handle(ctx context.Context, body []byte) error {
	var evt GradeDeletedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", TopicGradeDeleted, err)
	}
	if evt.GradeID == "" {
		return fmt.Errorf("%s: missing gradeId", TopicGradeDeleted)
	}
	if err := l.grades.Delete(ctx, evt.GradeID); err != nil {
		return fmt.Errorf("delete grade replica %s: %w", evt.GradeID, err)
	}
	return nil
}
