package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/models"
)

type reportProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// ReportRequestedListener hands report.generate.request messages to the
// report worker. The worker publishes report.generate.result when done.
type ReportRequestedListener struct {
	worker reportProcessor
	logger *zap.Logger
}

// NewReportRequestedListener constructs the listener.
func NewReportRequestedListener(worker reportProcessor, logger *zap.Logger) *ReportRequestedListener {
	return &ReportRequestedListener{worker: worker, logger: logger}
}

func (l *ReportRequestedListener) Topic() string { return TopicReportRequested }
func (l *ReportRequestedListener) Queue() string { return "reports.requested" }

func (l *ReportRequestedListener) Handle(ctx context.Context, body []byte) error {
	var evt ReportRequestedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", TopicReportRequested, err)
	}
	if evt.JobID == "" {
		return fmt.Errorf("%s: missing jobId", TopicReportRequested)
	}
	return l.worker.Process(ctx, evt.JobID)
}

type reportJobFinisher interface {
	Finish(ctx context.Context, jobID string, status models.ReportStatus, resultURL, errorMessage string) error
}

// ReportCompletedListener records the terminal state of a report job. Applying
// the same terminal state twice is a no-op, so redelivery is safe.
type ReportCompletedListener struct {
	jobs   reportJobFinisher
	logger *zap.Logger
}

// NewReportCompletedListener constructs the listener.
func NewReportCompletedListener(jobs reportJobFinisher, logger *zap.Logger) *ReportCompletedListener {
	return &ReportCompletedListener{jobs: jobs, logger: logger}
}

func (l *ReportCompletedListener) Topic() string { return TopicReportCompleted }
func (l *ReportCompletedListener) Queue() string { return "reports.completed" }

func (l *ReportCompletedListener) Handle(ctx context.Context, body []byte) error {
	var evt ReportCompletedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", TopicReportCompleted, err)
	}
	if evt.JobID == "" {
		return fmt.Errorf("%s: missing jobId", TopicReportCompleted)
	}

	status := models.ReportStatus(evt.Status)
	if status != models.ReportStatusCompleted && status != models.ReportStatusFailed {
		return fmt.Errorf("%s: unexpected status %q", TopicReportCompleted, evt.Status)
	}
	if err := l.jobs.Finish(ctx, evt.JobID, status, evt.ResultURL, evt.Error); err != nil {
		return fmt.Errorf("finish report job %s: %w", evt.JobID, err)
	}
	l.logger.Info("report job finished", zap.String("job_id", evt.JobID), zap.String("status", evt.Status))
	return nil
}
