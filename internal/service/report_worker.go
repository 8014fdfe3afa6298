package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/events"
	"github.com/learnsphere/enrollment-api/internal/models"
	"github.com/learnsphere/enrollment-api/pkg/export"
	"github.com/learnsphere/enrollment-api/pkg/jobs"
)

type summarySource interface {
	InstructorSummary(ctx context.Context, instructorID string) (*models.InstructorSummary, error)
	CourseSummary(ctx context.Context, courseID string) (*models.CourseSummary, error)
}

type artifactStore interface {
	Save(filename string, data []byte) (string, error)
}

type reportResultPublisher interface {
	ReportCompleted(ctx context.Context, evt events.ReportCompletedEvent) error
}

// ReportWorker turns pending report jobs into stored artifacts. Process only
// enqueues; the pool renders in the background and announces the outcome on
// report.generate.result. A failed render is a terminal FAILED outcome, not a
// retry.
type ReportWorker struct {
	jobs      reportJobStore
	analytics summarySource
	store     artifactStore
	publisher reportResultPublisher
	metrics   *MetricsService
	queue     *jobs.Queue
	apiPrefix string
	logger    *zap.Logger
}

// NewReportWorker constructs the worker and its queue.
func NewReportWorker(jobStore reportJobStore, analytics summarySource, store artifactStore,
	publisher reportResultPublisher, metrics *MetricsService, apiPrefix string,
	workers, retries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ReportWorker{
		jobs:      jobStore,
		analytics: analytics,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		apiPrefix: apiPrefix,
		logger:    logger,
	}
	w.queue = jobs.NewQueue("reports", w.generate, jobs.Options{
		Workers:    workers,
		MaxRetries: retries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return w
}

// Start launches the worker pool.
func (w *ReportWorker) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop drains the worker pool.
func (w *ReportWorker) Stop() {
	w.queue.Stop()
}

// Process hands a requested job to the pool.
func (w *ReportWorker) Process(ctx context.Context, jobID string) error {
	return w.queue.Enqueue(jobs.Task{ID: jobID})
}

func (w *ReportWorker) generate(ctx context.Context, task jobs.Task) error {
	job, err := w.jobs.FindByID(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", task.ID, err)
	}
	if job.Status != models.ReportStatusPending {
		// Redelivered request for an already finished job.
		w.logger.Debug("skipping non-pending report job", zap.String("job_id", job.ID))
		return nil
	}

	started := time.Now()
	resultURL, renderErr := w.render(ctx, job)
	if w.metrics != nil {
		w.metrics.ObserveReportGeneration(string(job.Type), string(job.Params.Format), time.Since(started))
	}

	evt := events.ReportCompletedEvent{JobID: job.ID}
	if renderErr != nil {
		w.logger.Error("report generation failed", zap.String("job_id", job.ID), zap.Error(renderErr))
		evt.Status = string(models.ReportStatusFailed)
		evt.Error = renderErr.Error()
	} else {
		evt.Status = string(models.ReportStatusCompleted)
		evt.ResultURL = resultURL
	}
	if err := w.publisher.ReportCompleted(ctx, evt); err != nil {
		return fmt.Errorf("announce report job %s: %w", job.ID, err)
	}
	return nil
}

func (w *ReportWorker) render(ctx context.Context, job *models.ReportJob) (string, error) {
	table, err := w.buildTable(ctx, job)
	if err != nil {
		return "", err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatPDF:
		payload, err = export.NewPDFRenderer().Render(table)
	case models.ReportFormatCSV:
		payload, err = export.NewCSVRenderer().Render(table)
	default:
		return "", fmt.Errorf("unsupported report format %q", job.Params.Format)
	}
	if err != nil {
		return "", fmt.Errorf("render %s report: %w", job.Params.Format, err)
	}

	filename := fmt.Sprintf("%s.%s", job.ID, job.Params.Format)
	if _, err := w.store.Save(filename, payload); err != nil {
		return "", fmt.Errorf("store report artifact: %w", err)
	}
	return w.apiPrefix + "/reports/" + job.ID + "/download", nil
}

func (w *ReportWorker) buildTable(ctx context.Context, job *models.ReportJob) (export.Table, error) {
	switch job.Type {
	case models.ReportTypeInstructorSummary:
		summary, err := w.analytics.InstructorSummary(ctx, job.Params.InstructorID)
		if err != nil {
			return export.Table{}, fmt.Errorf("instructor summary: %w", err)
		}
		return instructorTable(summary), nil
	case models.ReportTypeCourseSummary:
		summary, err := w.analytics.CourseSummary(ctx, job.Params.CourseID)
		if err != nil {
			return export.Table{}, fmt.Errorf("course summary: %w", err)
		}
		return courseTable(summary), nil
	default:
		return export.Table{}, fmt.Errorf("unsupported report type %q", job.Type)
	}
}

func instructorTable(s *models.InstructorSummary) export.Table {
	rows := [][]string{
		{"Distinct students", strconv.Itoa(s.DistinctStudents)},
		{"Revenue", fmt.Sprintf("%.2f", s.Revenue)},
		{"Enrollments (current window)", strconv.Itoa(s.EnrollmentTrend.Current)},
		{"Enrollments (previous window)", strconv.Itoa(s.EnrollmentTrend.Previous)},
		{"Enrollment change %", strconv.Itoa(s.EnrollmentTrend.ChangePercent)},
		{"Discussions (current window)", strconv.Itoa(s.DiscussionTrend.Current)},
		{"Discussions (previous window)", strconv.Itoa(s.DiscussionTrend.Previous)},
		{"Discussion change %", strconv.Itoa(s.DiscussionTrend.ChangePercent)},
	}
	for _, bracket := range s.GradeHistogram {
		rows = append(rows, []string{"Grades " + bracket.Bracket, strconv.Itoa(bracket.Count)})
	}
	return export.Table{
		Title:   "Instructor Summary " + s.InstructorID,
		Columns: []string{"Metric", "Value"},
		Rows:    rows,
	}
}

func courseTable(s *models.CourseSummary) export.Table {
	rows := [][]string{
		{"Enrollments", strconv.Itoa(s.Enrollments), ""},
		{"Completions", strconv.Itoa(s.Completions), ""},
		{"Average progress", fmt.Sprintf("%.2f", s.AverageProgress), ""},
	}
	for _, module := range s.ModuleCompletion {
		rows = append(rows, []string{"Module " + module.Title, fmt.Sprintf("%.2f", module.CompletionPercent), module.ModuleID})
	}
	return export.Table{
		Title:   "Course Summary " + s.CourseID,
		Columns: []string{"Metric", "Value", "Module"},
		Rows:    rows,
	}
}
