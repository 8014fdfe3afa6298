package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/events"
	"github.com/learnsphere/enrollment-api/internal/models"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Finish(ctx context.Context, id string, status models.ReportStatus, resultURL, errorMessage string) error
	ListByRequester(ctx context.Context, requestedBy string) ([]models.ReportJob, error)
}

type reportRequestPublisher interface {
	ReportRequested(ctx context.Context, evt events.ReportRequestedEvent) error
}

// ReportRequest describes an asynchronous report job submission.
type ReportRequest struct {
	Type         models.ReportType   `json:"type" validate:"required,oneof=instructor_summary course_summary"`
	Format       models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	InstructorID string              `json:"instructor_id,omitempty"`
	CourseID     string              `json:"course_id,omitempty"`
}

// ReportService accepts report jobs and exposes their lifecycle. Generation
// itself happens in the worker, decoupled through the report.generate.request
// event.
type ReportService struct {
	jobs      reportJobStore
	courses   courseReplicaReader
	publisher reportRequestPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(jobs reportJobStore, courses courseReplicaReader, publisher reportRequestPublisher,
	validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{jobs: jobs, courses: courses, publisher: publisher, validator: validate, logger: logger}
}

// Request validates and persists a pending job, then kicks off generation by
// publishing report.generate.request. The caller gets the pending job back
// immediately and polls for the result.
func (s *ReportService) Request(ctx context.Context, actor models.JWTClaims, req ReportRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}

	params := models.ReportJobParams{Format: req.Format}
	switch req.Type {
	case models.ReportTypeInstructorSummary:
		params.InstructorID = req.InstructorID
		if params.InstructorID == "" {
			params.InstructorID = actor.UserID
		}
		if actor.Role != models.RoleAdmin && params.InstructorID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot request another instructor's report")
		}
	case models.ReportTypeCourseSummary:
		if req.CourseID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required for course reports")
		}
		params.CourseID = req.CourseID
		if actor.Role != models.RoleAdmin {
			course, err := s.courses.FindByID(ctx, req.CourseID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			}
			if course.InstructorID != actor.UserID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot request a report for another instructor's course")
			}
		}
	}

	job := &models.ReportJob{
		Type:        req.Type,
		Params:      params,
		Status:      models.ReportStatusPending,
		RequestedBy: actor.UserID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.publisher.ReportRequested(ctx, events.ReportRequestedEvent{JobID: job.ID}); err != nil {
		// Without the request event the job would stay pending forever.
		if finishErr := s.jobs.Finish(ctx, job.ID, models.ReportStatusFailed, "", "request dispatch failed"); finishErr != nil {
			s.logger.Error("failed to fail undispatched report job", zap.String("job_id", job.ID), zap.Error(finishErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispatch report job")
	}

	return job, nil
}

// Get returns a job visible to its requester or an admin.
func (s *ReportService) Get(ctx context.Context, actor models.JWTClaims, jobID string) (*models.ReportJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if actor.Role != models.RoleAdmin && job.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this report job")
	}
	return job, nil
}

// List returns the actor's jobs, newest first.
func (s *ReportService) List(ctx context.Context, actor models.JWTClaims) ([]models.ReportJob, error) {
	jobs, err := s.jobs.ListByRequester(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	if jobs == nil {
		jobs = []models.ReportJob{}
	}
	return jobs, nil
}
