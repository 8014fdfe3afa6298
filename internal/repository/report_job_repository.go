package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/learnsphere/enrollment-api/internal/models"
)

// ReportJobRepository persists asynchronous report job metadata.
type ReportJobRepository struct {
	db *sqlx.DB
}

// NewReportJobRepository constructs the repository.
func NewReportJobRepository(db *sqlx.DB) *ReportJobRepository {
	return &ReportJobRepository{db: db}
}

// Create persists a new pending job.
func (r *ReportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusPending
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, requested_by, created_at)
        VALUES (:id, :type, :params, :status, :requested_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job by id.
func (r *ReportJobRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, type, params, status, result_url, requested_by, created_at, finished_at, error_message
        FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// Finish records a terminal state. The status guard keeps the write idempotent
// under event redelivery: a job already finished is left untouched.
func (r *ReportJobRepository) Finish(ctx context.Context, id string, status models.ReportStatus, resultURL, errorMessage string) error {
	const query = `UPDATE report_jobs SET status = $2, result_url = NULLIF($3, ''),
        error_message = NULLIF($4, ''), finished_at = $5
        WHERE id = $1 AND status = $6`
	if _, err := r.db.ExecContext(ctx, query, id, status, resultURL, errorMessage,
		time.Now().UTC(), models.ReportStatusPending); err != nil {
		return fmt.Errorf("finish report job: %w", err)
	}
	return nil
}

// ListByRequester returns the requester's jobs, newest first.
func (r *ReportJobRepository) ListByRequester(ctx context.Context, requestedBy string) ([]models.ReportJob, error) {
	const query = `SELECT id, type, params, status, result_url, requested_by, created_at, finished_at, error_message
        FROM report_jobs WHERE requested_by = $1 ORDER BY created_at DESC`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, requestedBy); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
