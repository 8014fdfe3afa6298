package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/events"
	"github.com/learnsphere/enrollment-api/internal/middleware"
	"github.com/learnsphere/enrollment-api/internal/models"
	"github.com/learnsphere/enrollment-api/internal/service"
	"github.com/learnsphere/enrollment-api/pkg/storage"
)

type reportJobStoreMock struct {
	jobs map[string]*models.ReportJob
}

func (m *reportJobStoreMock) Create(ctx context.Context, job *models.ReportJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *reportJobStoreMock) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *reportJobStoreMock) Finish(ctx context.Context, id string, status models.ReportStatus, resultURL, errorMessage string) error {
	return nil
}

func (m *reportJobStoreMock) ListByRequester(ctx context.Context, requestedBy string) ([]models.ReportJob, error) {
	return nil, nil
}

type courseReaderMock struct{}

func (m *courseReaderMock) FindByID(ctx context.Context, id string) (*models.CourseReplica, error) {
	return nil, sql.ErrNoRows
}

type reportPublisherMock struct{}

func (m *reportPublisherMock) ReportRequested(ctx context.Context, evt events.ReportRequestedEvent) error {
	return nil
}

func newReportHandlerFixture(t *testing.T, jobs map[string]*models.ReportJob) (*ReportHandler, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := service.NewReportService(&reportJobStoreMock{jobs: jobs}, &courseReaderMock{},
		&reportPublisherMock{}, nil, zap.NewNop())
	return NewReportHandler(svc, store), store
}

func TestReportHandlerDownloadServesArtifact(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobs := map[string]*models.ReportJob{
		"job-1": {
			ID: "job-1", Type: models.ReportTypeInstructorSummary,
			Params:      models.ReportJobParams{InstructorID: "inst-1", Format: models.ReportFormatCSV},
			Status:      models.ReportStatusCompleted,
			RequestedBy: "inst-1",
		},
	}
	handler, store := newReportHandlerFixture(t, jobs)
	_, err := store.Save("job-1.csv", []byte("Metric,Value\n"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/reports/job-1/download", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor})

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=job-1.csv", w.Header().Get("Content-Disposition"))
	require.Equal(t, "Metric,Value\n", w.Body.String())
}

func TestReportHandlerDownloadRejectsUnfinishedJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobs := map[string]*models.ReportJob{
		"job-1": {
			ID: "job-1", Type: models.ReportTypeInstructorSummary,
			Params:      models.ReportJobParams{InstructorID: "inst-1", Format: models.ReportFormatCSV},
			Status:      models.ReportStatusPending,
			RequestedBy: "inst-1",
		},
	}
	handler, _ := newReportHandlerFixture(t, jobs)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/reports/job-1/download", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor})

	handler.Download(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestReportHandlerDownloadForbidsForeignRequester(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobs := map[string]*models.ReportJob{
		"job-1": {
			ID: "job-1", Type: models.ReportTypeInstructorSummary,
			Params:      models.ReportJobParams{InstructorID: "inst-1", Format: models.ReportFormatCSV},
			Status:      models.ReportStatusCompleted,
			RequestedBy: "inst-1",
		},
	}
	handler, _ := newReportHandlerFixture(t, jobs)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/reports/job-1/download", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "inst-2", Role: models.RoleInstructor})

	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
