package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnsphere/enrollment-api/internal/models"
	"github.com/learnsphere/enrollment-api/internal/service"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
	"github.com/learnsphere/enrollment-api/pkg/response"
	"github.com/learnsphere/enrollment-api/pkg/storage"
)

// ReportHandler exposes asynchronous report job endpoints.
type ReportHandler struct {
	reports *service.ReportService
	store   *storage.LocalStore
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService, store *storage.LocalStore) *ReportHandler {
	return &ReportHandler{reports: reports, store: store}
}

// Create godoc
// @Summary Request a report
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.ReportRequest true "Report request"
// @Success 202 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.reports.Request(c.Request.Context(), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// List godoc
// @Summary List my report jobs
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	jobs, err := h.reports.List(c.Request.Context(), *claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Get godoc
// @Summary Get a report job
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	job, err := h.reports.Get(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished report artifact
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Job ID"
// @Success 200 {file} binary
// @Router /reports/{id}/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	job, err := h.reports.Get(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if job.Status != models.ReportStatusCompleted {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "report is not ready"))
		return
	}

	filename := fmt.Sprintf("%s.%s", job.ID, job.Params.Format)
	file, err := h.store.Open(filename)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "report artifact not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := "text/csv"
	if job.Params.Format == models.ReportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
