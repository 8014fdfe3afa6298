package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnsphere/enrollment-api/internal/models"
	"github.com/learnsphere/enrollment-api/internal/service"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
	"github.com/learnsphere/enrollment-api/pkg/response"
)

// AnalyticsHandler exposes read-only summary endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs AnalyticsHandler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// InstructorSummary godoc
// @Summary Instructor dashboard summary
// @Tags Analytics
// @Produce json
// @Param userId path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/instructors/{userId} [get]
func (h *AnalyticsHandler) InstructorSummary(c *gin.Context) {
	claims := claimsFromContext(c)
	instructorID := c.Param("userId")
	if claims.Role != models.RoleAdmin && instructorID != claims.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	summary, err := h.analytics.InstructorSummary(c.Request.Context(), instructorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// CourseSummary godoc
// @Summary Course summary
// @Tags Analytics
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/courses/{courseId} [get]
func (h *AnalyticsHandler) CourseSummary(c *gin.Context) {
	claims := claimsFromContext(c)
	summary, err := h.analytics.CourseSummaryFor(c.Request.Context(), *claims, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// StudentSummary godoc
// @Summary Student summary
// @Tags Analytics
// @Produce json
// @Param userId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/students/{userId} [get]
func (h *AnalyticsHandler) StudentSummary(c *gin.Context) {
	summary, err := h.analytics.StudentSummary(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
