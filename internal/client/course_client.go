package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/internal/models"
	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

// CourseClient talks to the course service over HTTP. It is only consulted at
// enrollment time, to freeze the course structure into the new enrollment.
type CourseClient struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewCourseClient constructs the client against the course service base URL.
func NewCourseClient(baseURL string, timeout time.Duration, logger *zap.Logger) *CourseClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	return &CourseClient{http: httpClient, logger: logger}
}

type courseStructureResponse struct {
	Data struct {
		Version int `json:"version"`
		Modules []struct {
			ID        string   `json:"id"`
			Title     string   `json:"title"`
			LessonIDs []string `json:"lessonIds"`
		} `json:"modules"`
	} `json:"data"`
}

// FetchStructure retrieves the module and lesson layout of a course.
func (c *CourseClient) FetchStructure(ctx context.Context, courseID string) (models.CourseStructureSnapshot, error) {
	var body courseStructureResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("courseId", courseID).
		Get("/internal/courses/{courseId}/structure")
	if err != nil {
		return models.CourseStructureSnapshot{}, fmt.Errorf("fetch course structure: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return models.CourseStructureSnapshot{}, appErrors.Clone(appErrors.ErrNotFound, "course structure not found")
	}
	if resp.IsError() {
		return models.CourseStructureSnapshot{}, fmt.Errorf("course service returned %d", resp.StatusCode())
	}

	snapshot := models.CourseStructureSnapshot{
		Version: body.Data.Version,
		Modules: make([]models.ModuleSnapshot, 0, len(body.Data.Modules)),
	}
	if snapshot.Version == 0 {
		snapshot.Version = models.SnapshotVersion
	}
	for _, module := range body.Data.Modules {
		snapshot.Modules = append(snapshot.Modules, models.ModuleSnapshot{
			ID:        module.ID,
			Title:     module.Title,
			LessonIDs: module.LessonIDs,
		})
		snapshot.TotalLessons += len(module.LessonIDs)
	}
	return snapshot, nil
}
