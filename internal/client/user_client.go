package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// UserClient resolves user display names from the identity service. Lookups
// enrich instructor-facing listings only; callers degrade to placeholders
// when the service is unreachable.
type UserClient struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewUserClient constructs the client against the identity service base URL.
func NewUserClient(baseURL string, timeout time.Duration, logger *zap.Logger) *UserClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &UserClient{http: httpClient, logger: logger}
}

type displayNamesResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// DisplayNames resolves ids to display names in one batch call. Unknown ids
// are simply absent from the result.
func (c *UserClient) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	var body displayNamesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetQueryParam("ids", strings.Join(userIDs, ",")).
		Get("/internal/users/display-names")
	if err != nil {
		return nil, fmt.Errorf("fetch display names: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("user service returned %d", resp.StatusCode())
	}

	names := make(map[string]string, len(body.Data))
	for _, user := range body.Data {
		names[user.ID] = user.Name
	}
	return names, nil
}
