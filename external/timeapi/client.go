package timeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/foxseedlab/tasktimer/internal/tracking"
)

// APIError is a non-success envelope from the server.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Unwrap lets callers match the server's error classes with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return tracking.ErrInvalidArgument
	case http.StatusNotFound:
		return tracking.ErrNotFound
	case http.StatusServiceUnavailable:
		return tracking.ErrTransient
	}
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient talks to the timer API with one bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Start(ctx context.Context, taskID string) (*repository.TimeSession, error) {
	var out struct {
		Session *repository.TimeSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, taskPath(taskID, "timer/start"), nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func (c *HTTPClient) Stop(ctx context.Context, taskID string) (tracking.StopResult, error) {
	var out tracking.StopResult
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "timer/stop"), nil, &out)
	return out, err
}

func (c *HTTPClient) Reset(ctx context.Context, taskID string) (tracking.ResetResult, error) {
	var out tracking.ResetResult
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "timer/reset"), map[string]bool{"confirm": true}, &out)
	return out, err
}

func (c *HTTPClient) UserTotals(ctx context.Context, taskIDs []string) (map[string]aggregate.UserTotal, error) {
	var out struct {
		Totals map[string]aggregate.UserTotal `json:"totals"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/timers/batch", map[string][]string{"task_ids": taskIDs}, &out); err != nil {
		return nil, err
	}
	return out.Totals, nil
}

func (c *HTTPClient) TaskSnapshot(ctx context.Context, taskID string) (aggregate.TaskSnapshot, error) {
	var out struct {
		Snapshot aggregate.TaskSnapshot `json:"snapshot"`
	}
	err := c.do(ctx, http.MethodGet, taskPath(taskID, "sessions"), nil, &out)
	return out.Snapshot, err
}

func (c *HTTPClient) ListComments(ctx context.Context, taskID string) ([]repository.Comment, error) {
	var out struct {
		Comments []repository.Comment `json:"comments"`
	}
	err := c.do(ctx, http.MethodGet, taskPath(taskID, "comments"), nil, &out)
	return out.Comments, err
}

func taskPath(taskID, suffix string) string {
	return "/api/tasks/" + url.PathEscape(taskID) + "/" + suffix
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if !isHTTPSuccessStatus(resp.StatusCode) {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if !isHTTPSuccessStatus(resp.StatusCode) || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsUnauthorized reports whether the server rejected the token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
