// Package client is a Go client for the animation HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/animagen/animagen/internal/handler/dto"
	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/service"
	"github.com/animagen/animagen/internal/storage"
)

// DefaultPollInterval is how often Wait polls task status.
const DefaultPollInterval = 2 * time.Second

// ErrTaskFailed is returned by Wait when the task ends in the failed state.
var ErrTaskFailed = errors.New("task failed")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client talks to one API server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. apiKey is only sent to admin routes and may be empty.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Generate submits an animation request.
func (c *Client) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	var out dto.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/animations/generate", req, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the current status of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*dto.StatusResponse, error) {
	var out dto.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/animations/status/"+url.PathEscape(taskID), nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefinedPrompt returns the refined prompt and generated code of a task.
func (c *Client) RefinedPrompt(ctx context.Context, taskID string) (*dto.RefinedPromptResponse, error) {
	var out dto.RefinedPromptResponse
	if err := c.do(ctx, http.MethodGet, "/api/animations/refined-prompt/"+url.PathEscape(taskID), nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns the status history of a task.
func (c *Client) Events(ctx context.Context, taskID string) (*dto.EventListResponse, error) {
	var out dto.EventListResponse
	if err := c.do(ctx, http.MethodGet, "/api/animations/events/"+url.PathEscape(taskID), nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of tasks. Admin only.
func (c *Client) List(ctx context.Context, cursor string, limit int) (*dto.TaskListResponse, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/animations/list"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out dto.TaskListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cleanup removes tasks and files older than hours. Admin only.
func (c *Client) Cleanup(ctx context.Context, hours int) (*service.CleanupResult, error) {
	var out service.CleanupResult
	path := "/api/animations/cleanup?hours=" + strconv.Itoa(hours)
	if err := c.do(ctx, http.MethodDelete, path, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StorageStats reports disk usage of the file store. Admin only.
func (c *Client) StorageStats(ctx context.Context) (*storage.Stats, error) {
	var out storage.Stats
	if err := c.do(ctx, http.MethodGet, "/api/animations/storage-stats", nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download streams the rendered video of a completed task into w and
// returns the file name suggested by the server.
func (c *Client) Download(ctx context.Context, taskID string, w io.Writer) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/animations/download/"+url.PathEscape(taskID), nil, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read video: %w", err)
	}
	return filenameFromDisposition(resp.Header.Get("Content-Disposition"), taskID), nil
}

// Wait polls Status until the task is terminal. onUpdate, if set, is called
// for every poll. A failed task returns its status and ErrTaskFailed.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration, onUpdate func(*dto.StatusResponse)) (*dto.StatusResponse, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(st)
		}
		if st.Status == model.TaskStatusFailed {
			msg := st.Message
			if st.ErrorMessage != nil {
				msg = *st.ErrorMessage
			}
			return st, fmt.Errorf("%w: %s", ErrTaskFailed, msg)
		}
		if st.Status.IsTerminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, admin bool, out any) error {
	resp, err := c.send(ctx, method, path, body, admin)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, admin bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if admin && c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body dto.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

func filenameFromDisposition(header, taskID string) string {
	const marker = "filename="
	if i := strings.Index(header, marker); i >= 0 {
		name := strings.Trim(header[i+len(marker):], `"; `)
		if name != "" && !strings.ContainsAny(name, `/\`) {
			return name
		}
	}
	return "animation_" + taskID + ".mp4"
}
