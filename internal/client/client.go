package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	goahttp "goa.design/goa/v3/http"

	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

// APIError is a non-2xx response
type APIError struct {
	Status int
	Name   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Detail)
}

// errorBody is the error shape written by the API server
type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// CreateAlertRequest is the body of POST /alerts
type CreateAlertRequest struct {
	Animal     string        `json:"animal"`
	ImageURL   string        `json:"image_url,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	BBox       *geometry.Box `json:"bbox,omitempty"`
	CameraID   string        `json:"camera_id,omitempty"`
}

// Alert is a stored alert
type Alert struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Animal     string        `json:"animal"`
	ImageURL   string        `json:"image_url"`
	AlertLevel string        `json:"alert_level"`
	Confidence *float64      `json:"confidence,omitempty"`
	BBox       *geometry.Box `json:"bbox,omitempty"`
	CameraID   string        `json:"camera_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// MonitorStatus is the body of GET /server/status
type MonitorStatus struct {
	Running  bool   `json:"running"`
	Owner    string `json:"owner"`
	CameraID string `json:"camera_id"`
	Stats    *struct {
		FramesSeen       uint64 `json:"frames_seen"`
		FramesEvaluated  uint64 `json:"frames_evaluated"`
		AlertsEmitted    uint64 `json:"alerts_emitted"`
		AlertsSuppressed uint64 `json:"alerts_suppressed"`
		DetectionErrors  uint64 `json:"detection_errors"`
	} `json:"stats,omitempty"`
}

// Client talks to the wildwatch API
type Client struct {
	base *url.URL
	doer goahttp.Doer

	mu    sync.RWMutex
	token string
}

// New creates an API client. A nil doer uses an http.Client with a 15s
// timeout.
func New(baseURL string, doer goahttp.Doer) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if doer == nil {
		doer = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{base: u, doer: doer}, nil
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a token and keeps it
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var res struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/token", nil, body, &res); err != nil {
		return "", err
	}
	c.SetToken(res.AccessToken)
	return res.AccessToken, nil
}

// Register creates an account and returns the user id
func (c *Client) Register(ctx context.Context, name, email, password, phone string) (string, error) {
	var res struct {
		UserID string `json:"user_id"`
	}
	body := map[string]string{"name": name, "email": email, "password": password, "phone": phone}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, body, &res); err != nil {
		return "", err
	}
	return res.UserID, nil
}

// CreateAlert posts an alert
func (c *Client) CreateAlert(ctx context.Context, req *CreateAlertRequest) (*Alert, error) {
	var res Alert
	if err := c.do(ctx, http.MethodPost, "/alerts", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListAlerts returns the user's alerts, newest first. limit <= 0 means all.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, "/alerts/me", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Alerts, nil
}

// DeleteAlert deletes an alert. A missing or foreign alert is reported
// through the returned message, not an error.
func (c *Client) DeleteAlert(ctx context.Context, id string) (bool, string, error) {
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil, &res); err != nil {
		return false, "", err
	}
	return res.Success, res.Message, nil
}

// StartMonitor starts monitoring on behalf of the client's user
func (c *Client) StartMonitor(ctx context.Context) (string, error) {
	return c.monitor(ctx, "/server/start")
}

// StopMonitor stops monitoring
func (c *Client) StopMonitor(ctx context.Context) (string, error) {
	return c.monitor(ctx, "/server/stop")
}

// MonitorStatus returns the monitor state
func (c *Client) MonitorStatus(ctx context.Context) (*MonitorStatus, error) {
	var res MonitorStatus
	if err := c.do(ctx, http.MethodGet, "/server/status", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) monitor(ctx context.Context, path string) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

// do sends a JSON request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if err := goahttp.RequestEncoder(req).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if err := goahttp.ResponseDecoder(resp).Decode(&eb); err == nil {
			apiErr.Name = eb.Name
			apiErr.Detail = eb.Detail
			if apiErr.Detail == "" {
				apiErr.Detail = eb.Message
			}
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := goahttp.ResponseDecoder(resp).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
