// Package careclient is a Go client for the healthplix API and its change
// stream.
package careclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const devEmailHeader = "X-Dev-Email"

// APIError is an error response from the server.
type APIError struct {
	Status    int    `json:"-"`
	Kind      string `json:"kind"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("healthplix: %d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("healthplix: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

type Config struct {
	// BaseURL includes the API prefix, e.g. http://localhost:8080/api/v1.
	BaseURL string
	// Token is a bearer token from the identity service.
	Token string
	// DevEmail authenticates against a development server instead of Token.
	DevEmail   string
	Timeout    time.Duration
	RetryCount int
}

type Client struct {
	http *resty.Client
	cfg  Config
}

// New builds a client. Only GET requests are retried; writes are left to
// the caller because the server may have applied them before failing.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryIdempotent)
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	if cfg.DevEmail != "" {
		rc.SetHeader(devEmailHeader, cfg.DevEmail)
	}
	return &Client{http: rc, cfg: cfg}
}

func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	apiErr := &APIError{}
	req := c.http.R().SetContext(ctx).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
		return apiErr
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/profiles/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Register(ctx context.Context, p Profile) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodPost, "/profiles", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendRequest asks patientEmail to accept the calling doctor.
func (c *Client) SendRequest(ctx context.Context, patientEmail string) (*Request, error) {
	var out Request
	body := map[string]string{"patient_email": patientEmail}
	if err := c.do(ctx, http.MethodPost, "/requests", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PendingRequests(ctx context.Context) ([]PendingRequest, error) {
	var out []PendingRequest
	if err := c.do(ctx, http.MethodGet, "/requests/pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Approve(ctx context.Context, id string) (*Request, error) {
	return c.respond(ctx, id, "approve")
}

func (c *Client) Reject(ctx context.Context, id string) (*Request, error) {
	return c.respond(ctx, id, "reject")
}

func (c *Client) respond(ctx context.Context, id, action string) (*Request, error) {
	var out Request
	if err := c.do(ctx, http.MethodPost, "/requests/"+url.PathEscape(id)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignedDoctor returns the calling patient's doctor, or nil when none is
// assigned.
func (c *Client) AssignedDoctor(ctx context.Context) (*AssignedDoctor, error) {
	var out AssignedDoctor
	err := c.do(ctx, http.MethodGet, "/assignments/doctor", nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
