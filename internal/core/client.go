// Package core talks to the downstream Core service that performs the
// actual job-board submission.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/applyflow/applyflow/pkg/models"
)

// Sentinel errors for transport-level failures. Both are retryable.
var (
	ErrCoreUnreachable = errors.New("core service unreachable")
	ErrCoreTimeout     = errors.New("core request timeout")
)

// APIError is a non-2xx response from the Core service. Whether it is
// retryable depends on the status code and is decided by the retry policy.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("core returned status %d: %s", e.StatusCode, e.Body)
}

// Client is the interface for submitting applications to the Core service.
type Client interface {
	SubmitApplication(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	Ready(ctx context.Context) error
}

// SubmitRequest is the payload for POST /applications/submit.
type SubmitRequest struct {
	JobExternalID string              `json:"jobExternalId"`
	CustomizedCV  models.CustomizedCV `json:"customizedCV"`
	CoverLetter   string              `json:"coverLetter"`
}

// SubmitResponse carries the identifiers the job board assigned.
type SubmitResponse struct {
	ResumeID      string          `json:"resumeId"`
	NegotiationID string          `json:"negotiationId"`
	Raw           json.RawMessage `json:"-"`
}

// HTTPClient implements Client against the Core HTTP API.
type HTTPClient struct {
	baseURL      string
	sharedSecret string
	client       *http.Client
}

// NewHTTPClient creates a new Core HTTP client.
func NewHTTPClient(baseURL, sharedSecret string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      baseURL,
		sharedSecret: sharedSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) SubmitApplication(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding submit request: %w", err)
	}

	u := fmt.Sprintf("%s/applications/submit", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Core-Secret", c.sharedSecret)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading core response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out SubmitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding core response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("X-Core-Secret", c.sharedSecret)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCoreUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: core not ready (status %d)", ErrCoreUnreachable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCoreTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrCoreTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrCoreUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrCoreUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
