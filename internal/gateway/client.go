package gateway

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

	"github.com/rs/zerolog"
)

// ErrMissingJobID indicates the backend accepted a submission but returned no
// job identifier, so no record can be created for it.
var ErrMissingJobID = errors.New("gateway: response missing job id")

// State enumerates the statuses the backend reports for a job.
type State string

const (
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
)

// Options configures the backend gateway client.
type Options struct {
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the inference backend that runs the
// actual image generation. The backend is opaque: this client only submits
// prompts, polls status and fetches finished artifacts.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// SubmitRequest carries one prompt plus optional generation parameters that
// are forwarded to the backend untouched.
type SubmitRequest struct {
	Prompt         string
	Steps          int
	GuidanceScale  float64
	NegativePrompt string
}

// StatusResult is the backend's answer to a single status query. URL is set
// on SUCCESS, Message on ERROR.
type StatusResult struct {
	State   State
	URL     string
	Message string
}

// Artifact is a finished image fetched from its result reference.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string
}

type submitPayload struct {
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:    baseURL,
		model:      strings.TrimSpace(opts.Model),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Submit asks the backend to start a generation job and returns the id it
// assigned.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("gateway: prompt is required")
	}
	payload := submitPayload{
		Prompt:         prompt,
		Model:          c.model,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gateway: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gateway: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gateway: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway: submit status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("gateway: decode response: %w", err)
	}
	if strings.TrimSpace(decoded.JobID) == "" {
		return "", ErrMissingJobID
	}
	return decoded.JobID, nil
}

// Status queries the backend for the current state of jobID. Every failure to
// complete the query, including unexpected HTTP statuses and undecodable
// bodies, is reported as a transient error: the caller retries on the next
// polling tick. Unrecognized status strings are mapped to PENDING.
func (c *Client) Status(ctx context.Context, jobID string) (StatusResult, error) {
	endpoint := c.baseURL + "/status/" + url.PathEscape(jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("gateway: build request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return StatusResult{}, transient(fmt.Errorf("gateway: status query: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusResult{}, transient(fmt.Errorf("gateway: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return StatusResult{}, transient(fmt.Errorf("gateway: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return StatusResult{}, transient(fmt.Errorf("gateway: decode response: %w", err))
	}
	result := StatusResult{URL: decoded.URL, Message: decoded.Message}
	switch strings.ToUpper(strings.TrimSpace(decoded.Status)) {
	case string(StateSuccess):
		result.State = StateSuccess
	case string(StateError):
		result.State = StateError
	default:
		result.State = StatePending
	}
	return result, nil
}

// Fetch retrieves a finished artifact by its result reference. The caller
// owns the returned body.
func (c *Client) Fetch(ctx context.Context, ref string) (*Artifact, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("gateway: artifact reference is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch artifact: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("gateway: artifact status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Artifact{Body: resp.Body, ContentType: contentType}, nil
}

// transientError marks a status-query failure that should be retried rather
// than surfaced into the job record.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	return &transientError{err: err}
}

// IsTransient reports whether err represents a transport-level fault that
// leaves the job pending and retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
