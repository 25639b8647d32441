// Package retrieval is the HTTP client for the external retrieval/AI
// service. The service is an opaque collaborator; every call passes through
// a shared circuit breaker so a degraded dependency cannot drag the gateway
// down with it.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/mecaparts/knowledge-gateway/pkg/errors"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
	"github.com/mecaparts/knowledge-gateway/pkg/resilience"
)

// SearchFilters constrains a retrieval call. Zero-value fields are omitted
// from the request and left to the service's defaults.
type SearchFilters struct {
	TruthLevels     []string `json:"truth_levels,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	RetrievableOnly bool     `json:"retrievable_only,omitempty"`
}

// SearchHit is one semantic search result.
type SearchHit struct {
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
}

// AnswerResponse is the service's answer to a user query.
type AnswerResponse struct {
	Answer  string      `json:"answer"`
	Sources []SearchHit `json:"sources"`
}

// JobStatus is the service-side view of an extraction/indexing job.
type JobStatus struct {
	Status     string   `json:"status"`
	PID        int      `json:"pid,omitempty"`
	StartedAt  int64    `json:"startedAt,omitempty"`
	FinishedAt int64    `json:"finishedAt,omitempty"`
	ReturnCode *int     `json:"returnCode,omitempty"`
	LogTail    []string `json:"logTail,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (s *JobStatus) Terminal() bool {
	return s.Status == "done" || s.Status == "failed"
}

// Client calls the external retrieval service over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a Client for the given base URL. The breaker is shared
// with every other caller of the same dependency. metrics may be nil.
func NewClient(baseURL string, timeout time.Duration, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		breaker: breaker,
		timeout: timeout,
		metrics: m,
		logger:  slog.Default().With("component", "retrieval-client"),
	}
}

// Search runs a semantic search with optional filters.
func (c *Client) Search(ctx context.Context, query string, topK int, filters *SearchFilters) ([]SearchHit, error) {
	req := map[string]any{"query": query, "top_k": topK}
	if filters != nil {
		req["filters"] = filters
	}
	var resp struct {
		Hits []SearchHit `json:"hits"`
	}
	if err := c.call(ctx, "search", http.MethodPost, "/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Answer asks the service for a grounded answer to a user query.
func (c *Client) Answer(ctx context.Context, query string, filters *SearchFilters) (*AnswerResponse, error) {
	req := map[string]any{"query": query}
	if filters != nil {
		req["filters"] = filters
	}
	var resp AnswerResponse
	if err := c.call(ctx, "answer", http.MethodPost, "/answer", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reindex asks the service to reindex the given knowledge files. The
// service takes an advisory file lock around the index; this client only
// triggers the operation.
func (c *Client) Reindex(ctx context.Context, paths []string) error {
	req := map[string]any{"paths": paths}
	return c.call(ctx, "reindex", http.MethodPost, "/reindex", req, nil)
}

// GetJobStatus polls the status of a service-side job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.call(ctx, "job-status", http.MethodGet, "/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call performs one breaker-guarded HTTP exchange. Failures are wrapped as
// ErrRetrievalUnavailable and fed to the breaker; a Guard rejection is
// returned without touching the failure count.
func (c *Client) call(ctx context.Context, operation, method, path string, body any, out any) error {
	defer c.observeBreaker()
	if err := c.breaker.Guard(); err != nil {
		return apperrors.Newf(apperrors.ErrRetrievalUnavailable, http.StatusServiceUnavailable,
			"retrieval %s rejected: %v", operation, err)
	}
	start := time.Now()
	err := c.doRequest(ctx, method, path, body, out)
	if c.metrics != nil {
		c.metrics.RetrievalCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.breaker.Failure()
		c.logger.Error("retrieval call failed", "operation", operation, "error", err)
		return apperrors.Newf(apperrors.ErrRetrievalUnavailable, http.StatusServiceUnavailable,
			"retrieval %s failed: %v", operation, err)
	}
	c.breaker.Success()
	return nil
}

func (c *Client) observeBreaker() {
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(c.breaker.Name()).Set(float64(c.breaker.GetState()))
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}
