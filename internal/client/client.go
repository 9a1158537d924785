// Package client is the HTTP implementation of the analysis service repository.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
)

const userAgent = "analysisview/1.0"

// Client talks to /api/projects/{id}/analysis/... endpoints. Reads return the raw
// JSON body so callers can normalize inconsistent payload shapes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default sets no timeout; a stuck
// call is bounded only by the caller's context.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpClient = c } }

// WithToken sets the bearer token.
func WithToken(token string) Option { return func(cl *Client) { cl.token = token } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, derrors.ConfigError("invalid API base URL").WithContext("base_url", baseURL).Build()
	}
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetStatus fetches the per-type job status of project.
func (c *Client) GetStatus(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "status", opts)
}

// GetMetrics fetches the aggregated metrics of project.
func (c *Client) GetMetrics(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "metrics", opts)
}

// GetHistory fetches the analysis history of project.
func (c *Client) GetHistory(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "history", opts)
}

// GetTechStack fetches the tech stack analysis of project.
func (c *Client) GetTechStack(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "tech-stack", opts)
}

// GetIssues fetches the security and code quality issues of project.
func (c *Client) GetIssues(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "issues", opts)
}

// GetArchitecture fetches the architecture analysis of project.
func (c *Client) GetArchitecture(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "architecture", opts)
}

// GetRecommendations fetches the recommendations of project.
func (c *Client) GetRecommendations(ctx context.Context, project string, opts analysis.FetchOptions) (json.RawMessage, error) {
	return c.get(ctx, project, "recommendations", opts)
}

// GetCharts fetches the chart series named kind.
func (c *Client) GetCharts(ctx context.Context, project, kind string, opts analysis.FetchOptions) (json.RawMessage, error) {
	if !validSegment(kind) {
		return nil, derrors.ValidationError("invalid chart kind").WithContext("kind", kind).Build()
	}
	return c.get(ctx, project, "charts/"+kind, opts)
}

// StartAnalysis asks the service to run one analysis type.
func (c *Client) StartAnalysis(ctx context.Context, project string, t analysis.Type) (analysis.MutationResult, error) {
	body := map[string]string{"analysisType": string(t)}
	return c.mutate(ctx, project, "start", body)
}

// CancelStep asks the service to stop a running job. The service does not
// guarantee that the remote work actually stops.
func (c *Client) CancelStep(ctx context.Context, project, stepID string) (analysis.MutationResult, error) {
	if !validSegment(stepID) {
		return analysis.MutationResult{}, derrors.ValidationError("invalid step id").WithContext("step_id", stepID).Build()
	}
	return c.mutate(ctx, project, "steps/"+stepID+"/cancel", nil)
}

// RetryStep asks the service to rerun a failed job.
func (c *Client) RetryStep(ctx context.Context, project, stepID string) (analysis.MutationResult, error) {
	if !validSegment(stepID) {
		return analysis.MutationResult{}, derrors.ValidationError("invalid step id").WithContext("step_id", stepID).Build()
	}
	return c.mutate(ctx, project, "steps/"+stepID+"/retry", nil)
}

func (c *Client) get(ctx context.Context, project, endpoint string, opts analysis.FetchOptions) (json.RawMessage, error) {
	query := url.Values{}
	if opts.Fast {
		query.Set("fast", "true")
	}
	req, err := c.newRequest(ctx, http.MethodGet, project, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) mutate(ctx context.Context, project, endpoint string, body any) (analysis.MutationResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, project, endpoint, nil, body)
	if err != nil {
		return analysis.MutationResult{}, err
	}
	var result analysis.MutationResult
	if err := c.do(req, &result); err != nil {
		return analysis.MutationResult{}, err
	}
	return result, nil
}

func (c *Client) newRequest(ctx context.Context, method, project, endpoint string, query url.Values, body any) (*http.Request, error) {
	if !validSegment(project) {
		return nil, derrors.ValidationError("invalid project id").WithContext("project", project).Build()
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, derrors.ConfigError("failed to parse API URL").WithCause(err).WithContext("base_url", c.baseURL).Build()
	}
	u.Path = path.Join(u.Path, "api", "projects", project, "analysis", endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	reader := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, derrors.WrapError(err, derrors.CategoryInternal, "failed to marshal request body").Build()
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryInternal, "failed to create request").
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, result any) error {
	start := time.Now()
	requestID := req.Header.Get("X-Request-ID")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return derrors.NetworkError("failed to execute analysis request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Analysis request completed",
		slog.String("method", req.Method),
		logfields.Path(req.URL.Path),
		logfields.Status(resp.StatusCode),
		logfields.RequestID(requestID),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(req, resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if err == io.EOF {
			return nil
		}
		return derrors.WrapError(err, derrors.CategoryAPI, "failed to decode response").
			WithContext("url", req.URL.String()).
			Build()
	}
	return nil
}

func statusError(req *http.Request, resp *http.Response) error {
	limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.ReplaceAll(string(limited), "\n", " ")
	var mr analysis.MutationResult
	if json.Unmarshal(limited, &mr) == nil && mr.Error != "" {
		detail = mr.Error
	}

	var b *derrors.ErrorBuilder
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		b = derrors.APIError(fmt.Sprintf("analysis API error: %s", resp.Status)).RateLimit()
	case resp.StatusCode >= 500:
		b = derrors.NetworkError(fmt.Sprintf("analysis API error: %s", resp.Status))
	case resp.StatusCode == http.StatusNotFound:
		b = derrors.NewError(derrors.CategoryNotFound, fmt.Sprintf("analysis API error: %s", resp.Status))
	default:
		b = derrors.APIError(fmt.Sprintf("analysis API error: %s", resp.Status))
	}
	return b.
		WithContext("code", resp.StatusCode).
		WithContext("url", req.URL.String()).
		WithContext("response", detail).
		Build()
}

func validSegment(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.ContainsAny(s, "/?#") && s != "." && s != ".."
}
