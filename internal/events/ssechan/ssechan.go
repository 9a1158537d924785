// Package ssechan consumes analysis events from a server-sent events stream.
package ssechan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

const transportName = "sse"

// Option configures a Channel.
type Option func(*Channel)

// WithHTTPClient replaces the HTTP client. The default has no timeout since the
// stream is long lived.
func WithHTTPClient(c *http.Client) Option { return func(ch *Channel) { ch.client = c } }

// WithToken sends a bearer token with the stream request.
func WithToken(token string) Option { return func(ch *Channel) { ch.token = token } }

// WithRetryPolicy sets the reconnect schedule.
func WithRetryPolicy(p retry.Policy) Option { return func(ch *Channel) { ch.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(ch *Channel) { ch.logger = l } }

// Channel is an events.Channel reading an SSE endpoint.
type Channel struct {
	endpoint string
	token    string
	client   *http.Client
	policy   retry.Policy
	logger   *slog.Logger
}

var _ events.Channel = (*Channel)(nil)

// New creates a channel for the stream at endpoint.
func New(endpoint string, opts ...Option) *Channel {
	ch := &Channel{
		endpoint: endpoint,
		client:   &http.Client{},
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Subscribe implements events.Channel. The first connection attempt is made
// synchronously; later drops reconnect in the background until ctx or the
// returned function cancels the subscription.
func (c *Channel) Subscribe(ctx context.Context, project string, h events.Handler) (func(), error) {
	streamURL, err := c.streamURL(project)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	d := events.NewDispatcher(project, h, c.logger)

	dial := func(ctx context.Context) (func() error, error) {
		body, err := c.open(ctx, streamURL)
		if err != nil {
			return nil, err
		}
		return func() error {
			defer body.Close()
			return Read(ctx, body, d)
		}, nil
	}
	if err := events.Maintain(ctx, transportName, c.policy, c.logger, dial); err != nil {
		cancel()
		return nil, err
	}
	c.logger.Info("Subscribed to event stream", logfields.Transport(transportName), logfields.URL(streamURL))
	return cancel, nil
}

func (c *Channel) streamURL(project string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", derrors.ConfigError("invalid event stream URL").WithContext("url", c.endpoint).Build()
	}
	q := u.Query()
	q.Set("project", project)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Channel) open(ctx context.Context, streamURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryInternal, "failed to build stream request").Build()
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryNetwork, "event stream connection failed").
			Retryable().WithContext("url", streamURL).Build()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, derrors.NetworkError(fmt.Sprintf("event stream returned HTTP %d", resp.StatusCode)).
			WithContext("url", streamURL).
			WithContext("status", resp.StatusCode).
			Build()
	}
	return resp.Body, nil
}

// Read parses an SSE body and dispatches every complete frame. Frames without an
// event field carry an envelope in their data. It returns when the body ends.
func Read(ctx context.Context, r io.Reader, d *events.Dispatcher) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name string
	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			name = ""
			return
		}
		payload := []byte(strings.Join(dataLines, "\n"))
		dataLines = dataLines[:0]
		event := name
		name = ""
		if event == "" || event == "message" {
			n, p, err := events.DecodeEnvelope(payload)
			if err != nil {
				return
			}
			event, payload = n, p
		}
		d.Dispatch(ctx, event, payload)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line[len("data:"):], " "))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
