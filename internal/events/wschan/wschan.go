// Package wschan consumes enveloped analysis events from a WebSocket endpoint.
package wschan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/retry"
)

const (
	transportName    = "websocket"
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20
)

// Option configures a Channel.
type Option func(*Channel)

// WithToken sends a bearer token during the handshake.
func WithToken(token string) Option { return func(ch *Channel) { ch.token = token } }

// WithRetryPolicy sets the reconnect schedule.
func WithRetryPolicy(p retry.Policy) Option { return func(ch *Channel) { ch.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(ch *Channel) { ch.logger = l } }

// Channel is an events.Channel over a WebSocket connection. Each text message is
// one events.Envelope.
type Channel struct {
	endpoint string
	token    string
	dialer   *websocket.Dialer
	policy   retry.Policy
	logger   *slog.Logger
}

var _ events.Channel = (*Channel)(nil)

// New creates a channel for the ws:// or wss:// endpoint.
func New(endpoint string, opts ...Option) *Channel {
	ch := &Channel{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Subscribe implements events.Channel.
func (c *Channel) Subscribe(ctx context.Context, project string, h events.Handler) (func(), error) {
	wsURL, err := c.streamURL(project)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	d := events.NewDispatcher(project, h, c.logger)

	dial := func(ctx context.Context) (func() error, error) {
		conn, err := c.dial(ctx, wsURL)
		if err != nil {
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		})
		return func() error {
			defer stop()
			defer conn.Close()
			return c.read(ctx, conn, d)
		}, nil
	}
	if err := events.Maintain(ctx, transportName, c.policy, c.logger, dial); err != nil {
		cancel()
		return nil, err
	}
	c.logger.Info("Subscribed to event stream", logfields.Transport(transportName), logfields.URL(wsURL))
	return cancel, nil
}

func (c *Channel) streamURL(project string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return "", derrors.ConfigError("invalid websocket URL").WithContext("url", c.endpoint).Build()
	}
	q := u.Query()
	q.Set("project", project)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Channel) dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		b := derrors.WrapError(err, derrors.CategoryNetwork, "websocket handshake failed").
			Retryable().
			WithContext("url", wsURL)
		if resp != nil {
			b = b.WithContext("status", resp.StatusCode)
		}
		return nil, b.Build()
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

func (c *Channel) read(ctx context.Context, conn *websocket.Conn, d *events.Dispatcher) error {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read websocket: %w", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		name, payload, err := events.DecodeEnvelope(msg)
		if err != nil {
			c.logger.Warn("Dropping malformed websocket message", logfields.Transport(transportName), logfields.Error(err))
			continue
		}
		d.Dispatch(ctx, name, payload)
	}
}
