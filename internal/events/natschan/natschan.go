// Package natschan delivers analysis events over NATS core subjects of the form
// <prefix>.<project>.<event>.
package natschan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/analysisview/internal/events"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
)

// Channel is an events.Channel over a NATS connection.
type Channel struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
	owned  bool
}

var _ events.Channel = (*Channel)(nil)

// Connect dials the NATS server at url. The returned channel owns the connection.
func Connect(url, prefix string, logger *slog.Logger, opts ...nats.Option) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []nats.Option{
		nats.Name("analysisview"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logfields.Transport("nats"), logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", logfields.Transport("nats"), logfields.URL(nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryNetwork, "failed to connect to NATS").
			Retryable().
			WithContext("url", url).
			Build()
	}
	logger.Info("NATS event channel connected", logfields.URL(url), slog.String("prefix", prefix))
	ch := New(conn, prefix, logger)
	ch.owned = true
	return ch, nil
}

// New wraps an existing connection. Close does not close a connection it did not open.
func New(conn *nats.Conn, prefix string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{conn: conn, prefix: strings.Trim(prefix, "."), logger: logger}
}

// Subject returns the subject an event for project is published on.
func Subject(prefix, project, event string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, project, event)
}

// EventName extracts the event name from a subject received on a project wildcard.
func EventName(prefix, project, subject string) (string, bool) {
	name, ok := strings.CutPrefix(subject, prefix+"."+project+".")
	return name, ok && name != ""
}

// ValidToken reports whether s can be used as one subject token.
func ValidToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ". *>\t\r\n")
}

// Subscribe implements events.Channel.
func (c *Channel) Subscribe(ctx context.Context, project string, h events.Handler) (func(), error) {
	if !ValidToken(project) {
		return nil, derrors.ValidationError("project id cannot be used as a NATS subject token").
			WithContext("project", project).Build()
	}
	d := events.NewDispatcher(project, h, c.logger)
	subject := Subject(c.prefix, project, ">")

	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		name, ok := EventName(c.prefix, project, m.Subject)
		if !ok {
			return
		}
		d.Dispatch(ctx, name, m.Data)
	})
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryEvent, "failed to subscribe").
			WithContext("subject", subject).Build()
	}
	c.logger.Debug("Subscribed to NATS subject", slog.String("subject", subject))

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil && c.conn.IsConnected() {
				c.logger.Warn("NATS unsubscribe failed", logfields.Error(err))
			}
		})
	}
	context.AfterFunc(ctx, unsubscribe)
	return unsubscribe, nil
}

// Publish sends a raw event for project. It is used by tooling and tests.
func (c *Channel) Publish(project, event string, payload []byte) error {
	if _, ok := events.ParseKind(event); !ok {
		return derrors.ValidationError("unknown event").WithContext("event", event).Build()
	}
	if err := c.conn.Publish(Subject(c.prefix, project, event), payload); err != nil {
		return derrors.WrapError(err, derrors.CategoryNetwork, "failed to publish event").Build()
	}
	return nil
}

// Close drains the connection when the channel opened it.
func (c *Channel) Close() {
	if c.owned && c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
}
