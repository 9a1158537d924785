// Package events defines the push notifications consumed by the orchestrator:
// a closed set of event kinds, per-kind payload validation, and the Channel
// abstraction the transports implement.
package events

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/analysisview/internal/logfields"
)

// Handler receives validated events for the subscribed project.
type Handler func(ctx context.Context, evt Event)

// Channel delivers push events scoped to one project.
type Channel interface {
	Subscribe(ctx context.Context, project string, h Handler) (unsubscribe func(), err error)
}

// Dispatcher validates raw events at the subscription boundary and forwards the
// ones addressed to its project. Transports feed it with wire names and payloads.
type Dispatcher struct {
	project string
	handler Handler
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher for project.
func NewDispatcher(project string, h Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{project: project, handler: h, logger: logger}
}

// Dispatch decodes one raw event. Invalid payloads and events for other projects
// are dropped; it reports whether the handler was invoked.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload []byte) bool {
	evt, err := Decode(name, payload)
	if err != nil {
		d.logger.Warn("Dropping invalid event", logfields.Event(name), logfields.Error(err))
		return false
	}
	return d.Deliver(ctx, evt)
}

// Deliver forwards an already decoded event when it targets the dispatcher's project.
func (d *Dispatcher) Deliver(ctx context.Context, evt Event) bool {
	if evt.Project != d.project {
		d.logger.Debug("Ignoring event for other project", logfields.Event(string(evt.Kind)), logfields.Project(evt.Project))
		return false
	}
	d.handler(ctx, evt)
	return true
}

// LocalChannel is an in-process Channel backed by a Bus.
type LocalChannel struct {
	bus    *Bus
	buffer int
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLocalChannel creates a channel on bus. A nil bus gets a private one.
func NewLocalChannel(bus *Bus, buffer int, logger *slog.Logger) *LocalChannel {
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalChannel{bus: bus, buffer: buffer, logger: logger}
}

// Bus returns the underlying bus.
func (c *LocalChannel) Bus() *Bus { return c.bus }

// Publish decodes and validates a raw event and publishes it.
func (c *LocalChannel) Publish(ctx context.Context, name string, payload []byte) error {
	evt, err := Decode(name, payload)
	if err != nil {
		return err
	}
	return c.bus.Publish(ctx, evt)
}

// PublishEvent publishes an already decoded event.
func (c *LocalChannel) PublishEvent(ctx context.Context, evt Event) error {
	return c.bus.Publish(ctx, evt)
}

// Subscribe implements Channel. Handlers run on one goroutine per subscription,
// in publish order, until ctx is done or unsubscribe is called.
func (c *LocalChannel) Subscribe(ctx context.Context, project string, h Handler) (func(), error) {
	ch, unsubscribe := Subscribe[Event](c.bus, c.buffer)
	d := NewDispatcher(project, h, c.logger)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				d.Deliver(ctx, evt)
			}
		}
	}()
	return unsubscribe, nil
}

// Wait blocks until every subscription goroutine has exited.
func (c *LocalChannel) Wait() { c.wg.Wait() }
