package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

// Bus is a typed in-process publish/subscribe bus. It backs LocalChannel and
// lets embedders fan events out inside one process.
//
// Publish blocks until every matching subscriber accepted the event or ctx is done.
// Close closes every subscription channel.
type Bus struct {
	mu       sync.RWMutex
	subs     map[reflect.Type]map[uint64]*subscriber
	nextID   atomic.Uint64
	closed   atomic.Bool
	shutdown sync.Once
}

type subscriber struct {
	deliver func(ctx context.Context, evt any) error
	close   func()
}

// NewBus creates an open bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type]map[uint64]*subscriber)}
}

// Subscribe registers a subscription for values of type T. When T is an interface,
// every published value implementing it is delivered.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	key := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	var chOnce sync.Once
	closeCh := func() { chOnce.Do(func() { close(ch) }) }

	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}

	id := b.nextID.Add(1)
	sub := &subscriber{
		deliver: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return derrors.InternalError("event type mismatch").
					WithContext("expected", key.String()).
					WithContext("actual", reflect.TypeOf(evt).String()).
					Build()
			}
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return derrors.WrapError(ctx.Err(), derrors.CategoryRuntime, "event publish canceled").
					WithContext("event_type", key.String()).
					Build()
			}
		},
		close: closeCh,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*subscriber)
	}
	b.subs[key][id] = sub

	var unsubOnce sync.Once
	return ch, func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			if typeSubs, ok := b.subs[key]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(b.subs, key)
				}
			}
			b.mu.Unlock()
			closeCh()
		})
	}
}

// SubscriberCount returns the number of active subscribers for type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

// Publish delivers evt to all matching subscribers.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return derrors.ValidationError("event cannot be nil").Build()
	}
	if b.closed.Load() {
		return derrors.RuntimeError("event bus is closed").Build()
	}

	evtType := reflect.TypeOf(evt)

	b.mu.RLock()
	var targets []*subscriber
	for subType, typeSubs := range b.subs {
		if subType != evtType && (subType.Kind() != reflect.Interface || !evtType.Implements(subType)) {
			continue
		}
		for _, s := range typeSubs {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.shutdown.Do(func() {
		b.closed.Store(true)

		b.mu.Lock()
		var all []*subscriber
		for _, typeSubs := range b.subs {
			for _, s := range typeSubs {
				all = append(all, s)
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscriber)
		b.mu.Unlock()

		for _, s := range all {
			s.close()
		}
	})
}
