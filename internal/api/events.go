package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/orchestrator"
)

const (
	viewBuffer        = 4
	keepaliveInterval = 30 * time.Second
)

// ViewBroadcaster fans view snapshots out to stream subscribers. Slow
// subscribers miss snapshots rather than blocking the publisher.
type ViewBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan orchestrator.View]struct{}
	closed bool
	logger *slog.Logger
}

// NewViewBroadcaster creates a broadcaster.
func NewViewBroadcaster(logger *slog.Logger) *ViewBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewBroadcaster{subs: make(map[chan orchestrator.View]struct{}), logger: logger}
}

// Subscribe returns a channel of views and a function to unsubscribe.
func (b *ViewBroadcaster) Subscribe() (<-chan orchestrator.View, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan orchestrator.View, viewBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish sends v to every subscriber without blocking.
func (b *ViewBroadcaster) Publish(v orchestrator.View) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.logger.Warn("View stream subscriber full, dropping snapshot")
		}
	}
}

// SubscriberCount returns the number of open streams.
func (b *ViewBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every stream.
func (b *ViewBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}

// HandleViewEvents streams view snapshots as server-sent events. The current view
// is sent first.
func (s *Server) HandleViewEvents(views *ViewBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch, unsubscribe := views.Subscribe()
		defer unsubscribe()

		s.logger.Debug("View stream opened", logfields.Path(r.URL.Path))
		s.sendSSEEvent(w, s.orch.View())

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				s.logger.Debug("View stream closed (client disconnect)")
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flush(w)
			case v, ok := <-ch:
				if !ok {
					return
				}
				s.sendSSEEvent(w, v)
			}
		}
	}
}

// sendSSEEvent sends a view in SSE format.
func (s *Server) sendSSEEvent(w http.ResponseWriter, v orchestrator.View) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal view", logfields.Error(err))
		return
	}
	_, _ = fmt.Fprintf(w, "event: view\ndata: %s\n\n", data)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
