package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/analysisview/internal/foundation/normalization"
)

// Duration is a time.Duration that reads and writes Go duration strings ("30s", "1h") in YAML.
type Duration time.Duration

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Bare integers are read as seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if _, err := fmt.Sscan(raw, &secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration %q at line %d", raw, node.Line)
}

// EventTransport selects the push channel implementation.
type EventTransport string

const (
	TransportSSE       EventTransport = "sse"
	TransportNATS      EventTransport = "nats"
	TransportWebSocket EventTransport = "websocket"
	TransportLocal     EventTransport = "local"
)

var transportNormalizer = normalization.NewNormalizer("events.transport", map[string]EventTransport{
	"sse":       TransportSSE,
	"nats":      TransportNATS,
	"websocket": TransportWebSocket,
	"ws":        TransportWebSocket,
	"local":     TransportLocal,
}, TransportSSE)

// InvalidationPolicy selects how much is invalidated when an analysis completes.
type InvalidationPolicy string

const (
	// InvalidateAll drops every cached kind for the project and reloads all expanded sections.
	InvalidateAll InvalidationPolicy = "all"
	// InvalidateCategory narrows invalidation to the completed analysis type's category.
	InvalidateCategory InvalidationPolicy = "category"
)

var invalidationNormalizer = normalization.NewNormalizer("refresh.invalidation", map[string]InvalidationPolicy{
	"all":      InvalidateAll,
	"category": InvalidateCategory,
}, InvalidateAll)
