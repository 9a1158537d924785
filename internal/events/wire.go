package events

import (
	"encoding/json"
	"strings"

	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

// Envelope is the framing used by transports that carry no event name of their own.
type Envelope struct {
	Event string          `json:"event"`
	Type  string          `json:"type,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// DecodeEnvelope extracts the event name and payload from an enveloped message.
func DecodeEnvelope(msg []byte) (string, []byte, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", nil, derrors.WrapError(err, derrors.CategoryEvent, "malformed event envelope").Warning().Build()
	}
	name := strings.TrimSpace(env.Event)
	if name == "" {
		name = strings.TrimSpace(env.Type)
	}
	if name == "" {
		return "", nil, derrors.EventError("event envelope has no name").Build()
	}
	if len(env.Data) == 0 {
		return name, []byte("{}"), nil
	}
	return name, env.Data, nil
}

// EncodeEnvelope frames a payload with its event name.
func EncodeEnvelope(name string, payload []byte) ([]byte, error) {
	return json.Marshal(Envelope{Event: name, Data: payload})
}
