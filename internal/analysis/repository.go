package analysis

import "encoding/json"

// FetchOptions tunes a read from the analysis service.
type FetchOptions struct {
	// Fast asks for the lower latency variant of an endpoint, which may omit
	// expensive fields.
	Fast bool
}

// MutationResult is the response body of start, cancel and retry calls.
type MutationResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
