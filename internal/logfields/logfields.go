package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyProject    = "project"
	KeyCategory   = "category"
	KeyDataKind   = "data_kind"
	KeyJobID      = "job_id"
	KeyJobStatus  = "job_status"
	KeyProgress   = "progress"
	KeyStep       = "step"
	KeyEvent      = "event"
	KeyGeneration = "generation"
	KeyAttempt    = "attempt"
	KeyDurationMS = "duration_ms"
	KeySessionID  = "session_id"
	KeyTransport  = "transport"
	KeyRequestID  = "request_id"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyPath       = "path"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Project(id string) slog.Attr     { return slog.String(KeyProject, id) }
func Category(c string) slog.Attr     { return slog.String(KeyCategory, c) }
func DataKind(k string) slog.Attr     { return slog.String(KeyDataKind, k) }
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobStatus(s string) slog.Attr    { return slog.String(KeyJobStatus, s) }
func Progress(p int) slog.Attr        { return slog.Int(KeyProgress, p) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func Event(name string) slog.Attr     { return slog.String(KeyEvent, name) }
func Generation(g uint64) slog.Attr   { return slog.Uint64(KeyGeneration, g) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func SessionID(id string) slog.Attr   { return slog.String(KeySessionID, id) }
func Transport(t string) slog.Attr    { return slog.String(KeyTransport, t) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
