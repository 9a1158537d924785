package aggregate

import (
	"encoding/json"
	"strconv"
	"time"
)

var (
	historyListPaths = [][]string{
		{"data"},
		{"history"},
		{"data", "history"},
		{"items"},
		{"data", "items"},
	}
	timestampFields = []string{"timestamp", "createdAt", "created_at", "completedAt", "completed_at"}
)

// millisThreshold separates unix seconds from unix milliseconds.
const millisThreshold = 1e11

// LatestTimestamp returns the most recent entry timestamp in a history payload.
// Entries may sit at the root or under data, history, data.history or items.
func LatestTimestamp(rawHistory any) (latest time.Time, found bool) {
	defer func() {
		if recover() != nil {
			latest, found = time.Time{}, false
		}
	}()

	for _, entry := range historyEntries(generic(rawHistory)) {
		m, ok := asMap(entry)
		if !ok {
			continue
		}
		for _, f := range timestampFields {
			ts, ok := parseTimestamp(m[f])
			if !ok {
				continue
			}
			if !found || ts.After(latest) {
				latest, found = ts, true
			}
			break
		}
	}
	return latest, found
}

// IsRecent reports whether the latest history entry is younger than window.
// An empty or unparseable history is never recent.
func IsRecent(rawHistory any, now time.Time, window time.Duration) bool {
	latest, ok := LatestTimestamp(rawHistory)
	return ok && now.Sub(latest) < window
}

func historyEntries(root any) []any {
	if l, ok := root.([]any); ok {
		return l
	}
	m, ok := asMap(root)
	if !ok {
		return nil
	}
	var out []any
	for _, p := range historyListPaths {
		if l, ok := lookup(m, p).([]any); ok {
			out = append(out, l...)
		}
	}
	return out
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return fromUnix(n), true
		}
		return time.Time{}, false
	case float64:
		return fromUnix(t), true
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(n), true
	case int:
		return fromUnix(float64(t)), true
	case int64:
		return fromUnix(float64(t)), true
	case time.Time:
		return t, !t.IsZero()
	default:
		return time.Time{}, false
	}
}

func fromUnix(n float64) time.Time {
	if n > millisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
