// Package aggregate normalizes the inconsistently shaped analysis payloads returned
// by the analysis service into one record per category.
//
// Normalize is total: for any input it returns a Data whose maps and slices are
// all non-nil, and it never panics.
package aggregate

import (
	"encoding/json"
	"strings"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
)

// Data is the normalized record exposed for one category.
type Data struct {
	Summary         map[string]any `json:"summary"`
	Issues          []any          `json:"issues"`
	Recommendations []any          `json:"recommendations"`
	Tasks           []any          `json:"tasks"`
	Documentation   map[string]any `json:"documentation"`
	Metrics         map[string]any `json:"metrics"`
	Results         map[string]any `json:"results"`
}

// Empty returns a Data with every field set to its empty value.
func Empty() Data {
	return Data{
		Summary:         map[string]any{},
		Issues:          []any{},
		Recommendations: []any{},
		Tasks:           []any{},
		Documentation:   map[string]any{},
		Metrics:         map[string]any{},
		Results:         map[string]any{},
	}
}

// IsEmpty reports whether no field carries content.
func (d Data) IsEmpty() bool {
	return len(d.Summary) == 0 && len(d.Issues) == 0 && len(d.Recommendations) == 0 &&
		len(d.Tasks) == 0 && len(d.Documentation) == 0 && len(d.Metrics) == 0 && len(d.Results) == 0
}

// Normalize maps raw onto Data. raw may be a decoded JSON value, raw JSON bytes,
// a json.RawMessage or any value encoding/json can marshal.
func Normalize(raw any, category analysis.Type) (out Data) {
	out = Empty()
	defer func() {
		if r := recover(); r != nil {
			out = Empty()
		}
	}()

	root, ok := asMap(generic(raw))
	if !ok {
		return out
	}
	paths := fieldPaths(category)

	out.Summary = pickMap(root, paths("summary"))
	out.Issues = pickList(root, paths("issues"))
	out.Recommendations = pickList(root, paths("recommendations"))
	out.Tasks = pickList(root, paths("tasks"))
	out.Documentation = pickMap(root, paths("documentation"))
	out.Metrics = pickMap(root, paths("metrics"))
	out.Results = pickMap(root, paths("results"))
	return out
}

// NormalizeJSON decodes body and normalizes it. Invalid JSON yields Empty().
func NormalizeJSON(body []byte, category analysis.Type) Data {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Empty()
	}
	return Normalize(raw, category)
}

// fieldPaths returns, for a field f, the ordered access paths:
// data.f.data.f, data.f.f, data.f, data.<category>.f, f.
func fieldPaths(category analysis.Type) func(string) [][]string {
	catKeys := categoryKeys(category)
	return func(f string) [][]string {
		paths := [][]string{
			{"data", f, "data", f},
			{"data", f, f},
			{"data", f},
		}
		for _, k := range catKeys {
			paths = append(paths, []string{"data", k, f})
		}
		return append(paths, []string{f})
	}
}

func categoryKeys(category analysis.Type) []string {
	if category == "" {
		return nil
	}
	key := string(category)
	parts := strings.Split(key, "-")
	if len(parts) == 1 {
		return []string{key}
	}
	camel := parts[0]
	for _, p := range parts[1:] {
		if p != "" {
			camel += strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return []string{key, camel, strings.Join(parts, "_")}
}

func pickMap(root map[string]any, paths [][]string) map[string]any {
	for _, p := range paths {
		if m, ok := asMap(lookup(root, p)); ok {
			return m
		}
	}
	return map[string]any{}
}

func pickList(root map[string]any, paths [][]string) []any {
	for _, p := range paths {
		if l, ok := lookup(root, p).([]any); ok && l != nil {
			return l
		}
	}
	return []any{}
}

func lookup(root map[string]any, path []string) any {
	var cur any = root
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// generic converts raw into the shapes produced by decoding JSON into an any.
func generic(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		return v
	case []byte:
		return decode(v)
	case json.RawMessage:
		return decode(v)
	case string:
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return decode(b)
	}
}

func decode(b []byte) any {
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
