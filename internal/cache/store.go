// Package cache holds fetched analysis payloads in memory, keyed by project and data kind.
//
// Presence in the store means a payload is available without a network call.
// Freshness is deliberately not derived from CachedAt; callers evaluate it from the
// payload's own history timestamps.
package cache

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	"git.home.luguber.info/inful/analysisview/internal/metrics"
)

// Entry is one cached payload.
type Entry struct {
	Payload  any
	CachedAt time.Time
}

// Store is a project-scoped in-memory cache. The zero value is not usable; call New.
type Store struct {
	mu       sync.RWMutex
	projects map[string]map[analysis.DataKind]Entry
	now      func() time.Time
	recorder metrics.Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecorder sets the metrics recorder for hit/miss counters.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) { s.recorder = metrics.OrNoop(r) }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		projects: make(map[string]map[analysis.DataKind]Entry),
		now:      time.Now,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached payload, or nil and false when absent.
func (s *Store) Get(project string, kind analysis.DataKind) (any, bool) {
	e, ok := s.Entry(project, kind)
	if !ok {
		s.recorder.IncCacheMiss(string(kind))
		return nil, false
	}
	s.recorder.IncCacheHit(string(kind))
	return e.Payload, true
}

// Entry returns the full cache entry including its storage time.
func (s *Store) Entry(project string, kind analysis.DataKind) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.projects[project][kind]
	return e, ok
}

// Set stores payload, replacing any previous entry.
func (s *Store) Set(project string, kind analysis.DataKind, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds, ok := s.projects[project]
	if !ok {
		kinds = make(map[analysis.DataKind]Entry)
		s.projects[project] = kinds
	}
	kinds[kind] = Entry{Payload: payload, CachedAt: s.now()}
}

// Has reports whether an entry exists.
func (s *Store) Has(project string, kind analysis.DataKind) bool {
	_, ok := s.Entry(project, kind)
	return ok
}

// Invalidate removes one entry. Missing keys are ignored.
func (s *Store) Invalidate(project string, kind analysis.DataKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kinds, ok := s.projects[project]; ok {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(s.projects, project)
		}
	}
}

// InvalidateAll removes every entry of the project.
func (s *Store) InvalidateAll(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, project)
}

// Kinds returns the kinds currently cached for project.
func (s *Store) Kinds(project string) []analysis.DataKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]analysis.DataKind, 0, len(s.projects[project]))
	for k := range s.projects[project] {
		out = append(out, k)
	}
	return out
}
