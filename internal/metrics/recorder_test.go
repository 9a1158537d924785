package metrics

import (
	"sync"
	"time"
)

// testRecorder counts calls; used to verify the Recorder contract compiles against fakes.
type testRecorder struct {
	mu          sync.Mutex
	hits        map[string]int
	misses      map[string]int
	transitions map[string]int
	refreshes   map[string]int
}

var _ Recorder = (*testRecorder)(nil)

func newTestRecorder() *testRecorder {
	return &testRecorder{hits: map[string]int{}, misses: map[string]int{}, transitions: map[string]int{}, refreshes: map[string]int{}}
}

func (t *testRecorder) IncCacheHit(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hits[kind]++
}

func (t *testRecorder) IncCacheMiss(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.misses[kind]++
}
func (t *testRecorder) ObserveFetchDuration(string, time.Duration, ResultLabel) {}
func (t *testRecorder) IncFetchRetry(string)                                   {}
func (t *testRecorder) IncJobTransition(analysisType, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transitions[analysisType+"/"+status]++
}
func (t *testRecorder) SetActiveJobs(int) {}
func (t *testRecorder) IncRefresh(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshes[reason]++
}
func (t *testRecorder) IncEvent(string, bool) {}
