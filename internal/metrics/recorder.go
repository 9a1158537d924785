package metrics

import "time"

// ResultLabel enumerates fetch result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultCached  ResultLabel = "cached"
)

// Recorder defines observability hooks for cache, fetch and job metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil receivers
// when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	IncCacheHit(kind string)
	IncCacheMiss(kind string)
	ObserveFetchDuration(kind string, d time.Duration, result ResultLabel)
	IncFetchRetry(kind string)
	IncJobTransition(analysisType, status string)
	SetActiveJobs(n int)
	IncRefresh(reason string)
	IncEvent(kind string, applied bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheHit(string)                                     {}
func (NoopRecorder) IncCacheMiss(string)                                    {}
func (NoopRecorder) ObserveFetchDuration(string, time.Duration, ResultLabel) {}
func (NoopRecorder) IncFetchRetry(string)                                   {}
func (NoopRecorder) IncJobTransition(string, string)                        {}
func (NoopRecorder) SetActiveJobs(int)                                      {}
func (NoopRecorder) IncRefresh(string)                                      {}
func (NoopRecorder) IncEvent(string, bool)                                  {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
