package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "analysisview"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	cacheLookups   *prom.CounterVec
	fetchDuration  *prom.HistogramVec
	fetchRetries   *prom.CounterVec
	jobTransitions *prom.CounterVec
	activeJobs     prom.Gauge
	refreshes      *prom.CounterVec
	events         *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by data kind and outcome",
		}, []string{"kind", "outcome"})
		pr.fetchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of repository fetches",
			Buckets:   prom.DefBuckets,
		}, []string{"kind", "result"})
		pr.fetchRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Repository fetch retries after transient failures",
		}, []string{"kind"})
		pr.jobTransitions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Applied job state transitions by analysis type and status",
		}, []string{"analysis_type", "status"})
		pr.activeJobs = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Tracked jobs in pending or running state",
		})
		pr.refreshes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Forced refreshes by trigger",
		}, []string{"reason"})
		pr.events = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Received push events by kind and whether they changed state",
		}, []string{"kind", "applied"})
		reg.MustRegister(pr.cacheLookups, pr.fetchDuration, pr.fetchRetries, pr.jobTransitions, pr.activeJobs, pr.refreshes, pr.events)
	})
	return pr
}

func (p *PrometheusRecorder) IncCacheHit(kind string) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(kind, "hit").Inc()
}

func (p *PrometheusRecorder) IncCacheMiss(kind string) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues(kind, "miss").Inc()
}

func (p *PrometheusRecorder) ObserveFetchDuration(kind string, d time.Duration, result ResultLabel) {
	if p == nil || p.fetchDuration == nil {
		return
	}
	p.fetchDuration.WithLabelValues(kind, string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFetchRetry(kind string) {
	if p == nil || p.fetchRetries == nil {
		return
	}
	p.fetchRetries.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncJobTransition(analysisType, status string) {
	if p == nil || p.jobTransitions == nil {
		return
	}
	p.jobTransitions.WithLabelValues(analysisType, status).Inc()
}

func (p *PrometheusRecorder) SetActiveJobs(n int) {
	if p == nil || p.activeJobs == nil {
		return
	}
	p.activeJobs.Set(float64(n))
}

func (p *PrometheusRecorder) IncRefresh(reason string) {
	if p == nil || p.refreshes == nil {
		return
	}
	p.refreshes.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncEvent(kind string, applied bool) {
	if p == nil || p.events == nil {
		return
	}
	p.events.WithLabelValues(kind, strconv.FormatBool(applied)).Inc()
}
