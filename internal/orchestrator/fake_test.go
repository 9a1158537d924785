package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
)

// fakeRepo serves canned bodies per endpoint and counts calls.
type fakeRepo struct {
	mu        sync.Mutex
	bodies    map[string]string
	failures  map[string]error
	calls     map[string]int
	gates     map[string]chan struct{}
	startRes  analysis.MutationResult
	startErr  error
	started   []analysis.Type
	cancelled []string
	retried   []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bodies: map[string]string{
			"status":          `{"analyses":[]}`,
			"metrics":         `{"data":{"metrics":{"score":80}}}`,
			"history":         `[]`,
			"tech-stack":      `{"data":{"summary":{"languages":["go"]}}}`,
			"issues":          `{"data":{"security":{"issues":[{"id":1}]},"codeQuality":{"issues":[{"id":2}]}}}`,
			"architecture":    `{"data":{"summary":{"layers":3}}}`,
			"recommendations": `{"data":{"recommendations":[{"title":"x"}]}}`,
		},
		failures: map[string]error{},
		calls:    map[string]int{},
		gates:    map[string]chan struct{}{},
		startRes: analysis.MutationResult{Success: true},
	}
}

func (f *fakeRepo) set(endpoint, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[endpoint] = body
}

func (f *fakeRepo) fail(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, endpoint)
		return
	}
	f.failures[endpoint] = err
}

// gate blocks requests to endpoint until the returned function is called.
func (f *fakeRepo) gate(endpoint string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[endpoint] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeRepo) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func (f *fakeRepo) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[endpoint]++
	gate := f.gates[endpoint]
	body, ok := f.bodies[endpoint]
	err := f.failures[endpoint]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		body = `{}`
	}
	return json.RawMessage(body), nil
}

func (f *fakeRepo) GetStatus(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "status")
}

func (f *fakeRepo) GetMetrics(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "metrics")
}

func (f *fakeRepo) GetHistory(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "history")
}

func (f *fakeRepo) GetTechStack(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "tech-stack")
}

func (f *fakeRepo) GetIssues(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "issues")
}

func (f *fakeRepo) GetArchitecture(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "architecture")
}

func (f *fakeRepo) GetRecommendations(ctx context.Context, _ string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "recommendations")
}

func (f *fakeRepo) GetCharts(ctx context.Context, _ string, kind string, _ analysis.FetchOptions) (json.RawMessage, error) {
	return f.get(ctx, "charts/"+kind)
}

func (f *fakeRepo) StartAnalysis(_ context.Context, _ string, t analysis.Type) (analysis.MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, t)
	return f.startRes, f.startErr
}

func (f *fakeRepo) CancelStep(_ context.Context, _ string, stepID string) (analysis.MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, stepID)
	return analysis.MutationResult{Success: true}, nil
}

func (f *fakeRepo) RetryStep(_ context.Context, _ string, stepID string) (analysis.MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, stepID)
	return analysis.MutationResult{Success: true}, nil
}

func (f *fakeRepo) startedTypes() []analysis.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analysis.Type(nil), f.started...)
}

func serverError() error {
	return derrors.NetworkError("analysis API error: 500 Internal Server Error").WithContext("code", 500).Build()
}

func badRequest() error {
	return derrors.APIError("analysis API error: 400 Bad Request").WithContext("code", 400).Build()
}

func historyAt(ts time.Time) string {
	return fmt.Sprintf(`{"data":{"history":[{"timestamp":%q}]}}`, ts.UTC().Format(time.RFC3339))
}
