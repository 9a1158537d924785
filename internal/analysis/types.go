package analysis

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Type identifies one kind of analysis. It doubles as the display category key.
type Type string

const (
	TypeCodeQuality     Type = "code-quality"
	TypeSecurity        Type = "security"
	TypePerformance     Type = "performance"
	TypeArchitecture    Type = "architecture"
	TypeTechStack       Type = "tech-stack"
	TypeRecommendations Type = "recommendations"
)

var allTypes = []Type{
	TypeCodeQuality,
	TypeSecurity,
	TypePerformance,
	TypeArchitecture,
	TypeTechStack,
	TypeRecommendations,
}

// AllTypes returns every known analysis type in display order.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType maps a raw key onto a known Type. Unknown keys report ok=false;
// callers are expected to ignore them rather than fail.
func ParseType(raw string) (Type, bool) {
	key := Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-"))
	for _, t := range allTypes {
		if t == key {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	parsed, ok := ParseType(string(t))
	return ok && parsed == t
}

func (t Type) String() string { return string(t) }

// Label returns the human readable name, e.g. "Code Quality".
func (t Type) Label() string {
	// Casers are stateful and must not be shared across goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "-", " "))
}

// DataKind returns the cache kind the lazy loader for this category fetches.
func (t Type) DataKind() DataKind {
	switch t {
	case TypeCodeQuality, TypeSecurity, TypePerformance:
		return KindIssues
	case TypeArchitecture:
		return KindArchitecture
	case TypeTechStack:
		return KindTechStack
	case TypeRecommendations:
		return KindRecommendations
	default:
		return ""
	}
}

// JobStatus is the lifecycle state of a tracked analysis job.
type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status ends a job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the status blocks starting another job of the same type.
func (s JobStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// DataKind identifies a cached payload within a project.
type DataKind string

const (
	KindStatus          DataKind = "status"
	KindMetrics         DataKind = "metrics"
	KindHistory         DataKind = "history"
	KindTechStack       DataKind = "tech-stack"
	KindIssues          DataKind = "issues"
	KindArchitecture    DataKind = "architecture"
	KindRecommendations DataKind = "recommendations"
)

// ChartKind returns the cache kind for a chart payload.
func ChartKind(kind string) DataKind {
	return DataKind("charts:" + kind)
}

// InitialBatch lists the kinds fetched together on page load.
func InitialBatch() []DataKind {
	return []DataKind{KindStatus, KindMetrics, KindHistory, KindTechStack}
}

// AnalysisJob is the client-side record of one backend analysis run.
type AnalysisJob struct {
	Type        Type      `json:"analysisType"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	ID          string    `json:"id,omitempty"`
	Error       string    `json:"error,omitempty"`
	CurrentStep string    `json:"currentStep,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// View returns the upward-exposed projection of the job.
func (j AnalysisJob) View() JobStatusView {
	return JobStatusView{Status: j.Status, Progress: j.Progress}
}

// JobStatusView is the per-type status exposed to the display layer.
type JobStatusView struct {
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
}

// IdleView is reported for types with no tracked job.
var IdleView = JobStatusView{Status: StatusIdle}

// ClampProgress bounds p to 0..100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
