package domain

import "time"

// CodeFile is an immutable snapshot of one source file as seen by the
// pipeline. Content is read once by the incremental selector and shared
// read-only with every frame; nothing downstream may mutate it.
type CodeFile struct {
	Path        string // repo-relative, POSIX separators
	Content     []byte
	Language    string
	Size        int64
	ContentHash string
	IsBinary    bool

	// Prior-analysis metadata, populated by earlier phases. Zero values
	// mean "not yet computed".
	LineCount int
	ASTSummary string
}

// Finding is a single issue reported by a frame. Findings are value
// objects: once they pass through normalization and aggregation they
// are never mutated again.
type Finding struct {
	ID              string
	FrameID         string
	Severity        Severity
	Message         string
	Location        string
	CodeSnippet     string
	Suggestion      string
	Detail          string
	IsBlockerSource bool

	// Metadata carries annotations added after construction, e.g. the
	// LLM verification helper's "uncertain" tag. Never used for identity
	// or dedup keys.
	Metadata map[string]string
}

// FrameResult is the output of one frame invocation.
type FrameResult struct {
	FrameID     string
	FrameName   string
	Status      FrameStatus
	DurationMS  int64
	IssuesFound int
	IsBlocker   bool
	Findings    []Finding
	Metadata    map[string]string
}

// CodeCharacteristics is the per-file classification produced by the
// Classification phase and consumed by frames to gate expensive checks.
type CodeCharacteristics struct {
	HasAsyncOperations        bool
	HasDatabaseOperations     bool
	HasUserInput              bool
	HasAuthenticationLogic    bool
	HasCryptographicOperations bool
	ComplexityScore           int // 1-10
}

// PhaseSummary records one phase's outcome for PipelineResult.Phases.
type PhaseSummary struct {
	Phase      string
	Status     string
	DurationMS int64
	FramesRun  int
}

// Metrics aggregates counts and durations across the whole pipeline.
type Metrics struct {
	TotalFindings      int
	FindingsBySeverity map[Severity]int
	FindingsByFrame    map[string]int
	TotalDurationMS    int64
	PhaseDurationsMS   map[string]int64
	FramesExecuted     int
	FramesCached       int
}

// PipelineResult is the top-level output of a pipeline execution. Field
// order here is the order JSON/SARIF serializers upstream must preserve:
// scan_id, pipeline_id, status, started_at, ended_at, phases, findings,
// frame_results, metrics, advisories.
type PipelineResult struct {
	ScanID       string                 `json:"scan_id"`
	PipelineID   string                 `json:"pipeline_id"`
	Status       PipelineStatus         `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      time.Time              `json:"ended_at"`
	Phases       []PhaseSummary         `json:"phases"`
	Findings     []Finding              `json:"findings"`
	FrameResults map[string]FrameResult `json:"frame_results"`
	Metrics      Metrics                `json:"metrics"`
	Advisories   []string               `json:"advisories"`
}

// NewMetrics returns a Metrics with its maps initialized, avoiding nil
// map writes in the aggregator.
func NewMetrics() Metrics {
	return Metrics{
		FindingsBySeverity: make(map[Severity]int),
		FindingsByFrame:    make(map[string]int),
		PhaseDurationsMS:   make(map[string]int64),
	}
}
