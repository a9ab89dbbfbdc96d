// Package domain holds the value types shared by every stage of the
// validation pipeline: code snapshots, findings, frame results, and the
// aggregated pipeline result.
package domain

import "strings"

// Severity is a total order over finding severity. Comparisons are
// case-insensitive on textual input and always normalize to the
// canonical lower-case label.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank gives each canonical severity a sortable weight, higher
// is more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// NormalizeSeverity coerces arbitrary textual input to a canonical
// Severity via case-insensitive lookup. Unknown or empty input maps to
// SeverityLow; ok reports whether the input was recognized.
func NormalizeSeverity(raw string) (sev Severity, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch Severity(lower) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(lower), true
	default:
		return SeverityLow, false
	}
}

// Rank returns the sortable weight of s, treating any non-canonical
// value as SeverityLow.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityLow]
}

// MoreSevereThan reports whether s outranks other.
func (s Severity) MoreSevereThan(other Severity) bool {
	return s.Rank() > other.Rank()
}

// FramePriority orders frame execution and tie-breaking within a phase;
// critical-priority frames sort first.
type FramePriority string

const (
	PriorityCritical FramePriority = "critical"
	PriorityHigh     FramePriority = "high"
	PriorityMedium   FramePriority = "medium"
	PriorityLow      FramePriority = "low"
)

var priorityRank = map[FramePriority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityMedium:   1,
	PriorityLow:      0,
}

// Rank returns the sortable weight of p, treating any non-canonical
// value as PriorityLow.
func (p FramePriority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityLow]
}

// FrameCategory classifies what a frame checks for.
type FrameCategory string

const (
	CategorySecurity     FrameCategory = "security"
	CategoryQuality      FrameCategory = "quality"
	CategoryArchitecture FrameCategory = "architectural"
	CategoryResilience   FrameCategory = "resilience"
	CategorySpec         FrameCategory = "spec"
	CategoryCustom       FrameCategory = "custom"
)

// FrameScope distinguishes whether a frame processes one file at a time
// or the whole repository in a single invocation.
type FrameScope string

const (
	ScopeFile       FrameScope = "file"
	ScopeRepository FrameScope = "repository"
)

// FrameStatus is the outcome of one frame invocation.
type FrameStatus string

const (
	StatusPassed  FrameStatus = "passed"
	StatusFailed  FrameStatus = "failed"
	StatusWarning FrameStatus = "warning"
	StatusSkipped FrameStatus = "skipped"
	StatusError   FrameStatus = "error"
)

// PipelineStatus is the terminal status of a whole pipeline execution.
type PipelineStatus string

const (
	PipelineCompleted             PipelineStatus = "completed"
	PipelineCompletedWithFailures PipelineStatus = "completed_with_failures"
	PipelineFailed                PipelineStatus = "failed"
	PipelineTimedOut              PipelineStatus = "timed_out"
	PipelineCancelled             PipelineStatus = "cancelled"
)
