package aggregate

import (
	"testing"

	"github.com/oriys/wardencore/domain"
)

// TestAggregateDedupAcrossSeverities locks in the resolution of the
// dedup-key-vs-severity ambiguity: two frames reporting the same issue
// at the same location with the same message prefix but different
// severities must collapse to a single finding, keeping the more
// severe one.
func TestAggregateDedupAcrossSeverities(t *testing.T) {
	frameResults := map[string]domain.FrameResult{
		"security": {
			Findings: []domain.Finding{
				{FrameID: "security", Severity: domain.SeverityCritical, Message: "hardcoded secret detected in source", Location: "x.py:5"},
			},
		},
		"quality": {
			Findings: []domain.Finding{
				{FrameID: "quality", Severity: domain.SeverityHigh, Message: "hardcoded secret detected in source", Location: "x.py:5"},
			},
		},
	}

	out, _ := Aggregate(frameResults)
	if len(out) != 1 {
		t.Fatalf("expected exactly one finding after dedup, got %d: %+v", len(out), out)
	}
	if out[0].Severity != domain.SeverityCritical {
		t.Fatalf("expected surviving finding to keep the higher severity, got %s", out[0].Severity)
	}
}

func TestAggregateTieKeepsFirstSeen(t *testing.T) {
	frameResults := map[string]domain.FrameResult{
		"a": {Findings: []domain.Finding{{FrameID: "a", Severity: domain.SeverityMedium, Message: "same issue", Location: "y.go:1"}}},
		"b": {Findings: []domain.Finding{{FrameID: "b", Severity: domain.SeverityMedium, Message: "same issue", Location: "y.go:1"}}},
	}
	out, _ := Aggregate(frameResults)
	if len(out) != 1 {
		t.Fatalf("expected one finding, got %d", len(out))
	}
	if out[0].FrameID != "a" {
		t.Fatalf("expected frame ids sorted lexically so 'a' wins the tie, got %q", out[0].FrameID)
	}
}

// TestAggregateUnlocalizedFindingsNeverCollide: findings with no
// location must never dedup against each other even when identical.
func TestAggregateUnlocalizedFindingsNeverCollide(t *testing.T) {
	frameResults := map[string]domain.FrameResult{
		"a": {Findings: []domain.Finding{
			{FrameID: "a", Severity: domain.SeverityLow, Message: "something vague", Location: ""},
			{FrameID: "a", Severity: domain.SeverityLow, Message: "something vague", Location: ""},
		}},
	}
	out, _ := Aggregate(frameResults)
	if len(out) != 2 {
		t.Fatalf("expected unlocalized findings to never collide, got %d", len(out))
	}
}

func TestAggregateDistinctLocationsNeverCollide(t *testing.T) {
	frameResults := map[string]domain.FrameResult{
		"a": {Findings: []domain.Finding{
			{FrameID: "a", Severity: domain.SeverityLow, Message: "issue", Location: "a.go:1"},
			{FrameID: "a", Severity: domain.SeverityLow, Message: "issue", Location: "a.go:2"},
		}},
	}
	out, _ := Aggregate(frameResults)
	if len(out) != 2 {
		t.Fatalf("expected distinct locations to stay separate, got %d", len(out))
	}
}

func TestAggregateDeterministicAcrossMapOrder(t *testing.T) {
	frameResults := map[string]domain.FrameResult{
		"zzz": {Findings: []domain.Finding{{FrameID: "zzz", Severity: domain.SeverityLow, Message: "m1", Location: "f.go:1"}}},
		"aaa": {Findings: []domain.Finding{{FrameID: "aaa", Severity: domain.SeverityLow, Message: "m2", Location: "f.go:2"}}},
	}
	out1, _ := Aggregate(frameResults)
	out2, _ := Aggregate(frameResults)
	if len(out1) != len(out2) {
		t.Fatalf("aggregate should be deterministic across calls")
	}
	for i := range out1 {
		if out1[i].FrameID != out2[i].FrameID {
			t.Fatalf("order mismatch at index %d: %q vs %q", i, out1[i].FrameID, out2[i].FrameID)
		}
	}
	if out1[0].FrameID != "aaa" {
		t.Fatalf("expected frame ids processed in sorted order, got %q first", out1[0].FrameID)
	}
}

func TestBuildMetricsCountsPreDedupIssuesByFrame(t *testing.T) {
	frameResults := map[string]domain.FrameResult{
		"security": {IssuesFound: 3, DurationMS: 10},
		"quality":  {IssuesFound: 1, DurationMS: 5},
	}
	dedup := []domain.Finding{
		{Severity: domain.SeverityCritical},
		{Severity: domain.SeverityCritical},
		{Severity: domain.SeverityLow},
	}
	m := BuildMetrics(dedup, frameResults)
	if m.TotalFindings != 3 {
		t.Fatalf("expected TotalFindings=3, got %d", m.TotalFindings)
	}
	if m.FindingsBySeverity[domain.SeverityCritical] != 2 {
		t.Fatalf("expected 2 critical findings, got %d", m.FindingsBySeverity[domain.SeverityCritical])
	}
	if m.FindingsByFrame["security"] != 3 || m.FindingsByFrame["quality"] != 1 {
		t.Fatalf("expected per-frame issue counts to reflect raw IssuesFound, got %+v", m.FindingsByFrame)
	}
	if m.TotalDurationMS != 15 {
		t.Fatalf("expected summed duration 15, got %d", m.TotalDurationMS)
	}
	if m.FramesExecuted != 2 {
		t.Fatalf("expected FramesExecuted=2, got %d", m.FramesExecuted)
	}
}
