// Package aggregate implements result aggregation: deduplicating
// findings across frames, ranking by severity, and producing the
// counts that populate PipelineResult.Metrics.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/normalize"
)

// dedupKey identifies findings that should collide. Empty locations
// never collide: each gets a synthetic running-index key instead of
// the real key, per the aggregator's "unlocalized findings do not
// collide" guarantee.
type dedupKey struct {
	location      string
	messagePrefix string
}

const messagePrefixLen = 64

// Aggregate deduplicates findings from every frame result, keeping the
// higher-severity finding on key collision (ties keep the first-seen
// one), and returns them in first-occurrence order among distinct keys.
// It also returns an advisories slice, which is always empty: the typed
// map input leaves no malformed entry to skip.
func Aggregate(frameResults map[string]domain.FrameResult) ([]domain.Finding, []string) {
	type slot struct {
		finding domain.Finding
		order   int
	}

	kept := make(map[any]*slot)
	var order []any
	var advisories []string
	noLocationIndex := 0

	// Sort frame ids first so aggregation is deterministic regardless of
	// map iteration order or concurrent completion order.
	frameIDs := make([]string, 0, len(frameResults))
	for id := range frameResults {
		frameIDs = append(frameIDs, id)
	}
	sort.Strings(frameIDs)

	for _, frameID := range frameIDs {
		fr := frameResults[frameID]
		for _, f := range fr.Findings {
			var key any
			if f.Location == "" || f.Location == normalize.UnknownLocation {
				key = fmt.Sprintf("no_location_%d", noLocationIndex)
				noLocationIndex++
			} else {
				key = dedupKey{
					location:      f.Location,
					messagePrefix: prefix(f.Message, messagePrefixLen),
				}
			}

			existing, ok := kept[key]
			if !ok {
				s := &slot{finding: f, order: len(order)}
				kept[key] = s
				order = append(order, key)
				continue
			}

			if f.Severity.MoreSevereThan(existing.finding.Severity) {
				existing.finding = f
			}
			// ties keep the first-seen finding: no-op.
		}
	}

	out := make([]domain.Finding, 0, len(order))
	for _, key := range order {
		out = append(out, kept[key].finding)
	}
	return out, advisories
}

// prefix returns the first n bytes of s, or s itself if shorter.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// BuildMetrics computes per-severity and per-frame counts from the
// deduplicated findings plus the raw per-frame results (issue counts
// are taken pre-dedup, from each FrameResult, since metrics report what
// frames actually found, not the deduplicated view).
func BuildMetrics(dedup []domain.Finding, frameResults map[string]domain.FrameResult) domain.Metrics {
	m := domain.NewMetrics()
	m.TotalFindings = len(dedup)
	for _, f := range dedup {
		m.FindingsBySeverity[f.Severity]++
	}
	for id, fr := range frameResults {
		m.FindingsByFrame[id] = fr.IssuesFound
		m.TotalDurationMS += fr.DurationMS
		m.FramesExecuted++
	}
	return m
}
