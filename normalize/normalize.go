// Package normalize implements the single ingress point for turning
// heterogeneous frame output into canonical domain.Finding records.
// Direct construction of a domain.Finding from unchecked input is
// forbidden anywhere else in the module.
package normalize

import (
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/oriys/wardencore/domain"
)

// MaxMessageBytes is the UTF-8-safe truncation boundary for a
// Finding.Message.
const MaxMessageBytes = 2 * 1024

// MaxFindingsPerFrame caps how many findings one frame invocation may
// contribute, defending against memory bombs.
const MaxFindingsPerFrame = 1000

// UnknownLocation is substituted for any empty or whitespace-only
// location.
const UnknownLocation = "unknown:0"

// RawFinding is the loosely-typed shape a frame may return instead of a
// fully-formed domain.Finding — e.g. a manifest frame's JSON output, or
// a hand-built map from an older frame implementation.
type RawFinding struct {
	ID              string
	FrameID         string
	Severity        string
	Message         string
	Location        string
	CodeSnippet     string
	Suggestion      string
	Detail          string
	IsBlockerSource bool
	EscapeForPrompt bool
}

// Result bundles the normalized finding with any advisory the
// normalization step produced, so callers can surface it on
// PipelineResult.Advisories without a second pass over the input.
type Result struct {
	Finding    domain.Finding
	Advisories []string
}

// Normalize converts one RawFinding into a canonical domain.Finding,
// assigning a fresh ID from (frameID, sequentialIndex) when raw.ID is
// empty. index must be the finding's position within its frame's
// output, used only for synthetic ID generation.
func Normalize(raw RawFinding, index int) Result {
	var advisories []string

	sev, ok := domain.NormalizeSeverity(raw.Severity)
	if !ok {
		advisories = append(advisories, "severity_defaulted_to_low: "+raw.Severity)
	}

	message := truncateUTF8(raw.Message, MaxMessageBytes)
	if raw.EscapeForPrompt {
		message = html.EscapeString(message)
	}

	location := strings.TrimSpace(raw.Location)
	if location == "" {
		location = UnknownLocation
	}

	id := raw.ID
	if id == "" {
		id = raw.FrameID + ":" + strconv.Itoa(index)
	}

	finding := domain.Finding{
		ID:              id,
		FrameID:         raw.FrameID,
		Severity:        sev,
		Message:         message,
		Location:        location,
		CodeSnippet:     truncateUTF8(raw.CodeSnippet, 1024),
		Suggestion:      raw.Suggestion,
		Detail:          raw.Detail,
		IsBlockerSource: raw.IsBlockerSource,
	}

	return Result{Finding: finding, Advisories: advisories}
}

// NormalizeBatch normalizes a frame's whole findings list, enforcing
// MaxFindingsPerFrame. Excess findings are dropped and an advisory is
// appended describing the truncation.
func NormalizeBatch(frameID string, raw []RawFinding) ([]domain.Finding, []string) {
	var advisories []string

	if len(raw) > MaxFindingsPerFrame {
		advisories = append(advisories, "findings_truncated: frame "+frameID+" reported "+strconv.Itoa(len(raw))+" findings, capped at "+strconv.Itoa(MaxFindingsPerFrame))
		raw = raw[:MaxFindingsPerFrame]
	}

	findings := make([]domain.Finding, 0, len(raw))
	for i, r := range raw {
		if r.FrameID == "" {
			r.FrameID = frameID
		}
		res := Normalize(r, i)
		findings = append(findings, res.Finding)
		advisories = append(advisories, res.Advisories...)
	}
	return findings, advisories
}

// truncateUTF8 truncates s to at most n bytes without splitting a
// multi-byte rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	b := s[:n]
	for len(b) > 0 && !utf8.ValidString(b) {
		b = b[:len(b)-1]
	}
	return b
}

