package runner

import (
	"html"
	"strings"

	"github.com/oriys/wardencore/domain"
)

// InjectionDenylist lists the prompt-injection phrases that
// prior-findings sanitization drops findings for and that the LLM
// verification helper strips from prompt fields. Exported
// so llmverify imports this exact list instead of maintaining a second
// copy that could drift from it.
var InjectionDenylist = []string{
	"ignore previous",
	"system:",
	"[system",
	"override",
	"<script>",
	"javascript:",
}

// ContainsInjectionPhrase reports whether s contains (case-insensitively)
// any denylisted prompt-injection phrase.
func ContainsInjectionPhrase(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range InjectionDenylist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

const (
	priorFindingMessageLimit  = 200
	priorFindingSeverityLimit = 20
)

// sanitizePriorFindings escapes and truncates each finding's message
// and severity before it may be injected into another frame's
// FrameContext, and drops any finding whose message matches the
// injection denylist. Only ID, FrameID, Message, Severity, and Location
// survive;
// a frame consuming prior findings for context has no business seeing
// a sibling frame's full code snippet or suggestion. dropped counts how
// many were dropped, for the caller to turn into an advisory.
func sanitizePriorFindings(findings []domain.Finding) (kept []domain.Finding, dropped int) {
	for _, f := range findings {
		if ContainsInjectionPhrase(f.Message) {
			dropped++
			continue
		}
		kept = append(kept, domain.Finding{
			ID:       f.ID,
			FrameID:  f.FrameID,
			Message:  truncate(html.EscapeString(f.Message), priorFindingMessageLimit),
			Severity: domain.Severity(truncate(string(f.Severity), priorFindingSeverityLimit)),
			Location: f.Location,
		})
	}
	return kept, dropped
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
