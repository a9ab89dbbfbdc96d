package llmverify

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/runner"
)

// systemPrompt is static and stored with the helper; it is never
// interpolated with any caller-provided data.
const systemPrompt = `You are a code review verification assistant. You will be given a list of findings produced by static analysis frames and a bounded excerpt of the source file they refer to. For each finding, decide whether it is confirmed, a false_positive, or uncertain given the shown code. Respond with a JSON array only, one object per finding, each with the shape {"id": "<finding id>", "verdict": "confirmed|false_positive|uncertain", "reason": "<short reason>"}. Do not include any other text.`

// promptFinding is the sanitized shape of one finding as it appears in
// the user prompt: escaped message, truncated snippet, no internal
// metadata.
type promptFinding struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

// buildUserPrompt strips the frame runner's injection denylist phrases
// from each finding's severity, location and message (the message is
// HTML-escaped first) and from the path and language; a violation is
// sanitized in place, never treated as a reason to abort the call.
// Finding IDs and the file excerpt are interpolated as given.
func buildUserPrompt(findings []domain.Finding, fileExcerpt, language, path string) string {
	pf := make([]promptFinding, 0, len(findings))
	for _, f := range findings {
		pf = append(pf, promptFinding{
			ID:       f.ID,
			Severity: sanitizeField(string(f.Severity)),
			Location: sanitizeField(f.Location),
			Message:  sanitizeField(html.EscapeString(f.Message)),
		})
	}
	findingsJSON, _ := json.Marshal(pf)

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s (%s)\n\n", sanitizeField(path), sanitizeField(language))
	b.WriteString("Code:\n```\n")
	b.WriteString(fileExcerpt)
	b.WriteString("\n```\n\n")
	b.WriteString("Findings:\n")
	b.Write(findingsJSON)
	return b.String()
}

// sanitizeField strips any denylisted prompt-injection phrase found in
// s rather than aborting the call; a dropped phrase leaves the rest of
// the field intact so the reviewer's own context is not lost over an
// incidental match.
func sanitizeField(s string) string {
	lower := strings.ToLower(s)
	out := s
	for _, phrase := range runner.InjectionDenylist {
		for {
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				break
			}
			out = out[:idx] + out[idx+len(phrase):]
			lower = strings.ToLower(out)
		}
	}
	return out
}

// verdict is one entry of the parsed LLM response.
type verdict struct {
	ID     string `json:"id"`
	Verdict string `json:"verdict"`
	Reason string `json:"reason"`
}

// parseVerdicts extracts a JSON array of verdicts from raw, trying a
// fenced ```json block first, then any fenced block, then a raw
// top-level `[...]` scan. A response matching none of these yields a
// nil slice and ok=false; the caller returns every finding unannotated
// with an advisory rather than treating this as an error.
func parseVerdicts(raw string) (verdicts []verdict, ok bool) {
	candidates := []string{
		extractFence(raw, "```json"),
		extractFence(raw, "```"),
		extractBracketScan(raw),
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var v []verdict
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

func extractFence(raw, fenceOpen string) string {
	start := strings.Index(raw, fenceOpen)
	if start < 0 {
		return ""
	}
	rest := raw[start+len(fenceOpen):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func extractBracketScan(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}
