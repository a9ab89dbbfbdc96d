package llmverify

import (
	"strconv"
	"strings"
)

// DefaultTokenBudget is the default content budget, in estimated
// tokens, for one verification call.
const DefaultTokenBudget = 3000

// charsPerToken is the rough heuristic used to convert a token budget
// into a character budget: good enough for truncation purposes, not
// for billing.
const charsPerToken = 4

// headLines and tailLines are how much of the file is kept verbatim
// around a compressed middle, preserving locality for most rule
// categories (most findings reference either top-level declarations or
// a specific nearby line).
const (
	headLines = 50
	tailLines = 20
)

// Budget truncates content to fit within tokenBudget estimated tokens,
// preserving the first headLines and last tailLines lines of code and
// collapsing everything in between into a single marker line.
func Budget(content string, tokenBudget int) string {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	charBudget := tokenBudget * charsPerToken
	if len(content) <= charBudget {
		return content
	}

	lines := strings.Split(content, "\n")
	if len(lines) <= headLines+tailLines {
		// Too few lines to usefully split; fall back to a flat
		// character truncation from the front.
		return content[:charBudget]
	}

	head := lines[:headLines]
	tail := lines[len(lines)-tailLines:]
	omitted := len(lines) - headLines - tailLines

	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))
	b.WriteString("\n... (")
	b.WriteString(strconv.Itoa(omitted))
	b.WriteString(" lines omitted) ...\n")
	b.WriteString(strings.Join(tail, "\n"))

	out := b.String()
	if len(out) > charBudget {
		out = out[:charBudget]
	}
	return out
}
