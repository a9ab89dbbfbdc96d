// Package llmverify consolidates every LLM interaction the pipeline
// makes so that a single place is responsible for sanitizing prompts,
// bounding content to a token budget, retrying transiently-failed
// calls, and parsing responses defensively. Frames and the orchestrator
// never call an LLMClient directly.
package llmverify

import (
	"context"
	"fmt"

	"github.com/oriys/wardencore/capability"
	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/metrics"
)

const (
	// findingsVerdictConfirmed keeps a finding as-is.
	findingsVerdictConfirmed = "confirmed"
	// findingsVerdictFalsePositive drops a finding entirely.
	findingsVerdictFalsePositive = "false_positive"
	// findingsVerdictUncertain keeps a finding, tagged for the caller.
	findingsVerdictUncertain = "uncertain"
)

// UncertainMetadataKey is set on a Finding's Metadata when the LLM
// marked it "uncertain" rather than dropping or confirming it.
const UncertainMetadataKey = "llm_verdict"

// Helper is the LLM verification helper (C7). It is constructed once
// per pipeline execution so its circuit breaker state never leaks
// between unrelated runs.
type Helper struct {
	client      capability.LLMClient
	tokenBudget int
	breaker     *breaker
	metrics     *metrics.Metrics
}

// Option configures a Helper at construction time.
type Option func(*Helper)

// WithTokenBudget overrides DefaultTokenBudget.
func WithTokenBudget(n int) Option {
	return func(h *Helper) {
		if n > 0 {
			h.tokenBudget = n
		}
	}
}

// WithMetrics attaches a metrics recorder; nil (the default) disables
// llm_calls_total/llm_circuit_state recording without affecting
// verification semantics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Helper) { h.metrics = m }
}

// New constructs a Helper. client may be nil, in which case Verify
// returns the findings unchanged with an llm_unavailable advisory and
// Explain returns ErrUnavailable. The orchestrator does not call New at
// all when no LLMClient capability is present.
func New(client capability.LLMClient, opts ...Option) *Helper {
	h := &Helper{
		client:      client,
		tokenBudget: DefaultTokenBudget,
		breaker:     newBreaker(defaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ErrUnavailable is returned when no LLMClient capability was supplied,
// or the breaker has tripped from repeated failures.
var ErrUnavailable = fmt.Errorf("llm capability unavailable")

// VerifyResult reports the annotated findings plus any advisory the
// call produced (degradation, parse failure, breaker trip, ...).
type VerifyResult struct {
	Findings  []domain.Finding
	Advisory  string
}

// Verify sends findings plus a bounded context slice of file to the
// configured LLMClient and parses a verdict for each. Findings marked
// false_positive are dropped; uncertain ones are retained with
// UncertainMetadataKey set in their Metadata. On any failure to reach
// or parse a usable response, Verify degrades gracefully: it returns
// the original findings unannotated plus an advisory, never an error
// that would abort the pipeline.
func (h *Helper) Verify(ctx context.Context, findings []domain.Finding, file domain.CodeFile) VerifyResult {
	if h.client == nil {
		h.recordLLMCall("unavailable")
		return VerifyResult{Findings: findings, Advisory: "llm_unavailable: no capability configured"}
	}
	if len(findings) == 0 {
		return VerifyResult{Findings: findings}
	}
	if !h.breaker.allow() {
		h.syncCircuitState()
		h.recordLLMCall("breaker_open")
		return VerifyResult{Findings: findings, Advisory: "llm_unavailable: breaker open"}
	}
	h.syncCircuitState()

	excerpt := Budget(string(file.Content), h.tokenBudget)
	prompt := buildUserPrompt(findings, excerpt, file.Language, file.Path)

	text, err := h.complete(ctx, prompt)
	if err != nil {
		h.breaker.recordFailure()
		h.syncCircuitState()
		h.recordLLMCall("retry_exhausted")
		return VerifyResult{Findings: findings, Advisory: fmt.Sprintf("llm_call_failed: %v", err)}
	}
	h.breaker.recordSuccess()
	h.syncCircuitState()
	h.recordLLMCall("success")

	verdicts, ok := parseVerdicts(text)
	if !ok {
		return VerifyResult{Findings: findings, Advisory: "llm_response_unparseable: findings left unannotated"}
	}

	byID := make(map[string]verdict, len(verdicts))
	for _, v := range verdicts {
		byID[v.ID] = v
	}

	out := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		v, ok := byID[f.ID]
		if !ok {
			out = append(out, f)
			continue
		}
		switch v.Verdict {
		case findingsVerdictFalsePositive:
			continue
		case findingsVerdictUncertain:
			annotated := f
			annotated.Metadata = mergeMetadata(f.Metadata, UncertainMetadataKey, v.Reason)
			out = append(out, annotated)
		default: // confirmed, or an unrecognized verdict string
			out = append(out, f)
		}
	}
	return VerifyResult{Findings: out}
}

// Explain produces a fix suggestion for one finding, used by the
// optional Fortification phase.
func (h *Helper) Explain(ctx context.Context, finding domain.Finding, file domain.CodeFile) (string, error) {
	if h.client == nil {
		h.recordLLMCall("unavailable")
		return "", ErrUnavailable
	}
	if !h.breaker.allow() {
		h.syncCircuitState()
		h.recordLLMCall("breaker_open")
		return "", ErrUnavailable
	}
	h.syncCircuitState()

	excerpt := Budget(string(file.Content), h.tokenBudget)
	prompt := fmt.Sprintf("File: %s\n\nCode:\n```\n%s\n```\n\nFinding: %s at %s\n\nSuggest a concise fix.",
		sanitizeField(file.Path), excerpt, sanitizeField(finding.Message), sanitizeField(finding.Location))

	text, err := h.complete(ctx, prompt)
	if err != nil {
		h.breaker.recordFailure()
		h.syncCircuitState()
		h.recordLLMCall("retry_exhausted")
		return "", err
	}
	h.breaker.recordSuccess()
	h.syncCircuitState()
	h.recordLLMCall("success")
	return text, nil
}

// recordLLMCall reports one call's outcome through the attached
// metrics recorder; a nil recorder (the default) makes this a no-op.
func (h *Helper) recordLLMCall(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLLMCall(outcome)
	}
}

// syncCircuitState reports the breaker's current state, called after
// every allow/recordSuccess/recordFailure so a transition is always
// observed even though the breaker itself has no hooks of its own.
func (h *Helper) syncCircuitState() {
	if h.metrics != nil {
		h.metrics.SetLLMCircuitState(h.breaker.stateValue())
	}
}

// complete tries streaming first when the client supports it,
// accumulating chunks and tolerating malformed ones; when the client
// does not stream or the stream fails, it falls back to the
// non-streaming path with the same prompt, where completeWithRetry
// retries a retryable error once before giving up.
func (h *Helper) complete(ctx context.Context, prompt string) (string, error) {
	if text, err := h.streamComplete(ctx, prompt); err == nil {
		return text, nil
	}

	return completeWithRetry(ctx, func(ctx context.Context) (string, error) {
		resp, err := h.client.Complete(ctx, prompt, systemPrompt)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
}

func (h *Helper) streamComplete(ctx context.Context, prompt string) (string, error) {
	chunks, err := h.client.Stream(ctx, prompt, systemPrompt)
	if err != nil {
		return "", err // provider has no streaming mode, or refused the stream
	}

	var text string
	for chunk := range chunks {
		text += chunk.Text
		if chunk.Terminal {
			return text, nil
		}
	}
	// Channel closed without a terminal marker: treat as a mid-stream
	// failure so the caller falls back to a non-streaming retry.
	return "", fmt.Errorf("llm stream ended without terminal marker")
}

func mergeMetadata(existing map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(existing)+1)
	for k, v := range existing {
		out[k] = v
	}
	out[key] = value
	return out
}
