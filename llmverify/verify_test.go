package llmverify

import (
	"context"
	"fmt"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/oriys/wardencore/capability"
	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/metrics"
)

type fakeLLMClient struct {
	completeFn func(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (capability.Response, error)
	streamFn   func(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (<-chan capability.Chunk, error)
}

func (f fakeLLMClient) Complete(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (capability.Response, error) {
	return f.completeFn(ctx, prompt, system, opts...)
}

func (f fakeLLMClient) Stream(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (<-chan capability.Chunk, error) {
	if f.streamFn != nil {
		return f.streamFn(ctx, prompt, system, opts...)
	}
	return nil, capability.ErrStreamingUnsupported
}

func textResponder(text string) fakeLLMClient {
	return fakeLLMClient{
		completeFn: func(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (capability.Response, error) {
			return capability.Response{Text: text}, nil
		},
	}
}

func TestVerifyWithoutClientDegradesGracefully(t *testing.T) {
	h := New(nil)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{})
	if len(result.Findings) != 1 {
		t.Fatalf("expected original findings returned unannotated, got %+v", result.Findings)
	}
	if result.Advisory == "" {
		t.Fatal("expected an advisory when no LLM capability is configured")
	}
}

func TestVerifyEmptyFindingsShortCircuits(t *testing.T) {
	h := New(textResponder(`[]`))
	result := h.Verify(context.Background(), nil, domain.CodeFile{})
	if len(result.Findings) != 0 || result.Advisory != "" {
		t.Fatalf("expected a no-op result for empty findings, got %+v", result)
	}
}

func TestVerifyDropsFalsePositives(t *testing.T) {
	client := textResponder(`[{"id":"f1","verdict":"false_positive","reason":"not reachable"}]`)
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
	if len(result.Findings) != 0 {
		t.Fatalf("expected the false_positive finding dropped, got %+v", result.Findings)
	}
}

func TestVerifyTagsUncertainFindings(t *testing.T) {
	client := textResponder(`[{"id":"f1","verdict":"uncertain","reason":"hard to tell"}]`)
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
	if len(result.Findings) != 1 {
		t.Fatalf("expected the uncertain finding retained, got %+v", result.Findings)
	}
	if result.Findings[0].Metadata[UncertainMetadataKey] != "hard to tell" {
		t.Fatalf("expected uncertain metadata tagged, got %+v", result.Findings[0].Metadata)
	}
}

func TestVerifyKeepsConfirmedFindingsUnchanged(t *testing.T) {
	client := textResponder(`[{"id":"f1","verdict":"confirmed","reason":"yes"}]`)
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
	if len(result.Findings) != 1 || result.Findings[0].Metadata != nil {
		t.Fatalf("expected confirmed finding unchanged, got %+v", result.Findings)
	}
}

func TestVerifyDegradesOnUnparseableResponse(t *testing.T) {
	client := textResponder("not json at all")
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
	if len(result.Findings) != 1 || result.Advisory == "" {
		t.Fatalf("expected graceful degradation with an advisory on unparseable output, got %+v", result)
	}
}

func TestVerifyFindingMissingFromVerdictsIsKept(t *testing.T) {
	client := textResponder(`[{"id":"other","verdict":"confirmed","reason":"x"}]`)
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
	if len(result.Findings) != 1 || result.Findings[0].ID != "f1" {
		t.Fatalf("expected finding with no matching verdict kept as-is, got %+v", result.Findings)
	}
}

func TestExplainReturnsErrUnavailableWithoutClient(t *testing.T) {
	h := New(nil)
	_, err := h.Explain(context.Background(), domain.Finding{}, domain.CodeFile{})
	if err != ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestExplainReturnsSuggestionText(t *testing.T) {
	client := textResponder("use a parameterized query instead")
	h := New(client)
	text, err := h.Explain(context.Background(), domain.Finding{Message: "sql injection", Location: "a.go:1"}, domain.CodeFile{Content: []byte("code")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "use a parameterized query instead" {
		t.Fatalf("unexpected suggestion text: %q", text)
	}
}

func findMetricFamily(t *testing.T, m *metrics.Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not registered", name)
	return nil
}

func counterWithLabel(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestVerifySuccessRecordsMetrics(t *testing.T) {
	m := metrics.New(fmt.Sprintf("wardencore_test_verify_%d", 1))
	client := textResponder(`[{"id":"f1","verdict":"confirmed","reason":"x"}]`)
	h := New(client, WithMetrics(m))
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})

	calls := findMetricFamily(t, m, "wardencore_test_verify_1_llm_calls_total")
	if got := counterWithLabel(calls, "outcome", "success"); got != 1 {
		t.Fatalf("expected one success call recorded, got %v", got)
	}

	state := findMetricFamily(t, m, "wardencore_test_verify_1_llm_circuit_state")
	if len(state.GetMetric()) != 1 || state.GetMetric()[0].GetGauge().GetValue() != 0 {
		t.Fatalf("expected circuit state gauge at closed (0) after a success, got %+v", state)
	}
}

func TestVerifyWithoutClientRecordsUnavailableOutcome(t *testing.T) {
	m := metrics.New(fmt.Sprintf("wardencore_test_verify_%d", 2))
	h := New(nil, WithMetrics(m))
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	h.Verify(context.Background(), findings, domain.CodeFile{})

	calls := findMetricFamily(t, m, "wardencore_test_verify_2_llm_calls_total")
	if got := counterWithLabel(calls, "outcome", "unavailable"); got != 1 {
		t.Fatalf("expected one unavailable call recorded, got %v", got)
	}
}

func TestVerifyWithoutMetricsOptionDoesNotPanic(t *testing.T) {
	client := textResponder(`[{"id":"f1","verdict":"confirmed","reason":"x"}]`)
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
}

func TestStreamCompleteFallsBackWhenChannelClosesWithoutTerminal(t *testing.T) {
	calls := 0
	client := fakeLLMClient{
		streamFn: func(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (<-chan capability.Chunk, error) {
			ch := make(chan capability.Chunk, 1)
			ch <- capability.Chunk{Text: "partial"}
			close(ch)
			return ch, nil
		},
		completeFn: func(ctx context.Context, prompt, system string, opts ...capability.CompleteOption) (capability.Response, error) {
			calls++
			return capability.Response{Text: `[{"id":"f1","verdict":"confirmed","reason":"x"}]`}, nil
		},
	}
	h := New(client)
	findings := []domain.Finding{{ID: "f1", Message: "m", Location: "a.go:1"}}
	result := h.Verify(context.Background(), findings, domain.CodeFile{Content: []byte("code")})
	if calls != 1 {
		t.Fatalf("expected fallback to the non-streaming Complete call exactly once, got %d calls", calls)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("expected the confirmed finding retained after fallback, got %+v", result.Findings)
	}
}
