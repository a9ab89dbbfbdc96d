// Package capability defines the narrow collaborator interfaces the
// pipeline core consumes but does not implement: AST parsing, LLM
// access, VCS diffing, baseline storage, report emission, and
// filesystem access. Production implementations live outside this
// module; tests supply small in-memory fakes.
package capability

import (
	"context"
	"errors"
)

// ErrStreamingUnsupported is returned by LLMClient.Stream when the
// underlying provider has no streaming mode.
var ErrStreamingUnsupported = errors.New("streaming not supported by this provider")

// AST is an opaque parse result handed back to whichever frame asked
// for it; the core never inspects its shape.
type AST any

// ASTProvider parses file content into a language-specific AST, used by
// the Analysis phase for quality metrics.
type ASTProvider interface {
	Parse(ctx context.Context, content []byte, language string) (AST, error)
}

// CompleteOption configures one LLMClient.Complete call.
type CompleteOption func(*CompleteOptions)

// CompleteOptions collects the optional parameters a caller can set via
// CompleteOption functions.
type CompleteOptions struct {
	Model string
}

// WithModel selects a specific model for one Complete call.
func WithModel(model string) CompleteOption {
	return func(o *CompleteOptions) { o.Model = model }
}

// Response is a single non-streaming completion result.
type Response struct {
	Text string
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	Text     string
	Terminal bool
}

// LLMClient is the capability the verification helper (C7) consumes.
// Implementations live outside this module; the pipeline only ever
// calls Complete/Stream with already-sanitized, budgeted prompts.
type LLMClient interface {
	Complete(ctx context.Context, prompt, system string, opts ...CompleteOption) (Response, error)
	// Stream returns nil, ErrStreamingUnsupported when the underlying
	// provider has no streaming mode; the helper falls back to Complete.
	Stream(ctx context.Context, prompt, system string, opts ...CompleteOption) (<-chan Chunk, error)
}

// VCS resolves the set of paths changed between two refs, used by the
// incremental selector (C8).
type VCS interface {
	ChangedFiles(ctx context.Context, base, head string) ([]string, error)
}

// BaselineStore persists and retrieves an opaque baseline blob. The
// core treats the blob as uninterpreted bytes.
type BaselineStore interface {
	Load(ctx context.Context, path string) (data []byte, found bool, err error)
	Store(ctx context.Context, path string, data []byte) error
}

// ReportEmitter renders a PipelineResult into a report format (SARIF,
// JSON, JUnit, ...). The core never calls this itself; it is surfaced
// for the CLI/server front-end.
type ReportEmitter interface {
	Emit(result any, format string) ([]byte, error)
}

// FileSystem abstracts reading file content and enumerating a tree,
// so the core never touches os directly outside of test fixtures.
type FileSystem interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Walk(ctx context.Context, root string, ignoreGlobs []string) ([]string, error)
}

// Bundle groups every capability the pipeline may consume for one
// execution. Every field is optional; a nil field means "unavailable",
// and the pipeline degrades the dependent phase gracefully instead of
// failing.
type Bundle struct {
	AST      ASTProvider
	LLM      LLMClient
	VCS      VCS
	Baseline BaselineStore
	Reporter ReportEmitter
	FS       FileSystem
}
