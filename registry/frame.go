// Package registry discovers, validates, and serves the pluggable
// analyzer strategies ("frames") the orchestrator dispatches in the
// Validation phase. Conflict resolution between discovery sources is
// dynamic, mirroring how a dynamically-dispatched host language would
// resolve competing definitions, even though frames themselves are
// boxed behind a static Go interface.
package registry

import (
	"context"
	"fmt"

	"github.com/oriys/wardencore/domain"
)

// Metadata is the immutable descriptor every frame exposes, independent
// of its scope or implementation.
type Metadata struct {
	ID              string
	Name            string
	Description     string
	Category        domain.FrameCategory
	Priority        domain.FramePriority
	Scope           domain.FrameScope
	IsBlocker       bool
	Version         string
	Applicability   Applicability
	MinCoreVersion  string
	MaxCoreVersion  string
}

// Applicability declares which languages a frame can handle. Always, if
// set, makes the frame applicable regardless of language.
type Applicability struct {
	Languages []string
	Always    bool
}

// Matches reports whether the frame is applicable to the given
// language tag.
func (a Applicability) Matches(language string) bool {
	if a.Always {
		return true
	}
	for _, l := range a.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// FrameContext is the read-only view a frame receives for one
// invocation. The runner (C6) is the only code that constructs one.
type FrameContext struct {
	Ctx                 context.Context
	CodeFile            *domain.CodeFile   // set for file-scope frames
	CodeFiles           []domain.CodeFile  // set for repository-scope frames
	Characteristics     *domain.CodeCharacteristics
	MemoryContext       string
	PriorFindings       []domain.Finding
	ProjectIntelligence *ProjectIntelligence
	LLM                 LLMCapability
}

// LLMCapability is the narrow surface a frame may use; it is satisfied
// by the llmverify helper so frames never talk to capability.LLMClient
// directly (every LLM interaction goes through sanitization/budgeting).
type LLMCapability interface {
	Explain(ctx context.Context, finding domain.Finding, file domain.CodeFile) (string, error)
}

// ProjectIntelligence is optional cross-file context a frame may use.
// Shape is validated by the runner before injection; an invalid shape
// never reaches a frame.
type ProjectIntelligence struct {
	EntryPoints    []string
	AuthPatterns   []string
	CriticalSinks  []string
}

// Valid reports whether pi has its required fields populated. A nil
// receiver is invalid.
func (pi *ProjectIntelligence) Valid() bool {
	return pi != nil && pi.EntryPoints != nil && pi.AuthPatterns != nil && pi.CriticalSinks != nil
}

// Frame is the capability interface every analyzer strategy implements.
// Go has no sum type for the file-scope/repository-scope distinction,
// so it is carried as data (Metadata.Scope) rather than as two disjoint
// interfaces; FileScope/RepositoryScope below are thin assertions a
// caller can use to pick which field of FrameContext to populate.
type Frame interface {
	Metadata() Metadata
	Execute(fc FrameContext) (domain.FrameResult, error)
}

// FileScope reports whether f declares itself file-scoped.
func FileScope(f Frame) bool {
	return f.Metadata().Scope == domain.ScopeFile
}

// RepositoryScope reports whether f declares itself repository-scoped.
func RepositoryScope(f Frame) bool {
	return f.Metadata().Scope == domain.ScopeRepository
}

// ErrInvalidFrame is wrapped with a reason by Validate.
var ErrInvalidFrame = fmt.Errorf("invalid frame")

// Validate rejects frames missing required metadata, declaring an
// incompatible core version, or failing the Frame capability check.
// Rejection is never fatal to discovery; callers log and continue.
func Validate(f Frame, coreVersion string) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	md := f.Metadata()
	if md.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidFrame)
	}
	if md.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidFrame)
	}
	if md.Scope != domain.ScopeFile && md.Scope != domain.ScopeRepository {
		return fmt.Errorf("%w: invalid scope %q", ErrInvalidFrame, md.Scope)
	}
	if !versionCompatible(md.MinCoreVersion, md.MaxCoreVersion, coreVersion) {
		return fmt.Errorf("%w: core version %s outside [%s, %s]", ErrInvalidFrame, coreVersion, md.MinCoreVersion, md.MaxCoreVersion)
	}
	return nil
}

// versionCompatible does a permissive string-range check: empty bounds
// mean "no constraint". Versions are compared lexically, which is
// sufficient for the zero-padded semantic versions frames declare.
func versionCompatible(minV, maxV, coreV string) bool {
	if minV != "" && coreV < minV {
		return false
	}
	if maxV != "" && coreV > maxV {
		return false
	}
	return true
}
