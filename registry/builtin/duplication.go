package builtin

import (
	"fmt"

	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/registry"
)

// DuplicationFrame is a repository-scope, non-blocker frame that flags
// files sharing an identical content hash. It exists mainly to give the
// repository-level cache (C9) something real to memoize.
type DuplicationFrame struct{}

// NewDuplicationFrame constructs the built-in duplication frame.
func NewDuplicationFrame() *DuplicationFrame { return &DuplicationFrame{} }

func (f *DuplicationFrame) Metadata() registry.Metadata {
	return registry.Metadata{
		ID:            "duplication",
		Name:          "Duplication",
		Description:   "Flags files with identical content hashes",
		Category:      domain.CategoryQuality,
		Priority:      domain.PriorityLow,
		Scope:         domain.ScopeRepository,
		IsBlocker:     false,
		Version:       "1.0.0",
		Applicability: registry.Applicability{Always: true},
	}
}

func (f *DuplicationFrame) Execute(fc registry.FrameContext) (domain.FrameResult, error) {
	byHash := make(map[string][]string)
	for _, file := range fc.CodeFiles {
		if file.ContentHash == "" {
			continue
		}
		byHash[file.ContentHash] = append(byHash[file.ContentHash], file.Path)
	}

	var findings []domain.Finding
	for hash, paths := range byHash {
		if len(paths) < 2 {
			continue
		}
		findings = append(findings, domain.Finding{
			FrameID:  "duplication",
			Severity: domain.SeverityLow,
			Message:  fmt.Sprintf("%d files share identical content (hash %s): %v", len(paths), hash, paths),
			Location: "unknown:0",
		})
	}

	status := domain.StatusPassed
	if len(findings) > 0 {
		status = domain.StatusWarning
	}
	return domain.FrameResult{Status: status, Findings: findings}, nil
}
