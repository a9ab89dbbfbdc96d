package builtin

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/registry"
)

// maxLineLength flags lines past this as a quality nit.
const maxLineLength = 120

// QualityFrame is a file-scope, non-blocker frame that reports cheap
// line-oriented style nits (overlong lines, TODO markers) rather than
// anything that should ever fail a pipeline by itself.
type QualityFrame struct{}

// NewQualityFrame constructs the built-in quality frame.
func NewQualityFrame() *QualityFrame { return &QualityFrame{} }

func (f *QualityFrame) Metadata() registry.Metadata {
	return registry.Metadata{
		ID:            "quality",
		Name:          "Quality",
		Description:   "Reports line-length and TODO-marker style nits",
		Category:      domain.CategoryQuality,
		Priority:      domain.PriorityLow,
		Scope:         domain.ScopeFile,
		IsBlocker:     false,
		Version:       "1.0.0",
		Applicability: registry.Applicability{Always: true},
	}
}

func (f *QualityFrame) Execute(fc registry.FrameContext) (domain.FrameResult, error) {
	if fc.CodeFile == nil {
		return domain.FrameResult{Status: domain.StatusSkipped}, nil
	}

	var findings []domain.Finding
	scanner := bufio.NewScanner(bytes.NewReader(fc.CodeFile.Content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) > maxLineLength {
			findings = append(findings, domain.Finding{
				FrameID:  "quality",
				Severity: domain.SeverityInfo,
				Message:  fmt.Sprintf("line exceeds %d characters", maxLineLength),
				Location: fmt.Sprintf("%s:%d", fc.CodeFile.Path, lineNo),
			})
		}
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			findings = append(findings, domain.Finding{
				FrameID:  "quality",
				Severity: domain.SeverityInfo,
				Message:  "unresolved TODO/FIXME marker",
				Location: fmt.Sprintf("%s:%d", fc.CodeFile.Path, lineNo),
			})
		}
	}

	status := domain.StatusPassed
	if len(findings) > 0 {
		status = domain.StatusWarning
	}
	return domain.FrameResult{Status: status, Findings: findings}, nil
}
