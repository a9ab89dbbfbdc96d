// Package builtin ships a handful of compiled-in frames (discovery
// source #1) so a registry is never empty out of the box. They are
// intentionally simple pattern scanners: real deployments are expected
// to supply their own frames via a FrameProvider or loose manifests.
package builtin

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/registry"
)

// securityPattern pairs a substring to scan for with the finding it
// produces when found.
type securityPattern struct {
	substr   string
	severity domain.Severity
	message  string
}

var securityPatterns = []securityPattern{
	{substr: "os.system(", severity: domain.SeverityCritical, message: "shell command executed via os.system, vulnerable to injection"},
	{substr: "eval(", severity: domain.SeverityHigh, message: "eval() of dynamic input can execute arbitrary code"},
	{substr: "exec.Command(", severity: domain.SeverityMedium, message: "external command execution, verify arguments are not attacker-controlled"},
	{substr: "pickle.loads(", severity: domain.SeverityHigh, message: "deserializing untrusted pickle data can execute arbitrary code"},
	{substr: "md5(", severity: domain.SeverityLow, message: "MD5 is not a cryptographically secure hash"},
}

// SecurityFrame is a file-scope, blocker frame that flags a small set
// of well-known dangerous call patterns via a line-oriented scan.
type SecurityFrame struct{}

// NewSecurityFrame constructs the built-in security frame.
func NewSecurityFrame() *SecurityFrame { return &SecurityFrame{} }

func (f *SecurityFrame) Metadata() registry.Metadata {
	return registry.Metadata{
		ID:            "security",
		Name:          "Security",
		Description:   "Flags common dangerous call patterns via line-oriented pattern matching",
		Category:      domain.CategorySecurity,
		Priority:      domain.PriorityCritical,
		Scope:         domain.ScopeFile,
		IsBlocker:     true,
		Version:       "1.0.0",
		Applicability: registry.Applicability{Always: true},
	}
}

func (f *SecurityFrame) Execute(fc registry.FrameContext) (domain.FrameResult, error) {
	if fc.CodeFile == nil {
		return domain.FrameResult{Status: domain.StatusSkipped}, nil
	}

	var findings []domain.Finding
	scanner := bufio.NewScanner(bytes.NewReader(fc.CodeFile.Content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, p := range securityPatterns {
			if strings.Contains(line, p.substr) {
				findings = append(findings, domain.Finding{
					FrameID:     "security",
					Severity:    p.severity,
					Message:     p.message,
					Location:    fmt.Sprintf("%s:%d", fc.CodeFile.Path, lineNo),
					CodeSnippet: strings.TrimSpace(line),
				})
			}
		}
	}

	status := domain.StatusPassed
	if len(findings) > 0 {
		status = domain.StatusFailed
	}
	return domain.FrameResult{Status: status, Findings: findings}, nil
}
