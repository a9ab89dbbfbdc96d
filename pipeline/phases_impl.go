package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/oriys/wardencore/domain"
)

// runPreAnalysis fills in file metadata the caller's selector may not
// have computed (hash, binary flag, line count), leaving already-set
// fields untouched. This phase is idempotent: running it twice on the
// same files produces the same metadata.
func runPreAnalysis(st *runState) {
	for i, f := range st.files {
		if f.ContentHash == "" {
			sum := sha256.Sum256(f.Content)
			st.files[i].ContentHash = hex.EncodeToString(sum[:8])
		}
		if f.LineCount == 0 && len(f.Content) > 0 {
			lines := strings.Count(string(f.Content), "\n")
			if f.Content[len(f.Content)-1] != '\n' {
				lines++
			}
			st.files[i].LineCount = lines
		}
		if !f.IsBinary {
			head := f.Content
			if len(head) > 8000 {
				head = head[:8000]
			}
			st.files[i].IsBinary = bytes.IndexByte(head, 0) >= 0
		}
	}
}

// runAnalysis computes an AST summary for each non-binary file when an
// ASTProvider capability is present. Absence of the capability is an
// advisory, not a failure: quality metrics are best-effort.
func runAnalysis(ctx context.Context, st *runState) {
	if st.caps.AST == nil {
		st.advisories = append(st.advisories, "analysis_skipped: no ast provider capability")
		return
	}
	for i, f := range st.files {
		if f.IsBinary {
			continue
		}
		ast, err := st.caps.AST.Parse(ctx, f.Content, f.Language)
		if err != nil {
			st.advisories = append(st.advisories, "ast_parse_failed: "+f.Path+": "+err.Error())
			continue
		}
		if s, ok := ast.(interface{ String() string }); ok {
			st.files[i].ASTSummary = s.String()
		}
	}
}

// runClassification computes CodeCharacteristics per file from a cheap
// textual heuristic. This is deliberately pattern-based rather than
// AST-based so it never depends on the optional ASTProvider capability.
func runClassification(st *runState) {
	for _, f := range st.files {
		if f.IsBinary {
			continue
		}
		st.characteristics[f.Path] = classify(f)
	}
}

func classify(f domain.CodeFile) *domain.CodeCharacteristics {
	content := string(f.Content)
	lower := strings.ToLower(content)

	c := &domain.CodeCharacteristics{
		HasAsyncOperations:         containsAny(lower, "async ", "await ", "goroutine", "go func", "promise"),
		HasDatabaseOperations:      containsAny(lower, "select ", "insert into", "update ", "delete from", "sqlx.", "gorm.", "db.query"),
		HasUserInput:               containsAny(lower, "request.", "r.form", "os.args", "input(", "req.body", "c.query"),
		HasAuthenticationLogic:     containsAny(lower, "password", "jwt", "oauth", "login", "authenticate", "session"),
		HasCryptographicOperations: containsAny(lower, "crypto/", "sha256", "aes.", "hmac", "bcrypt", "encrypt"),
	}

	score := 1
	for _, b := range []bool{c.HasAsyncOperations, c.HasDatabaseOperations, c.HasUserInput, c.HasAuthenticationLogic, c.HasCryptographicOperations} {
		if b {
			score++
		}
	}
	if f.LineCount > 500 {
		score++
	}
	if f.LineCount > 2000 {
		score++
	}
	if score > 10 {
		score = 10
	}
	c.ComplexityScore = score
	return c
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// runCleaning is an optional phase that currently produces no findings
// of its own; it exists as the sixth fixed phase slot so a future
// code-quality-suggestion frame set has somewhere to run without
// reshaping the state machine.
func runCleaning(st *runState) {
	st.advisories = append(st.advisories, "cleaning_phase_noop: no cleaning frames registered")
}
