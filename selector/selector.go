// Package selector computes the candidate file set a pipeline run
// analyzes, either by walking the full tree or by asking a VCS
// capability for the files changed between two refs.
package selector

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/oriys/wardencore/capability"
	"github.com/oriys/wardencore/domain"
)

// DefaultIgnoreGlobs ship with the selector so a caller supplying none
// still skips the obvious noise.
var DefaultIgnoreGlobs = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"**/*.min.js",
	"**/*.lock",
}

// Result reports the selected files plus any advisories the selection
// process produced (fallback, unreadable paths skipped, ...).
type Result struct {
	Files      []domain.CodeFile
	Advisories []string
}

// Selector computes a file inventory for one pipeline run.
type Selector struct {
	fs  capability.FileSystem
	vcs capability.VCS
	env map[string]string
}

// Option configures a Selector.
type Option func(*Selector)

// WithVCS attaches the VCS capability used for incremental mode.
func WithVCS(vcs capability.VCS) Option {
	return func(s *Selector) { s.vcs = vcs }
}

// WithEnv attaches the environment Select consults to auto-detect
// Base/Head via DetectCIRefs when an incremental Params arrives
// without them set. A caller not running under CI, or not wanting
// auto-detection, simply omits this option.
func WithEnv(env map[string]string) Option {
	return func(s *Selector) { s.env = env }
}

// New constructs a Selector around a FileSystem capability. fs must
// not be nil; Select has nothing to enumerate without it.
func New(fs capability.FileSystem, opts ...Option) *Selector {
	s := &Selector{fs: fs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params controls one Select call.
type Params struct {
	Root        string
	Incremental bool
	Base, Head  string
	IgnoreGlobs []string
}

// Select computes the file inventory. In incremental mode it asks the
// VCS capability for the changed paths between Base and Head; any
// failure or absent capability falls back to a full walk with an
// "incremental_fallback" advisory. Binary files are included in the
// inventory (for counting) but flagged via CodeFile.IsBinary.
func (s *Selector) Select(ctx context.Context, p Params) Result {
	globs := mergeGlobs(p.IgnoreGlobs)

	if p.Incremental {
		if s.vcs == nil {
			return s.fullScan(ctx, p.Root, globs, "incremental_fallback: no VCS capability configured")
		}
		base, head := p.Base, p.Head
		if base == "" || head == "" {
			detected, detectedHead, ok := DetectCIRefs(s.env)
			if !ok {
				return s.fullScan(ctx, p.Root, globs, "incremental_fallback: no Base/Head set and no recognized CI platform")
			}
			base, head = detected, detectedHead
		}
		paths, err := s.vcs.ChangedFiles(ctx, base, head)
		if err != nil {
			return s.fullScan(ctx, p.Root, globs, "incremental_fallback: "+err.Error())
		}
		return s.loadPaths(ctx, filterIgnored(paths, globs))
	}

	return s.fullScan(ctx, p.Root, globs, "")
}

func (s *Selector) fullScan(ctx context.Context, root string, globs []string, advisory string) Result {
	paths, err := s.fs.Walk(ctx, root, globs)
	if err != nil {
		res := Result{Advisories: []string{"selection_failed: " + err.Error()}}
		if advisory != "" {
			res.Advisories = append([]string{advisory}, res.Advisories...)
		}
		return res
	}
	res := s.loadPaths(ctx, paths)
	if advisory != "" {
		res.Advisories = append([]string{advisory}, res.Advisories...)
	}
	return res
}

func (s *Selector) loadPaths(ctx context.Context, paths []string) Result {
	var res Result
	for _, path := range paths {
		content, err := s.fs.Read(ctx, path)
		if err != nil {
			res.Advisories = append(res.Advisories, "unreadable_file: "+path+": "+err.Error())
			continue
		}
		lines := strings.Count(string(content), "\n")
		if len(content) > 0 && content[len(content)-1] != '\n' {
			lines++
		}
		res.Files = append(res.Files, domain.CodeFile{
			Path:        path,
			Content:     content,
			Language:    detectLanguage(path),
			Size:        int64(len(content)),
			ContentHash: hashContent(content),
			IsBinary:    isBinary(content),
			LineCount:   lines,
		})
	}
	return res
}

func mergeGlobs(configured []string) []string {
	out := make([]string, 0, len(configured)+len(DefaultIgnoreGlobs))
	out = append(out, DefaultIgnoreGlobs...)
	out = append(out, configured...)
	return out
}

func filterIgnored(paths []string, globs []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !matchesAny(p, globs) {
			out = append(out, p)
		}
	}
	return out
}

func matchesAny(path string, globs []string) bool {
	for _, g := range globs {
		g = strings.TrimSuffix(g, "/**")
		if strings.HasPrefix(path, g+"/") || strings.HasSuffix(path, strings.TrimPrefix(g, "**")) {
			return true
		}
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
	}
	return false
}

func detectLanguage(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".rs":
		return "rust"
	default:
		return "unknown"
	}
}

func isBinary(content []byte) bool {
	limit := len(content)
	if limit > 8000 {
		limit = 8000
	}
	for _, b := range content[:limit] {
		if b == 0 {
			return true
		}
	}
	return false
}
