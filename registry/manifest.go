package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/wardencore/domain"
)

// manifestFile is the on-disk shape of a loose frame definition
// (discovery sources #3 and #4). A manifest frame has no Go code; it
// declares metadata plus a command that is invoked once per
// Execute call, receiving the FrameContext as JSON on stdin and
// expected to write a FrameResult as JSON on stdout.
type manifestFile struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Category       string   `yaml:"category"`
	Priority       string   `yaml:"priority"`
	Scope          string   `yaml:"scope"`
	IsBlocker      bool     `yaml:"is_blocker"`
	Version        string   `yaml:"version"`
	Languages      []string `yaml:"languages"`
	Always         bool     `yaml:"always"`
	MinCoreVersion string   `yaml:"min_core_version"`
	MaxCoreVersion string   `yaml:"max_core_version"`
	Command        []string `yaml:"command"`
	TimeoutMS      int64    `yaml:"timeout_ms"`
}

// loadManifestDir reads every *.yaml/*.yml file in dir and turns valid
// ones into Frame instances. A directory that does not exist is not an
// error (it simply yields no frames); a directory that exists but
// cannot be read yields an advisory string and no frames.
func loadManifestDir(dir string) (frames []Frame, advisory string) {
	if dir == "" {
		return nil, ""
	}
	dir = expandHome(dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ""
		}
		return nil, fmt.Sprintf("frame manifest directory %q unreadable: %v", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var mf manifestFile
		if err := yaml.Unmarshal(data, &mf); err != nil {
			continue
		}
		frames = append(frames, newManifestFrame(mf))
	}
	return frames, ""
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// manifestFrame adapts a manifestFile into the Frame interface by
// shelling out to its declared command for every Execute call.
type manifestFrame struct {
	md      Metadata
	command []string
	timeout time.Duration
}

func newManifestFrame(mf manifestFile) *manifestFrame {
	timeout := 30 * time.Second
	if mf.TimeoutMS > 0 {
		timeout = time.Duration(mf.TimeoutMS) * time.Millisecond
	}
	scope := domain.ScopeFile
	if mf.Scope == string(domain.ScopeRepository) {
		scope = domain.ScopeRepository
	}
	priority := domain.FramePriority(mf.Priority)
	if priority == "" {
		priority = domain.PriorityMedium
	}
	category := domain.FrameCategory(mf.Category)
	if category == "" {
		category = domain.CategoryCustom
	}
	return &manifestFrame{
		md: Metadata{
			ID:             mf.ID,
			Name:           mf.Name,
			Description:    mf.Description,
			Category:       category,
			Priority:       priority,
			Scope:          scope,
			IsBlocker:      mf.IsBlocker,
			Version:        mf.Version,
			Applicability:  Applicability{Languages: mf.Languages, Always: mf.Always},
			MinCoreVersion: mf.MinCoreVersion,
			MaxCoreVersion: mf.MaxCoreVersion,
		},
		command: mf.Command,
		timeout: timeout,
	}
}

func (m *manifestFrame) Metadata() Metadata { return m.md }

// manifestIPC is the JSON shape sent to and read from the external
// command; it intentionally carries only data, never the context.Context
// or LLM capability, since those cannot cross a process boundary.
type manifestIPC struct {
	CodeFile        *domain.CodeFile            `json:"code_file,omitempty"`
	CodeFiles       []domain.CodeFile           `json:"code_files,omitempty"`
	Characteristics *domain.CodeCharacteristics `json:"characteristics,omitempty"`
	PriorFindings   []domain.Finding            `json:"prior_findings,omitempty"`
}

func (m *manifestFrame) Execute(fc FrameContext) (domain.FrameResult, error) {
	if len(m.command) == 0 {
		return domain.FrameResult{}, fmt.Errorf("manifest frame %s: no command declared", m.md.ID)
	}

	ctx := fc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	payload, err := json.Marshal(manifestIPC{
		CodeFile:        fc.CodeFile,
		CodeFiles:       fc.CodeFiles,
		Characteristics: fc.Characteristics,
		PriorFindings:   fc.PriorFindings,
	})
	if err != nil {
		return domain.FrameResult{}, fmt.Errorf("manifest frame %s: marshal input: %w", m.md.ID, err)
	}

	cmd := exec.CommandContext(ctx, m.command[0], m.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return domain.FrameResult{}, fmt.Errorf("manifest frame %s: %w", m.md.ID, err)
	}

	var result domain.FrameResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return domain.FrameResult{}, fmt.Errorf("manifest frame %s: unmarshal output: %w", m.md.ID, err)
	}
	result.FrameID = m.md.ID
	result.FrameName = m.md.Name
	return result, nil
}
