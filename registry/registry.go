package registry

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/oriys/wardencore/domain"
)

// CoreVersion is the registry's own compatibility version, compared
// against each frame's MinCoreVersion/MaxCoreVersion during Validate.
const CoreVersion = "1.0.0"

// EnvExtraDirs is the colon-separated environment variable listing
// extra loose-frame-manifest directories (discovery source #4).
const EnvExtraDirs = "WARDEN_FRAME_DIRS"

// DefaultManifestDir is discovery source #3's default location.
const DefaultManifestDir = "~/.warden/frames"

// sourceRank orders discovery sources; a higher rank is allowed to
// override a frame_id registered by a lower rank, but only because
// later-registered entries always win ties (see LoadAll).
type sourceRank int

const (
	sourceBuiltin sourceRank = iota
	sourceEntryPoint
	sourceManifestDir
	sourceEnvDirs
)

func (s sourceRank) String() string {
	switch s {
	case sourceBuiltin:
		return "builtin"
	case sourceEntryPoint:
		return "entry_point"
	case sourceManifestDir:
		return "manifest_dir"
	case sourceEnvDirs:
		return "env_dirs"
	default:
		return "unknown"
	}
}

// FrameProvider is how discovery source #2 (installed-package entry
// points) is rendered in Go: since the language has no dynamic import,
// an embedder registers providers explicitly at construction time
// instead of the registry scanning for them.
type FrameProvider interface {
	Frames() []Frame
}

// entry tracks which source last won the frame_id, for conflict
// resolution logging.
type entry struct {
	frame  Frame
	source sourceRank
}

// Registry discovers, validates, stores, and serves frames. The read
// path (Get, Applicable, AllRepositoryScope) takes the read lock only;
// the write path (LoadAll) takes the write lock for the whole scan,
// matching the single-writer/many-readers shape of a per-pipeline
// registry that is loaded once and then consulted concurrently by the
// frame runner's fan-out.
type Registry struct {
	mu      sync.RWMutex
	frames  map[string]entry
	logger  *slog.Logger

	manifestDir string
	extraDirsEnv string
	providers   []FrameProvider
	builtins    []Frame
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithManifestDir overrides DefaultManifestDir (discovery source #3).
func WithManifestDir(dir string) Option {
	return func(r *Registry) { r.manifestDir = dir }
}

// WithEnvDirsVar overrides EnvExtraDirs (discovery source #4).
func WithEnvDirsVar(name string) Option {
	return func(r *Registry) { r.extraDirsEnv = name }
}

// WithProvider registers an installed-package entry point provider
// (discovery source #2).
func WithProvider(p FrameProvider) Option {
	return func(r *Registry) { r.providers = append(r.providers, p) }
}

// WithBuiltins registers compiled-in frames (discovery source #1).
func WithBuiltins(frames ...Frame) Option {
	return func(r *Registry) { r.builtins = append(r.builtins, frames...) }
}

// WithLogger overrides the registry's logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New constructs an empty, unloaded Registry. Call LoadAll to populate it.
func New(opts ...Option) *Registry {
	r := &Registry{
		frames:       make(map[string]entry),
		logger:       slog.Default(),
		manifestDir:  DefaultManifestDir,
		extraDirsEnv: EnvExtraDirs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadResult reports discovery outcomes that do not abort loading.
type LoadResult struct {
	Advisories []string
	Loaded     int
	Rejected   int
}

// LoadAll scans every discovery source in order (builtin, entry point,
// manifest directory, env-listed directories). Later sources win
// conflicts on the same frame_id; a conflict is recorded as an
// advisory and logged at warning level. Discovery errors never abort
// the scan. If every source yields nothing, the registry is still
// usable (empty); callers see this in LoadResult.Loaded == 0.
func (r *Registry) LoadAll() LoadResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result LoadResult

	r.loadSource(&result, sourceBuiltin, r.builtins)

	for _, p := range r.providers {
		r.loadSource(&result, sourceEntryPoint, p.Frames())
	}

	if frames, advisory := loadManifestDir(r.manifestDir); advisory != "" {
		result.Advisories = append(result.Advisories, advisory)
	} else {
		r.loadSource(&result, sourceManifestDir, frames)
	}

	for _, dir := range extraDirs(r.extraDirsEnv) {
		frames, advisory := loadManifestDir(dir)
		if advisory != "" {
			result.Advisories = append(result.Advisories, advisory)
			continue
		}
		r.loadSource(&result, sourceEnvDirs, frames)
	}

	return result
}

// loadSource validates and installs one source's candidate frames,
// recording conflicts and rejections into result. Caller holds mu.
func (r *Registry) loadSource(result *LoadResult, source sourceRank, candidates []Frame) {
	for _, f := range candidates {
		if err := Validate(f, CoreVersion); err != nil {
			result.Rejected++
			msg := fmt.Sprintf("frame rejected from %s: %v", source, err)
			result.Advisories = append(result.Advisories, msg)
			r.logger.Warn("frame validation failed", "source", source.String(), "error", err)
			continue
		}

		id := snakeCase(f.Metadata().ID)
		// LoadAll always calls loadSource in non-decreasing sourceRank
		// order, so a conflicting id already present was registered at
		// an equal or lower rank; this call always wins the override.
		if existing, ok := r.frames[id]; ok {
			result.Advisories = append(result.Advisories, fmt.Sprintf(
				"frame_id %q conflict: %s overrides %s", id, source, existing.source))
			r.logger.Warn("frame id conflict", "frame_id", id, "overriding", existing.source.String(), "with", source.String())
		}

		r.frames[id] = entry{frame: f, source: source}
		result.Loaded++
	}
}

// Get returns the frame registered under id, if any.
func (r *Registry) Get(id string) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.frames[snakeCase(id)]
	if !ok {
		return nil, false
	}
	return e.frame, true
}

// Applicable filters frameIDs down to the frames that exist and declare
// applicability to codeFile.Language.
func (r *Registry) Applicable(frameIDs []string, codeFile domain.CodeFile) []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Frame, 0, len(frameIDs))
	for _, id := range frameIDs {
		e, ok := r.frames[snakeCase(id)]
		if !ok {
			continue
		}
		if e.frame.Metadata().Applicability.Matches(codeFile.Language) {
			out = append(out, e.frame)
		}
	}
	return out
}

// AllRepositoryScope returns every loaded repository-scope frame.
func (r *Registry) AllRepositoryScope() []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Frame, 0)
	for _, e := range r.frames {
		if RepositoryScope(e.frame) {
			out = append(out, e.frame)
		}
	}
	return out
}

// AllIDs returns every loaded frame_id, for building a default
// enabled_frames set.
func (r *Registry) AllIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.frames))
	for id := range r.frames {
		out = append(out, id)
	}
	return out
}

// Len reports how many frames are currently loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// snakeCase canonicalizes a frame id: the source mixes kebab-case and
// snake_case ids, so hyphens are normalized to underscores and the
// whole id is lower-cased. The frame's declared Name is left untouched
// as the display form.
func snakeCase(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", "_"))
}

// extraDirs splits the colon-separated env var into a clean directory
// list; an unset or empty var yields no extra directories.
func extraDirs(envVar string) []string {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
