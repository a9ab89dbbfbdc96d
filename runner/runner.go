// Package runner executes a single frame invocation with a strict
// contract: build its context, enforce a per-frame timeout, capture
// any panic or error into a synthetic FrameResult, normalize its
// findings, and consult the repository cache for repository-scope
// frames. It never lets a misbehaving frame take down a pipeline.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/normalize"
	"github.com/oriys/wardencore/registry"
	"github.com/oriys/wardencore/repocache"
)

// Default per-invocation timeouts, explicit per scope per the resolved
// open question in DESIGN.md (the source varied the default only in
// part of the codebase; this package always distinguishes the two).
const (
	DefaultFileFrameTimeout = 30 * time.Second
	DefaultRepoFrameTimeout = 300 * time.Second
)

// Runner executes frames on behalf of the phase orchestrator.
type Runner struct {
	cache            *repocache.Cache
	fileFrameTimeout time.Duration
	repoFrameTimeout time.Duration
	parallelWorkers  int
	failFast         bool
}

// Option configures a Runner at construction time.
type Option func(*Runner)

// WithCache installs the repository-scope result cache. A nil cache
// (the default) disables repository-scope memoization entirely.
func WithCache(c *repocache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithFileFrameTimeout overrides DefaultFileFrameTimeout.
func WithFileFrameTimeout(d time.Duration) Option {
	return func(r *Runner) { r.fileFrameTimeout = d }
}

// WithRepoFrameTimeout overrides DefaultRepoFrameTimeout.
func WithRepoFrameTimeout(d time.Duration) Option {
	return func(r *Runner) { r.repoFrameTimeout = d }
}

// WithParallelWorkers bounds how many file-scope (frame, file) pairs
// RunFilesConcurrently dispatches at once. Default is 1 (sequential);
// the orchestrator always supplies its configured worker count.
func WithParallelWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelWorkers = n
		}
	}
}

// WithFailFast makes RunFilesConcurrently stop dispatching new (frame,
// file) pairs as soon as one invocation comes back StatusError; pairs
// already in flight still finish and contribute their result.
func WithFailFast(enabled bool) Option {
	return func(r *Runner) { r.failFast = enabled }
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		fileFrameTimeout: DefaultFileFrameTimeout,
		repoFrameTimeout: DefaultRepoFrameTimeout,
		parallelWorkers:  1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invocation bundles everything RunFile/RunRepository need beyond the
// frame itself and the context/cancellation token.
type Invocation struct {
	Characteristics     *domain.CodeCharacteristics
	MemoryContext       string
	PriorFindings       []domain.Finding
	ProjectIntelligence *registry.ProjectIntelligence
	LLM                 registry.LLMCapability
}

// outcome bundles a FrameResult with the advisories produced while
// building its context or handling its execution, so callers can fold
// them into PipelineResult.Advisories without a second pass.
type outcome struct {
	result     domain.FrameResult
	advisories []string
}

// RunFile executes a file-scope frame against one file.
func (r *Runner) RunFile(ctx context.Context, logger *slog.Logger, frame registry.Frame, file domain.CodeFile, inv Invocation) (domain.FrameResult, []string) {
	fc, advisories := r.buildContext(inv)
	fc.CodeFile = &file

	o := r.invoke(ctx, logger, frame, fc, r.fileFrameTimeout)
	o.advisories = append(advisories, o.advisories...)
	return o.result, o.advisories
}

// RunRepository executes a repository-scope frame against the whole
// file set, short-circuiting through the cache when a cached result
// exists for this frame_id (per-pipeline, per §4.9).
func (r *Runner) RunRepository(ctx context.Context, logger *slog.Logger, frame registry.Frame, files []domain.CodeFile, inv Invocation) (domain.FrameResult, []string) {
	fc, advisories := r.buildContext(inv)
	fc.CodeFiles = files

	id := frame.Metadata().ID
	if r.cache == nil {
		o := r.invoke(ctx, logger, frame, fc, r.repoFrameTimeout)
		o.advisories = append(advisories, o.advisories...)
		return o.result, o.advisories
	}

	result, cached, err := r.cache.GetOrCompute(id, func() (domain.FrameResult, error) {
		o := r.invoke(ctx, logger, frame, fc, r.repoFrameTimeout)
		advisories = append(advisories, o.advisories...)
		return o.result, nil
	})
	if cached {
		logger.Debug("repository frame cache hit", "frame_id", id)
	}
	_ = err // invoke never returns a non-nil error; it always produces a FrameResult{status=error} instead.
	return result, advisories
}

// RunFilesConcurrently dispatches one goroutine per (frame, file) pair,
// bounded by r.parallelWorkers, matching the fan-out model in §5:
// frame execution inside Phase 3 is parallel up to a bounded worker
// count, phases remain strictly sequential around it.
func (r *Runner) RunFilesConcurrently(ctx context.Context, logger *slog.Logger, frames []registry.Frame, files []domain.CodeFile, invFor func(frame registry.Frame, file domain.CodeFile) Invocation) ([]domain.FrameResult, []string) {
	type task struct {
		frame registry.Frame
		file  domain.CodeFile
	}
	tasks := make([]task, 0, len(frames)*len(files))
	for _, f := range frames {
		for _, file := range files {
			tasks = append(tasks, task{frame: f, file: file})
		}
	}

	results := make([]domain.FrameResult, len(tasks))
	advisoriesPerTask := make([][]string, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelWorkers)

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if r.failFast {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
			result, advisories := r.RunFile(ctx, logger, t.frame, t.file, invFor(t.frame, t.file))
			results[i] = result
			advisoriesPerTask[i] = advisories
			if r.failFast && result.Status == domain.StatusError {
				return fmt.Errorf("fail_fast: frame %s failed on %s", t.frame.Metadata().ID, t.file.Path)
			}
			return nil
		})
	}
	// RunFile already converts every frame failure into
	// FrameResult{status=error} instead of propagating it, so the only
	// non-nil Wait() here comes from the fail_fast sentinel above or from
	// gctx cancellation (pipeline timeout/cancel) — neither needs the
	// caller to see a Go error, since results/advisories already carry
	// whatever happened.
	_ = g.Wait()

	var advisories []string
	for _, a := range advisoriesPerTask {
		advisories = append(advisories, a...)
	}
	return results, advisories
}

// buildContext constructs the immutable parts of a FrameContext shared
// by both RunFile and RunRepository, sanitizing prior findings and
// validating project intelligence along the way.
func (r *Runner) buildContext(inv Invocation) (registry.FrameContext, []string) {
	var advisories []string

	sanitized, dropped := sanitizePriorFindings(inv.PriorFindings)
	if dropped > 0 {
		advisories = append(advisories, fmt.Sprintf("dropped %d prior finding(s) matching the injection denylist", dropped))
	}

	pi := inv.ProjectIntelligence
	if pi != nil && !pi.Valid() {
		advisories = append(advisories, "invalid project_intelligence shape ignored")
		pi = nil
	}

	return registry.FrameContext{
		Characteristics:     inv.Characteristics,
		MemoryContext:       inv.MemoryContext,
		PriorFindings:       sanitized,
		ProjectIntelligence: pi,
		LLM:                 inv.LLM,
	}, advisories
}

// invoke runs frame.Execute under a per-frame timeout, recovering from
// panics and translating both panics and timeouts into a synthetic
// error FrameResult instead of ever failing the pipeline.
func (r *Runner) invoke(ctx context.Context, logger *slog.Logger, frame registry.Frame, fc registry.FrameContext, timeout time.Duration) outcome {
	start := time.Now()
	md := frame.Metadata()

	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	fc.Ctx = invokeCtx

	type execOutcome struct {
		result domain.FrameResult
		err    error
	}
	done := make(chan execOutcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execOutcome{err: fmt.Errorf("frame panicked: %v", p)}
			}
		}()
		result, err := frame.Execute(fc)
		done <- execOutcome{result: result, err: err}
	}()

	select {
	case <-invokeCtx.Done():
		duration := time.Since(start).Milliseconds()
		logger.Warn("frame timed out", "frame_id", md.ID, "timeout", timeout)
		return outcome{
			result: domain.FrameResult{
				FrameID:    md.ID,
				FrameName:  md.Name,
				Status:     domain.StatusError,
				DurationMS: duration,
				IsBlocker:  md.IsBlocker,
			},
			advisories: []string{"frame_timeout: " + md.ID},
		}

	case eo := <-done:
		duration := time.Since(start).Milliseconds()
		if eo.err != nil {
			logger.Warn("frame execution failed", "frame_id", md.ID, "error", eo.err)
			return outcome{
				result: domain.FrameResult{
					FrameID:    md.ID,
					FrameName:  md.Name,
					Status:     domain.StatusError,
					DurationMS: duration,
					IsBlocker:  md.IsBlocker,
				},
				advisories: []string{fmt.Sprintf("frame_execution_error: %s: %v", md.ID, eo.err)},
			}
		}

		findings, findingAdvisories := normalize.NormalizeBatch(md.ID, toRaw(eo.result.Findings))
		eo.result.Findings = findings
		eo.result.IssuesFound = len(findings)
		eo.result.FrameID = md.ID
		eo.result.FrameName = md.Name
		eo.result.IsBlocker = md.IsBlocker
		eo.result.DurationMS = duration
		return outcome{result: eo.result, advisories: findingAdvisories}
	}
}

// toRaw adapts findings a frame already returned as domain.Finding into
// normalize.RawFinding so they pass through the same cap/truncation
// logic as loosely-typed frame output; fields are already well-formed
// so this is a lossless, zero-surprise pass-through in the common case.
func toRaw(findings []domain.Finding) []normalize.RawFinding {
	raw := make([]normalize.RawFinding, len(findings))
	for i, f := range findings {
		raw[i] = normalize.RawFinding{
			ID:              f.ID,
			FrameID:         f.FrameID,
			Severity:        string(f.Severity),
			Message:         f.Message,
			Location:        f.Location,
			CodeSnippet:     f.CodeSnippet,
			Suggestion:      f.Suggestion,
			Detail:          f.Detail,
			IsBlockerSource: f.IsBlockerSource,
		}
	}
	return raw
}
