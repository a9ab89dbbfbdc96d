// Package pipeline implements the phase orchestrator (C5): the public
// surface a CLI, server, or editor-integration front-end drives. It
// wires together the registry, frame runner, aggregator, LLM
// verification helper, and incremental selector into the fixed
// pre_analysis -> analysis -> classification -> validation ->
// verification -> fortification -> cleaning sequence.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/wardencore/aggregate"
	"github.com/oriys/wardencore/capability"
	"github.com/oriys/wardencore/corrlog"
	"github.com/oriys/wardencore/domain"
	"github.com/oriys/wardencore/llmverify"
	"github.com/oriys/wardencore/metrics"
	"github.com/oriys/wardencore/registry"
	"github.com/oriys/wardencore/repocache"
	"github.com/oriys/wardencore/runner"
)

const tracerName = "wardencore"

// Pipeline executes validation runs against a Registry shared across
// runs (built and loaded once by the embedder). The repository-scope
// cache lives here too, not inside Execute: its documented lifetime is
// "one orchestrator instance", so a repository-scope frame run through
// two Execute calls on the same Pipeline is still only invoked once.
type Pipeline struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	cache    *repocache.Cache
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithMetrics attaches a metrics recorder; nil (the default) disables
// metric recording without affecting pipeline semantics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer overrides the OTel tracer; defaults to
// otel.Tracer("wardencore").
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New constructs a Pipeline around an already-loaded Registry.
func New(reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{registry: reg, tracer: otel.Tracer(tracerName), cache: repocache.New()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runState carries everything the phase functions need, threaded
// through a single execution. It is the Go rendering of
// "PipelineContext": mutable, single-writer (the goroutine running
// Execute), with a read-only view (registry.FrameContext) handed to
// each frame invocation.
type runState struct {
	scanID     string
	pipelineID string
	config     *Config
	caps       capability.Bundle

	files []domain.CodeFile

	characteristics map[string]*domain.CodeCharacteristics // keyed by CodeFile.Path

	frameResults map[string]domain.FrameResult
	advisories   []string
	phases       []domain.PhaseSummary

	runner  *runner.Runner
	llm     *llmverify.Helper
	started time.Time
}

// Execute runs the full phase sequence against files using config and
// capabilities, returning a PipelineResult in every case except a
// precondition failure caught by Config.Validate (ConfigError).
func (p *Pipeline) Execute(ctx context.Context, files []domain.CodeFile, config Config, caps capability.Bundle) (domain.PipelineResult, error) {
	if err := config.Validate(); err != nil {
		return domain.PipelineResult{}, err
	}

	ctx, scanID := corrlog.Bind(ctx)
	logger := corrlog.FromContext(ctx)

	pipelineTimeout := config.PipelineTimeout
	if pipelineTimeout <= 0 {
		pipelineTimeout = DefaultConfig().PipelineTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, pipelineTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "wardencore.pipeline.execute")
	defer span.End()

	st := &runState{
		scanID:          scanID,
		pipelineID:      uuid.NewString(),
		config:          &config,
		caps:            caps,
		characteristics: make(map[string]*domain.CodeCharacteristics),
		frameResults:    make(map[string]domain.FrameResult),
		started:         time.Now(),
	}

	runnerOpts := []runner.Option{
		runner.WithFileFrameTimeout(effective(config.PerFileFrameTimeout, runner.DefaultFileFrameTimeout)),
		runner.WithRepoFrameTimeout(effective(config.PerRepoFrameTimeout, runner.DefaultRepoFrameTimeout)),
		runner.WithParallelWorkers(config.effectiveParallelWorkers()),
	}
	if config.RepositoryCacheEnabled {
		runnerOpts = append(runnerOpts, runner.WithCache(p.cache))
	}
	if config.ExecutionStrategy == StrategyFailFast {
		runnerOpts = append(runnerOpts, runner.WithFailFast(true))
	}
	st.runner = runner.New(runnerOpts...)

	// LLM-backed verification is gated purely on capability presence: a
	// front-end that wires an LLMClient wants it used, and one that
	// doesn't has nothing to call regardless of LLMEnabled. Fortification
	// additionally has to be listed in EnabledPhases. The field stays on
	// Config for embedders that want to record or surface the intent
	// explicitly.
	if caps.LLM != nil {
		st.llm = llmverify.New(caps.LLM, llmverify.WithTokenBudget(config.LLMTokenBudget), llmverify.WithMetrics(p.metrics))
	}

	st.files = files
	if len(files) == 0 {
		st.advisories = append(st.advisories, "no files")
	}

	logger.Info("pipeline started", "scan_id", scanID, "pipeline_id", st.pipelineID, "files", len(files))

	status := p.run(ctx, logger, st)

	result := p.finalize(st, status)

	logger.Info("pipeline finished", "status", string(result.Status), "findings", len(result.Findings))

	if p.metrics != nil {
		p.metrics.RecordPipeline(string(result.Status), result.Metrics.TotalDurationMS)
		p.metrics.RecordFindings(bySeverityStrings(result.Metrics.FindingsBySeverity))
	}

	return result, nil
}

// run executes the phase sequence and returns the terminal status. It
// never returns a Go error: every failure mode converts to either an
// advisory or a terminal PipelineStatus.
func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, st *runState) domain.PipelineStatus {
	for _, phase := range allPhases {
		select {
		case <-ctx.Done():
			return p.cancellationStatus(ctx, st)
		default:
		}

		if !p.shouldRun(st.config, phase, st) {
			continue
		}

		phaseStart := time.Now()
		p.spanPhase(ctx, logger, phase, func(phaseCtx context.Context) {
			p.runPhase(phaseCtx, logger, phase, st)
		})
		duration := time.Since(phaseStart).Milliseconds()

		st.phases = append(st.phases, domain.PhaseSummary{
			Phase:      string(phase),
			Status:     "completed",
			DurationMS: duration,
			FramesRun:  phaseFrameCount(phase, st),
		})
		if p.metrics != nil {
			p.metrics.RecordPhase(string(phase), duration)
		}

		select {
		case <-ctx.Done():
			return p.cancellationStatus(ctx, st)
		default:
		}
	}

	return deriveStatus(st)
}

func (p *Pipeline) shouldRun(config *Config, phase Phase, st *runState) bool {
	switch phase {
	case PhaseClassification, PhaseValidation:
		return true // mandatory
	case PhaseVerification:
		return st.llm != nil
	default:
		return phaseEnabled(config.EnabledPhases, phase)
	}
}

func (p *Pipeline) spanPhase(ctx context.Context, logger *slog.Logger, phase Phase, fn func(context.Context)) {
	phaseCtx, span := p.tracer.Start(ctx, "wardencore.phase."+string(phase))
	defer span.End()
	logger.Info("phase started", "phase", string(phase))
	fn(phaseCtx)
	logger.Info("phase completed", "phase", string(phase))
}

func (p *Pipeline) runPhase(ctx context.Context, logger *slog.Logger, phase Phase, st *runState) {
	switch phase {
	case PhasePreAnalysis:
		runPreAnalysis(st)
	case PhaseAnalysis:
		runAnalysis(ctx, st)
	case PhaseClassification:
		runClassification(st)
	case PhaseValidation:
		p.runValidation(ctx, logger, st)
	case PhaseVerification:
		p.runVerification(ctx, st)
	case PhaseFortification:
		p.runFortification(ctx, st)
	case PhaseCleaning:
		runCleaning(st)
	}
}

// runValidation is the primary phase: it selects applicable frames per
// file plus every repository-scope frame, and dispatches them through
// the runner.
func (p *Pipeline) runValidation(ctx context.Context, logger *slog.Logger, st *runState) {
	if p.registry == nil || p.registry.Len() == 0 {
		st.advisories = append(st.advisories, "no frames available")
		return
	}

	frameIDs := st.config.EnabledFrames
	if len(frameIDs) == 0 {
		frameIDs = p.registry.AllIDs()
	}
	frameIDs = subtract(frameIDs, st.config.DisabledFrames)

	invFor := func(f registry.Frame, file domain.CodeFile) runner.Invocation {
		return runner.Invocation{
			Characteristics: st.characteristics[file.Path],
			LLM:             st.llm,
		}
	}

	// Group files by language so applicable frames are resolved once per
	// group and the runner can fan out across every (frame, file) pair
	// within the group concurrently, instead of serializing per file.
	for language, group := range groupByLanguage(st.files) {
		frames := fileScopeOnly(p.registry.Applicable(frameIDs, domain.CodeFile{Language: language}))
		if len(frames) == 0 {
			continue
		}
		results, advisories := st.runner.RunFilesConcurrently(ctx, logger, frames, group, invFor)
		st.advisories = append(st.advisories, advisories...)
		for _, r := range results {
			mergeFrameResult(st.frameResults, r)
			if p.metrics != nil {
				p.metrics.RecordFrame(r.FrameID, string(r.Status), "file", r.DurationMS)
			}
		}
	}

	for _, frame := range p.registry.AllRepositoryScope() {
		if !contains(frameIDs, frame.Metadata().ID) {
			continue
		}
		result, advisories := st.runner.RunRepository(ctx, logger, frame, st.files, runner.Invocation{LLM: st.llm})
		st.advisories = append(st.advisories, advisories...)
		mergeFrameResult(st.frameResults, result)
		if p.metrics != nil {
			p.metrics.RecordFrame(result.FrameID, string(result.Status), "repository", result.DurationMS)
		}
	}
}

// runVerification sends each file's findings through the LLM helper,
// replacing them with the annotated/filtered set it returns. A frame's
// merged FrameResult can span every file it touched (mergeFrameResult
// merges by frame_id alone), so findings are grouped by their resolved
// file before calling Verify — never the whole result at once, which
// would judge one file's findings against another file's excerpt.
func (p *Pipeline) runVerification(ctx context.Context, st *runState) {
	byPath := make(map[string]domain.CodeFile, len(st.files))
	for _, f := range st.files {
		byPath[f.Path] = f
	}

	for frameID, result := range st.frameResults {
		if len(result.Findings) == 0 {
			continue
		}

		var byFile []string
		groups := make(map[string][]domain.Finding)
		for _, f := range result.Findings {
			path := findingPath(f)
			if _, ok := groups[path]; !ok {
				byFile = append(byFile, path)
			}
			groups[path] = append(groups[path], f)
		}

		verified := make([]domain.Finding, 0, len(result.Findings))
		for _, path := range byFile {
			findings := groups[path]
			file, ok := byPath[path]
			if !ok {
				verified = append(verified, findings...)
				continue
			}
			vr := st.llm.Verify(ctx, findings, file)
			if vr.Advisory != "" {
				st.advisories = append(st.advisories, vr.Advisory)
			}
			verified = append(verified, vr.Findings...)
		}

		result.Findings = verified
		result.IssuesFound = len(verified)
		st.frameResults[frameID] = result
	}
}

// runFortification asks the LLM helper to explain every finding that
// has no suggestion yet and whose file is in the scanned set, attaching
// the suggestion in place.
func (p *Pipeline) runFortification(ctx context.Context, st *runState) {
	if st.llm == nil {
		st.advisories = append(st.advisories, "fortification_skipped: no llm capability")
		return
	}
	byPath := make(map[string]domain.CodeFile, len(st.files))
	for _, f := range st.files {
		byPath[f.Path] = f
	}
	for frameID, result := range st.frameResults {
		for i, finding := range result.Findings {
			if finding.Suggestion != "" {
				continue
			}
			file, ok := byPath[findingPath(finding)]
			if !ok {
				continue
			}
			suggestion, err := st.llm.Explain(ctx, finding, file)
			if err != nil {
				continue
			}
			result.Findings[i].Suggestion = suggestion
		}
		st.frameResults[frameID] = result
	}
}

// cancellationStatus distinguishes a hard deadline from caller-driven
// cancellation; both preserve whatever findings are already collected.
func (p *Pipeline) cancellationStatus(ctx context.Context, st *runState) domain.PipelineStatus {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		st.advisories = append(st.advisories, "pipeline_timeout")
		return domain.PipelineTimedOut
	}
	st.advisories = append(st.advisories, "pipeline_cancelled")
	return domain.PipelineCancelled
}

// finalize aggregates frame results into the PipelineResult, applying
// status unless one was already forced by cancellation/timeout.
func (p *Pipeline) finalize(st *runState, status domain.PipelineStatus) domain.PipelineResult {
	findings, dedupAdvisories := aggregate.Aggregate(st.frameResults)
	st.advisories = append(st.advisories, dedupAdvisories...)

	m := aggregate.BuildMetrics(findings, st.frameResults)
	m.TotalDurationMS = time.Since(st.started).Milliseconds()
	for _, ph := range st.phases {
		m.PhaseDurationsMS[ph.Phase] = ph.DurationMS
	}

	return domain.PipelineResult{
		ScanID:       st.scanID,
		PipelineID:   st.pipelineID,
		Status:       status,
		StartedAt:    st.started,
		EndedAt:      time.Now(),
		Phases:       st.phases,
		Findings:     findings,
		FrameResults: st.frameResults,
		Metrics:      m,
		Advisories:   dedupStrings(st.advisories),
	}
}

// deriveStatus applies §3's terminal-status rule once every phase has
// run without a cancellation/timeout interrupting it.
func deriveStatus(st *runState) domain.PipelineStatus {
	blockerFailure := false
	nonBlockerFailure := false
	for _, r := range st.frameResults {
		failed := r.Status == domain.StatusFailed || r.Status == domain.StatusError
		if !failed {
			continue
		}
		if r.IsBlocker {
			blockerFailure = true
		} else {
			nonBlockerFailure = true
		}
	}
	switch {
	case blockerFailure:
		return domain.PipelineFailed
	case nonBlockerFailure:
		return domain.PipelineCompletedWithFailures
	default:
		return domain.PipelineCompleted
	}
}

func effective(configured, fallback time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return fallback
}

func mergeFrameResult(into map[string]domain.FrameResult, r domain.FrameResult) {
	if existing, ok := into[r.FrameID]; ok {
		existing.Findings = append(existing.Findings, r.Findings...)
		existing.IssuesFound += r.IssuesFound
		existing.DurationMS += r.DurationMS
		if r.Status != domain.StatusPassed {
			existing.Status = r.Status
		}
		into[r.FrameID] = existing
		return
	}
	into[r.FrameID] = r
}

func phaseFrameCount(phase Phase, st *runState) int {
	if phase != PhaseValidation {
		return 0
	}
	return len(st.frameResults)
}

func groupByLanguage(files []domain.CodeFile) map[string][]domain.CodeFile {
	groups := make(map[string][]domain.CodeFile)
	for _, f := range files {
		if f.IsBinary {
			continue
		}
		groups[f.Language] = append(groups[f.Language], f)
	}
	return groups
}

func subtract(ids, disabled []string) []string {
	if len(disabled) == 0 {
		return ids
	}
	skip := make(map[string]struct{}, len(disabled))
	for _, d := range disabled {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// fileScopeOnly drops repository-scope frames from a set Applicable
// already filtered by language: repository-scope frames are dispatched
// exactly once below, against the whole file set, never per file.
func fileScopeOnly(frames []registry.Frame) []registry.Frame {
	out := make([]registry.Frame, 0, len(frames))
	for _, f := range frames {
		if registry.FileScope(f) {
			out = append(out, f)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func findingPath(f domain.Finding) string {
	for i := 0; i < len(f.Location); i++ {
		if f.Location[i] == ':' {
			return f.Location[:i]
		}
	}
	return f.Location
}

func bySeverityStrings(in map[domain.Severity]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
