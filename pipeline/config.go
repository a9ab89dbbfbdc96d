package pipeline

import (
	"runtime"
	"time"
)

// ExecutionStrategy controls how file-scope frames are dispatched
// within Phase 3. Sequential forces one (frame, file) pair in flight
// at a time regardless of ParallelWorkers; Parallel fans out up to
// ParallelWorkers pairs concurrently; FailFast fans out the same way
// but stops dispatching new pairs as soon as one comes back
// StatusError, letting in-flight pairs finish.
type ExecutionStrategy string

const (
	StrategySequential ExecutionStrategy = "sequential"
	StrategyParallel   ExecutionStrategy = "parallel"
	StrategyFailFast   ExecutionStrategy = "fail_fast"
)

// Config is the full set of recognized pipeline options. Every field
// has a documented default applied by DefaultConfig; an embedder
// overrides only what it needs.
type Config struct {
	EnabledPhases  []Phase
	EnabledFrames  []string
	DisabledFrames []string

	PerFileFrameTimeout time.Duration
	PerRepoFrameTimeout time.Duration
	PipelineTimeout     time.Duration
	ParallelWorkers     int
	ExecutionStrategy   ExecutionStrategy

	Incremental bool

	LLMEnabled     bool
	LLMTokenBudget int

	FailOnCritical bool
	FailOnHigh     bool

	RepositoryCacheEnabled bool

	IgnoreGlobs     []string
	CustomRulesPath string

	// FrameConfig carries per-frame options forwarded unchanged to
	// frames that know how to interpret their own namespace of it.
	FrameConfig map[string]map[string]any
}

// DefaultConfig returns every field populated with its documented
// default. A zero Config is not equivalent: Execute falls back to these
// values for the timeouts and the token budget, but a zero
// ParallelWorkers runs one worker and a false RepositoryCacheEnabled
// disables the repository cache.
func DefaultConfig() *Config {
	return &Config{
		EnabledPhases:  []Phase{PhaseClassification, PhaseValidation},
		EnabledFrames:  nil, // nil means "registry union minus DisabledFrames"
		DisabledFrames: nil,

		PerFileFrameTimeout: 30 * time.Second,
		PerRepoFrameTimeout: 300 * time.Second,
		PipelineTimeout:     300 * time.Second,
		ParallelWorkers:     runtime.NumCPU(),
		ExecutionStrategy:   StrategyParallel,

		Incremental: false,

		LLMEnabled:     false, // informational only: Execute gates LLM-backed phases on capability.Bundle.LLM being non-nil, not on this flag
		LLMTokenBudget: 3000,

		FailOnCritical: true,
		FailOnHigh:     false,

		RepositoryCacheEnabled: true,

		IgnoreGlobs:     nil,
		CustomRulesPath: "",

		FrameConfig: make(map[string]map[string]any),
	}
}

// Validate rejects a Config that cannot start a pipeline at all. This
// is the only error path that prevents Execute from producing a
// PipelineResult.
func (c *Config) Validate() error {
	if c.ParallelWorkers < 0 {
		return &ConfigError{Reason: "parallel_workers must be >= 0"}
	}
	if c.PipelineTimeout < 0 {
		return &ConfigError{Reason: "pipeline_timeout must be >= 0"}
	}
	for _, p := range c.EnabledPhases {
		if !phaseEnabled(allPhases, p) {
			return &ConfigError{Reason: "unknown phase in enabled_phases: " + string(p)}
		}
	}
	return nil
}

func (c *Config) effectiveParallelWorkers() int {
	if c.ExecutionStrategy == StrategySequential {
		return 1
	}
	if c.ParallelWorkers > 0 {
		return c.ParallelWorkers
	}
	return 1
}
