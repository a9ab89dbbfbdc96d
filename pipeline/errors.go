package pipeline

import "fmt"

// ConfigError is the only error Execute can return. Every other
// failure mode — frame panics, timeouts, missing capabilities, bad
// discovery sources — is captured and surfaces as an advisory or a
// FrameResult{status=error} inside a valid PipelineResult.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid pipeline config: %s", e.Reason)
}
