package pipeline

import (
	"context"

	"github.com/oriys/wardencore/capability"
	"github.com/oriys/wardencore/domain"
)

// eventBufferSize bounds the channel ExecuteStream returns so a slow
// consumer cannot block pipeline execution indefinitely; once full,
// further non-terminal events are dropped rather than blocking. The
// final result event is always delivered.
const eventBufferSize = 256

// ExecuteStream runs Execute in a goroutine and, once Execute returns,
// replays its outcome on the returned channel: one
// phase_started/phase_completed pair per phase actually run, one
// advisory event per advisory, one frame_completed event per frame
// result, and a final result event carrying the PipelineResult. The
// channel is closed after the result event. A ConfigError is returned
// as the error, with a nil channel.
func (p *Pipeline) ExecuteStream(ctx context.Context, files []domain.CodeFile, config Config, caps capability.Bundle) (<-chan Event, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	events := make(chan Event, eventBufferSize)

	go func() {
		defer close(events)

		result, err := p.Execute(ctx, files, config, caps)
		if err != nil {
			// Execute only returns an error for a ConfigError, which we
			// already validated above; this path is defensive.
			return
		}

		for _, ph := range result.Phases {
			emit(events, Event{Type: EventPhaseStarted, Phase: Phase(ph.Phase)})
			emit(events, Event{Type: EventPhaseCompleted, Phase: Phase(ph.Phase), DurationMS: ph.DurationMS})
		}
		for _, a := range result.Advisories {
			emit(events, Event{Type: EventAdvisory, Advisory: a})
		}
		for frameID, fr := range result.FrameResults {
			fr := fr
			emit(events, Event{Type: EventFrameCompleted, FrameID: frameID, DurationMS: fr.DurationMS, FrameResult: &fr})
		}

		res := result
		events <- Event{Type: EventResult, Result: &res}
	}()

	return events, nil
}

func emit(ch chan<- Event, e Event) {
	select {
	case ch <- e:
	default:
		// Buffer full: drop the event rather than block the pipeline.
		// The terminal result event always carries the authoritative
		// final state, so a dropped progress event never loses data.
	}
}
