package pipeline

import "github.com/oriys/wardencore/domain"

// EventType tags the payload an Event carries.
type EventType string

const (
	EventPhaseStarted   EventType = "phase_started"
	EventPhaseCompleted EventType = "phase_completed"
	EventFrameStarted   EventType = "frame_started"
	EventFrameCompleted EventType = "frame_completed"
	EventAdvisory       EventType = "advisory"
	EventResult         EventType = "result"
)

// Event is one record emitted on the channel returned by ExecuteStream.
// Only the fields relevant to the event's Type are populated (Phase and,
// for phase_completed, DurationMS; FrameID, DurationMS and FrameResult
// for frame_completed; Advisory; Result); the final event on the
// channel is always EventResult.
type Event struct {
	Type EventType

	Phase       Phase
	FrameID     string
	DurationMS  int64
	Advisory    string
	FrameResult *domain.FrameResult
	Result      *domain.PipelineResult
}
