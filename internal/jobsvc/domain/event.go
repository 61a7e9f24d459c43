package domain

import "time"

// ErrorCode is the stable numeric wire error code carried on Failed events
// and RPC statuses. Peer-specific bands (toolchain 100-199,
// build 200-299, targets 300-399) are opaque to this package; they pass
// through ErrorDetail.Code untouched.
type ErrorCode int32

const (
	ErrorCodeUnspecified      ErrorCode = 0
	ErrorCodeInternal         ErrorCode = 1
	ErrorCodeInvalidArgument  ErrorCode = 2
	ErrorCodeNotFound         ErrorCode = 3
	ErrorCodeAlreadyExists    ErrorCode = 4
	ErrorCodePermissionDenied ErrorCode = 5
	ErrorCodeUnavailable      ErrorCode = 6
	ErrorCodeTimeout          ErrorCode = 7
	ErrorCodeCancelled        ErrorCode = 8
)

// ErrorDetail is the payload of a Failed event.
type ErrorDetail struct {
	Code             ErrorCode
	Message          string
	TechnicalDetails string
	Remedies         []string
	CorrelationID    CorrelationID
}

// Progress is the payload of a ProgressUpdated event.
type Progress struct {
	Percent float64
	Phase   string
	Metrics map[string]string
}

// LogChunk is the payload of a LogAppended event. Implementations should
// cap Data at a few KB per event and set Truncated, splitting large output
// across multiple events.
type LogChunk struct {
	Stream    string
	Data      []byte
	Truncated bool
}

// EventKind tags which payload variant a JobEvent carries.
type EventKind string

const (
	EventKindStateChanged EventKind = "state_changed"
	EventKindProgress     EventKind = "progress"
	EventKindLog          EventKind = "log"
	EventKindCompleted    EventKind = "completed"
	EventKindFailed       EventKind = "failed"
)

// JobEvent is an immutable envelope published against exactly one job.
// Exactly one of the payload fields is set, selected by Kind.
type JobEvent struct {
	At    time.Time
	JobID JobID
	Kind  EventKind

	StateChanged *StateChangedPayload
	Progress     *Progress
	Log          *LogChunk
	Completed    *CompletedPayload
	Failed       *ErrorDetail
}

// StateChangedPayload is the payload of a StateChanged event.
type StateChangedPayload struct {
	NewState JobState
}

// CompletedPayload is the payload of a Completed event.
type CompletedPayload struct {
	Summary string
	Outputs map[string]string
}

// NewStateChangedEvent builds a StateChanged JobEvent.
func NewStateChangedEvent(jobID JobID, at time.Time, newState JobState) JobEvent {
	return JobEvent{At: at, JobID: jobID, Kind: EventKindStateChanged, StateChanged: &StateChangedPayload{NewState: newState}}
}

// NewProgressEvent builds a ProgressUpdated JobEvent.
func NewProgressEvent(jobID JobID, at time.Time, progress Progress) JobEvent {
	return JobEvent{At: at, JobID: jobID, Kind: EventKindProgress, Progress: &progress}
}

// NewLogEvent builds a LogAppended JobEvent.
func NewLogEvent(jobID JobID, at time.Time, chunk LogChunk) JobEvent {
	return JobEvent{At: at, JobID: jobID, Kind: EventKindLog, Log: &chunk}
}

// NewCompletedEvent builds a Completed JobEvent.
func NewCompletedEvent(jobID JobID, at time.Time, summary string, outputs map[string]string) JobEvent {
	return JobEvent{At: at, JobID: jobID, Kind: EventKindCompleted, Completed: &CompletedPayload{Summary: summary, Outputs: outputs}}
}

// NewFailedEvent builds a Failed JobEvent.
func NewFailedEvent(jobID JobID, at time.Time, detail ErrorDetail) JobEvent {
	return JobEvent{At: at, JobID: jobID, Kind: EventKindFailed, Failed: &detail}
}

// Equal reports whether two events are byte-identical for the purposes of
// the replay-to-live deduplication join in the event bus.
func (e JobEvent) Equal(other JobEvent) bool {
	if e.JobID != other.JobID || e.Kind != other.Kind || !e.At.Equal(other.At) {
		return false
	}
	switch e.Kind {
	case EventKindStateChanged:
		return e.StateChanged != nil && other.StateChanged != nil && *e.StateChanged == *other.StateChanged
	case EventKindCompleted:
		return e.Completed != nil && other.Completed != nil && e.Completed.Summary == other.Completed.Summary
	case EventKindFailed:
		return e.Failed != nil && other.Failed != nil &&
			e.Failed.Code == other.Failed.Code && e.Failed.Message == other.Failed.Message
	case EventKindProgress:
		return e.Progress != nil && other.Progress != nil &&
			e.Progress.Percent == other.Progress.Percent && e.Progress.Phase == other.Progress.Phase
	case EventKindLog:
		return e.Log != nil && other.Log != nil && string(e.Log.Data) == string(other.Log.Data)
	default:
		return false
	}
}

// IsTerminal reports whether the event carries a terminal outcome:
// Completed, Failed, or a StateChanged into a terminal state.
func (e JobEvent) IsTerminal() bool {
	switch e.Kind {
	case EventKindCompleted, EventKindFailed:
		return true
	case EventKindStateChanged:
		return e.StateChanged != nil && e.StateChanged.NewState.IsTerminal()
	default:
		return false
	}
}
