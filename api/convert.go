package api

import (
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}

// JobStateFromDomain converts a domain.JobState to its wire enum value.
func JobStateFromDomain(s domain.JobState) JobState { return JobState(s) }

// JobStateToDomain converts a wire JobState to domain.JobState.
func JobStateToDomain(s JobState) domain.JobState { return domain.JobState(s) }

// JobToWire converts a domain.Job to its wire representation.
func JobToWire(j *domain.Job) Job {
	return Job{
		JobID:          string(j.JobID),
		JobType:        j.JobType,
		State:          JobStateFromDomain(j.State),
		DisplayName:    j.DisplayName,
		CreatedAt:      millis(j.CreatedAt),
		StartedAt:      millisPtr(j.StartedAt),
		FinishedAt:     millisPtr(j.FinishedAt),
		CorrelationID:  string(j.CorrelationID),
		RunID:          string(j.RunID),
		ProjectID:      j.ProjectID,
		TargetID:       j.TargetID,
		ToolchainSetID: j.ToolchainSetID,
	}
}

// JobEventToWire converts a domain.JobEvent to its wire envelope.
func JobEventToWire(e domain.JobEvent) JobEvent {
	w := JobEvent{
		At:    millis(e.At),
		JobID: string(e.JobID),
		Kind:  string(e.Kind),
	}
	switch e.Kind {
	case domain.EventKindStateChanged:
		if e.StateChanged != nil {
			w.StateChanged = &StateChangedPayload{NewState: JobStateFromDomain(e.StateChanged.NewState)}
		}
	case domain.EventKindProgress:
		if e.Progress != nil {
			w.Progress = &Progress{Percent: e.Progress.Percent, Phase: e.Progress.Phase, Metrics: e.Progress.Metrics}
		}
	case domain.EventKindLog:
		if e.Log != nil {
			w.Log = &LogChunk{Stream: e.Log.Stream, Data: e.Log.Data, Truncated: e.Log.Truncated}
		}
	case domain.EventKindCompleted:
		if e.Completed != nil {
			w.Completed = &CompletedPayload{Summary: e.Completed.Summary, Outputs: e.Completed.Outputs}
		}
	case domain.EventKindFailed:
		if e.Failed != nil {
			w.Failed = errorDetailToWire(*e.Failed)
		}
	}
	return w
}

// JobEventFromWire converts a wire JobEvent envelope back to a domain.JobEvent.
func JobEventFromWire(w JobEvent) domain.JobEvent {
	e := domain.JobEvent{
		At:    fromMillis(w.At),
		JobID: domain.JobID(w.JobID),
		Kind:  domain.EventKind(w.Kind),
	}
	switch e.Kind {
	case domain.EventKindStateChanged:
		if w.StateChanged != nil {
			e.StateChanged = &domain.StateChangedPayload{NewState: JobStateToDomain(w.StateChanged.NewState)}
		}
	case domain.EventKindProgress:
		if w.Progress != nil {
			e.Progress = &domain.Progress{Percent: w.Progress.Percent, Phase: w.Progress.Phase, Metrics: w.Progress.Metrics}
		}
	case domain.EventKindLog:
		if w.Log != nil {
			e.Log = &domain.LogChunk{Stream: w.Log.Stream, Data: w.Log.Data, Truncated: w.Log.Truncated}
		}
	case domain.EventKindCompleted:
		if w.Completed != nil {
			e.Completed = &domain.CompletedPayload{Summary: w.Completed.Summary, Outputs: w.Completed.Outputs}
		}
	case domain.EventKindFailed:
		if w.Failed != nil {
			e.Failed = errorDetailFromWire(*w.Failed)
		}
	}
	return e
}

func errorDetailToWire(d domain.ErrorDetail) *ErrorDetail {
	return &ErrorDetail{
		Code:             ErrorCode(d.Code),
		Message:          d.Message,
		TechnicalDetails: d.TechnicalDetails,
		Remedies:         d.Remedies,
		CorrelationID:    string(d.CorrelationID),
	}
}

func errorDetailFromWire(d ErrorDetail) *domain.ErrorDetail {
	return &domain.ErrorDetail{
		Code:             domain.ErrorCode(d.Code),
		Message:          d.Message,
		TechnicalDetails: d.TechnicalDetails,
		Remedies:         d.Remedies,
		CorrelationID:    domain.CorrelationID(d.CorrelationID),
	}
}

// RunRecordToWire converts a pipeline.RunRecord-shaped value to its wire
// form. It takes loose fields rather than a concrete type to avoid a
// dependency from api on internal/workflowsvc/pipeline.
func RunRecordToWire(runID, correlationID, projectID, targetID, toolchainSetID string, startedAt time.Time, finishedAt *time.Time, result string, jobIDs []string, summary map[string]string) RunRecord {
	return RunRecord{
		RunID:          runID,
		CorrelationID:  correlationID,
		ProjectID:      projectID,
		TargetID:       targetID,
		ToolchainSetID: toolchainSetID,
		StartedAt:      millis(startedAt),
		FinishedAt:     millisPtr(finishedAt),
		Result:         result,
		JobIDs:         jobIDs,
		Summary:        summary,
	}
}

// IdentifiersFromRequest builds domain.Identifiers from the loosely-typed
// id fields carried on every long-running RPC request.
func IdentifiersFromRequest(correlationID, runID, projectID, targetID, toolchainSetID string) domain.Identifiers {
	return domain.Identifiers{
		CorrelationID:  domain.CorrelationID(correlationID),
		RunID:          domain.RunID(runID),
		ProjectID:      projectID,
		TargetID:       targetID,
		ToolchainSetID: toolchainSetID,
	}
}
