package server

import (
	"context"
	"fmt"
	"io"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/workflowsvc/pipeline"
)

// jobClientAdapter wraps api.JobServiceClient to satisfy
// pipeline.Publisher and pipeline.ChildWaiter: it is the bridge between
// the pipeline runner's narrow collaborator interfaces and the real
// JobService RPC surface.
type jobClientAdapter struct {
	jobs api.JobServiceClient
}

var (
	_ pipeline.Publisher   = (*jobClientAdapter)(nil)
	_ pipeline.ChildWaiter = (*jobClientAdapter)(nil)
)

// StartParent creates the parent workflow.pipeline job for a run.
func (a *jobClientAdapter) StartParent(ctx context.Context, req pipeline.Request, displayName string) (domain.JobID, error) {
	resp, err := a.jobs.StartJob(ctx, &api.StartJobRequest{
		JobType:        "workflow.pipeline",
		DisplayName:    displayName,
		RunID:          string(req.RunID),
		CorrelationID:  string(req.CorrelationID),
		ProjectID:      req.ProjectID,
		TargetID:       req.TargetID,
		ToolchainSetID: req.ToolchainSetID,
	})
	if err != nil {
		return "", err
	}
	return domain.JobID(resp.Job.JobID), nil
}

// Publish emits an event against the parent job on the runner's behalf;
// the runner is the parent job's only writer.
func (a *jobClientAdapter) Publish(ctx context.Context, evt domain.JobEvent) error {
	wire := api.JobEventToWire(evt)
	_, err := a.jobs.PublishJobEvent(ctx, &api.PublishJobEventRequest{Event: wire})
	return err
}

// CancelJob requests cancellation of a single job, typically the
// currently in-flight step's child job.
func (a *jobClientAdapter) CancelJob(ctx context.Context, jobID domain.JobID) error {
	_, err := a.jobs.CancelJob(ctx, &api.CancelJobRequest{JobID: string(jobID)})
	return err
}

// WaitForTerminal streams a child job's events (replay-then-live) until a
// terminal event arrives, or ctx is cancelled. Completed, Failed, and a
// StateChanged into a terminal state all qualify: a worker observing its
// cancel signal may finish with StateChanged(Cancelled) rather than a
// Failed payload.
func (a *jobClientAdapter) WaitForTerminal(ctx context.Context, jobID domain.JobID) (domain.JobEvent, error) {
	stream, err := a.jobs.StreamJobEvents(ctx, &api.StreamJobEventsRequest{JobID: string(jobID), IncludeHistory: true})
	if err != nil {
		return domain.JobEvent{}, err
	}
	for {
		wire, err := stream.Recv()
		if err == io.EOF {
			return domain.JobEvent{}, fmt.Errorf("job %s stream closed before a terminal event arrived", jobID)
		}
		if err != nil {
			return domain.JobEvent{}, err
		}
		evt := api.JobEventFromWire(*wire)
		if evt.IsTerminal() {
			return evt, nil
		}
	}
}
