// Package peers stands in for the toolchain, build, target, and observe
// services a real deployment would run as separate processes with their
// own JobService clients. Dispatcher starts a child job for each pipeline step and then simulates
// that peer's work by publishing a short progress-then-completion event
// sequence against it, enough to exercise WorkflowService's pipeline
// runner end to end.
package peers

import (
	"context"
	"fmt"
	"time"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/workflowsvc/pipeline"
	"github.com/aadk/jobflow/pkg/logger"
)

// jobTypeForStep maps a pipeline step kind to the job_type its stub peer
// registers the child job under. Most are 1:1; targets.install/launch and
// the observe steps use the singular/verbose job_type names JobRegistry's
// KnownJobTypes carries (internal/jobsvc/domain.KnownJobTypes).
var jobTypeForStep = map[pipeline.StepKind]string{
	pipeline.StepProjectCreate:         "project.create",
	pipeline.StepProjectOpen:           "project.open",
	pipeline.StepToolchainVerify:       "toolchain.verify",
	pipeline.StepBuildRun:              "build.run",
	pipeline.StepTargetsInstall:        "target.install",
	pipeline.StepTargetsLaunch:         "target.launch",
	pipeline.StepObserveSupportBundle:  "observe.export_support_bundle",
	pipeline.StepObserveEvidenceBundle: "observe.export_evidence_bundle",
}

// simulatedStepDelay is the pause between a stub peer's progress and
// completion events, short enough to keep tests fast.
const simulatedStepDelay = 5 * time.Millisecond

// Dispatcher implements pipeline.StepRunner by starting a child job
// through JobService and driving it to completion itself, in place of the
// out-of-scope peer services.
type Dispatcher struct {
	jobs api.JobServiceClient
	log  *logger.Logger
}

// New builds a Dispatcher over a JobService client.
func New(jobs api.JobServiceClient) *Dispatcher {
	return &Dispatcher{jobs: jobs, log: logger.WithMode("peers")}
}

var _ pipeline.StepRunner = (*Dispatcher)(nil)

// Start implements pipeline.StepRunner: it starts a child job for step and
// launches a detached goroutine that plays out that peer's lifecycle.
func (d *Dispatcher) Start(ctx context.Context, step pipeline.Step, runID domain.RunID, correlationID domain.CorrelationID) (domain.JobID, error) {
	jobType, ok := jobTypeForStep[step.Kind]
	if !ok {
		return "", fmt.Errorf("peers: no stub registered for step %s", step.Kind)
	}

	resp, err := d.jobs.StartJob(ctx, &api.StartJobRequest{
		JobType:        jobType,
		DisplayName:    string(step.Kind),
		RunID:          string(runID),
		CorrelationID:  string(correlationID),
		ProjectID:      step.Inputs["project_id"],
		TargetID:       step.Inputs["target_id"],
		ToolchainSetID: step.Inputs["toolchain_set_id"],
	})
	if err != nil {
		return "", err
	}
	childJobID := domain.JobID(resp.Job.JobID)

	go d.simulate(childJobID, step)

	return childJobID, nil
}

// simulate plays out a stub peer's work: Running, one progress tick, then
// Completed. It never fails on its own; peers that should exercise the
// pipeline's failure path are driven by tests constructing their own
// StepRunner fake instead.
func (d *Dispatcher) simulate(jobID domain.JobID, step pipeline.Step) {
	ctx := context.Background()
	now := time.Now()

	publish := func(evt domain.JobEvent) {
		wire := api.JobEventToWire(evt)
		if _, err := d.jobs.PublishJobEvent(ctx, &api.PublishJobEventRequest{Event: wire}); err != nil {
			d.log.Warn("stub peer failed to publish event", "job_id", string(jobID), "step", string(step.Kind), "error", err)
		}
	}

	publish(domain.NewStateChangedEvent(jobID, now, domain.JobStateRunning))
	time.Sleep(simulatedStepDelay)
	publish(domain.NewProgressEvent(jobID, time.Now(), domain.Progress{Percent: 50, Phase: string(step.Kind)}))
	time.Sleep(simulatedStepDelay)
	publish(domain.NewCompletedEvent(jobID, time.Now(), fmt.Sprintf("%s completed", step.Kind), nil))
}
