package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/aadk/jobflow/pkg/logger"
)

// StepRunner dispatches a single pipeline Step to its peer service,
// returning the child job id the peer started.
type StepRunner interface {
	Start(ctx context.Context, step Step, runID domain.RunID, correlationID domain.CorrelationID) (domain.JobID, error)
}

// ChildWaiter blocks until a child job reaches a terminal event, returning
// it. internal/workflowsvc/server's job client adapter satisfies this by
// wrapping JobService.StreamJobEvents.
type ChildWaiter interface {
	WaitForTerminal(ctx context.Context, jobID domain.JobID) (domain.JobEvent, error)
}

// Publisher is the narrow surface of JobService the runner uses to drive
// the parent workflow.pipeline job's lifecycle and cancel its children.
type Publisher interface {
	StartParent(ctx context.Context, req Request, displayName string) (domain.JobID, error)
	Publish(ctx context.Context, evt domain.JobEvent) error
	CancelJob(ctx context.Context, jobID domain.JobID) error
}

// Runner executes pipeline runs sequentially, one step at a time, against
// whatever Publisher/StepRunner/ChildWaiter are wired in. It holds no
// registry state of its own: everything durable lives in the Store.
type Runner struct {
	jobs  Publisher
	steps StepRunner
	wait  ChildWaiter
	store Store
	log   *logger.Logger

	mu     sync.Mutex
	active map[domain.RunID]context.CancelFunc
}

// New builds a Runner over its collaborators.
func New(jobs Publisher, steps StepRunner, wait ChildWaiter, store Store) *Runner {
	return &Runner{
		jobs:   jobs,
		steps:  steps,
		wait:   wait,
		store:  store,
		log:    logger.WithMode("workflowsvc"),
		active: make(map[domain.RunID]context.CancelFunc),
	}
}

// RunPipeline starts a new pipeline run: it creates the parent
// workflow.pipeline job synchronously, records a RUNNING RunRecord, and
// then executes the step sequence in the background. It returns as soon as
// the parent job exists; clients watch progress via StreamRunEvents
// rather than blocking on RunPipeline.
func (r *Runner) RunPipeline(ctx context.Context, req Request, explicitSteps []string) (domain.RunID, domain.JobID, error) {
	runID := req.RunID
	if runID == "" {
		runID = domain.NewRunID()
	}
	req.RunID = runID

	var steps []Step
	var err error
	if len(explicitSteps) > 0 {
		steps, err = ParseSteps(explicitSteps, req)
	} else {
		steps = InferSteps(req)
	}
	if err != nil {
		return "", "", aerr.WrapPipelineError(string(runID), "", 0, err)
	}
	if len(steps) == 0 {
		return "", "", aerr.WrapPipelineError(string(runID), "", 0, aerr.ErrInvalidPipelineSpec)
	}

	parentJobID, err := r.jobs.StartParent(ctx, req, "pipeline")
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	if err := r.store.Upsert(RunRecord{
		RunID: runID, CorrelationID: req.CorrelationID,
		ProjectID: req.ProjectID, TargetID: req.TargetID, ToolchainSetID: req.ToolchainSetID,
		StartedAt: now, Result: ResultRunning, JobIDs: []domain.JobID{parentJobID},
	}); err != nil {
		r.log.Warn("failed to record run start", "run_id", string(runID), "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.active[runID] = cancel
	r.mu.Unlock()

	go r.execute(runCtx, req, parentJobID, steps)

	return runID, parentJobID, nil
}

// CancelRun requests cancellation of an in-flight run: the in-flight child
// step is cancelled and the run aborts after it settles. Cancellation
// propagates to the current step only, not every already-dispatched job.
// It reports false if runID has no run currently executing or the run has
// already been cancelled.
func (r *Runner) CancelRun(runID domain.RunID) bool {
	r.mu.Lock()
	cancel, ok := r.active[runID]
	delete(r.active, runID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (r *Runner) execute(ctx context.Context, req Request, parentJobID domain.JobID, steps []Step) {
	defer func() {
		r.mu.Lock()
		delete(r.active, req.RunID)
		r.mu.Unlock()
	}()

	jobIDs := []domain.JobID{parentJobID}
	outputs := map[string]string{}
	total := len(steps)

	for i, step := range steps {
		if ctx.Err() != nil {
			r.abort(parentJobID, req, jobIDs, "", aerr.ErrPipelineCanceled, ResultCancelled)
			return
		}

		r.publishProgress(parentJobID, i, total, step, req)

		childJobID, err := r.steps.Start(ctx, step, req.RunID, req.CorrelationID)
		if err != nil {
			r.abort(parentJobID, req, jobIDs, "", fmt.Errorf("starting step %s: %w", step.Kind, err), ResultFailed)
			return
		}
		jobIDs = append(jobIDs, childJobID)

		outcome, err := r.wait.WaitForTerminal(ctx, childJobID)
		if err != nil {
			if ctx.Err() != nil {
				_ = r.jobs.CancelJob(context.Background(), childJobID)
				r.abort(parentJobID, req, jobIDs, childJobID, aerr.ErrPipelineCanceled, ResultCancelled)
				return
			}
			r.abort(parentJobID, req, jobIDs, childJobID, err, ResultFailed)
			return
		}

		if outcome.Kind == domain.EventKindFailed {
			r.abort(parentJobID, req, jobIDs, childJobID, aerr.ErrPipelineStepFailed, ResultFailed)
			return
		}
		// a worker may terminate via StateChanged(Cancelled) instead of a
		// Failed payload; anything terminal short of success aborts the run
		if outcome.Kind == domain.EventKindStateChanged && outcome.StateChanged != nil && outcome.StateChanged.NewState != domain.JobStateSuccess {
			r.abort(parentJobID, req, jobIDs, childJobID, aerr.ErrPipelineStepFailed, ResultFailed)
			return
		}
		if outcome.Completed != nil {
			for k, v := range outcome.Completed.Outputs {
				outputs[k] = v
			}
		}
	}

	r.complete(parentJobID, req, jobIDs, outputs)
}

func (r *Runner) publishProgress(parentJobID domain.JobID, index, total int, step Step, req Request) {
	evt := domain.NewProgressEvent(parentJobID, time.Now(), domain.Progress{
		Percent: 100 * float64(index) / float64(total),
		Phase:   string(step.Kind),
		Metrics: map[string]string{
			"step_index":     fmt.Sprintf("%d", index),
			"total_steps":    fmt.Sprintf("%d", total),
			"run_id":         string(req.RunID),
			"correlation_id": string(req.CorrelationID),
		},
	})
	if err := r.jobs.Publish(context.Background(), evt); err != nil {
		r.log.Warn("failed to publish pipeline progress", "run_id", string(req.RunID), "error", err)
	}
}

func (r *Runner) complete(parentJobID domain.JobID, req Request, jobIDs []domain.JobID, outputs map[string]string) {
	now := time.Now()
	evt := domain.NewCompletedEvent(parentJobID, now, "pipeline completed", outputs)
	if err := r.jobs.Publish(context.Background(), evt); err != nil {
		r.log.Warn("failed to publish pipeline completion", "run_id", string(req.RunID), "error", err)
	}
	if err := r.store.Upsert(RunRecord{
		RunID: req.RunID, FinishedAt: &now, Result: ResultSuccess, JobIDs: jobIDs, Summary: outputs,
	}); err != nil {
		r.log.Warn("failed to record run completion", "run_id", string(req.RunID), "error", err)
	}
}

func (r *Runner) abort(parentJobID domain.JobID, req Request, jobIDs []domain.JobID, failedChildJobID domain.JobID, cause error, result string) {
	now := time.Now()
	code := domain.ErrorCodeInternal
	if result == ResultCancelled {
		code = domain.ErrorCodeCancelled
	}
	detail := domain.ErrorDetail{
		Code:             code,
		Message:          cause.Error(),
		TechnicalDetails: string(failedChildJobID),
		CorrelationID:    req.CorrelationID,
	}
	evt := domain.NewFailedEvent(parentJobID, now, detail)
	if err := r.jobs.Publish(context.Background(), evt); err != nil {
		r.log.Warn("failed to publish pipeline failure", "run_id", string(req.RunID), "error", err)
	}
	if err := r.store.Upsert(RunRecord{
		RunID: req.RunID, FinishedAt: &now, Result: result, JobIDs: jobIDs,
	}); err != nil {
		r.log.Warn("failed to record run failure", "run_id", string(req.RunID), "error", err)
	}
}
