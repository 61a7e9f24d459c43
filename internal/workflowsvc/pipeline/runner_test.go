package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

// fakeJobs implements Publisher and ChildWaiter entirely in memory: every
// child job started by fakeSteps is immediately "completed" (or "failed",
// for jobs whose ids are listed in failJobIDs, or "cancelled" via a
// StateChanged event, for those in cancelJobIDs) without any real JobService.
type fakeJobs struct {
	mu           sync.Mutex
	nextID       int
	events       []domain.JobEvent
	cancelled    map[domain.JobID]bool
	failJobIDs   map[domain.JobID]bool
	cancelJobIDs map[domain.JobID]bool
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{cancelled: map[domain.JobID]bool{}, failJobIDs: map[domain.JobID]bool{}, cancelJobIDs: map[domain.JobID]bool{}}
}

func (f *fakeJobs) StartParent(ctx context.Context, req Request, displayName string) (domain.JobID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return domain.JobID("parent-job"), nil
}

func (f *fakeJobs) Publish(ctx context.Context, evt domain.JobEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeJobs) CancelJob(ctx context.Context, jobID domain.JobID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[jobID] = true
	return nil
}

func (f *fakeJobs) WaitForTerminal(ctx context.Context, jobID domain.JobID) (domain.JobEvent, error) {
	f.mu.Lock()
	fail := f.failJobIDs[jobID]
	cancel := f.cancelJobIDs[jobID]
	f.mu.Unlock()
	if fail {
		return domain.NewFailedEvent(jobID, time.Now(), domain.ErrorDetail{Code: domain.ErrorCodeInternal, Message: "boom"}), nil
	}
	if cancel {
		return domain.NewStateChangedEvent(jobID, time.Now(), domain.JobStateCancelled), nil
	}
	return domain.NewCompletedEvent(jobID, time.Now(), "ok", map[string]string{"out": string(jobID)}), nil
}

func (f *fakeJobs) parentEvents() []domain.JobEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.JobEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeSteps uses each dispatched step's kind as its child job id and
// optionally blocks until its context is cancelled, to exercise the
// cancellation path.
type fakeSteps struct {
	mu      sync.Mutex
	started []StepKind
	counter int
	block   bool
}

func (f *fakeSteps) Start(ctx context.Context, step Step, runID domain.RunID, correlationID domain.CorrelationID) (domain.JobID, error) {
	f.mu.Lock()
	f.counter++
	id := domain.JobID(step.Kind)
	f.started = append(f.started, step.Kind)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
	}
	return id, nil
}

func TestRunnerExecutesStepsInOrderAndRecordsSuccess(t *testing.T) {
	jobs := newFakeJobs()
	steps := &fakeSteps{}
	store := NewMemStore()
	r := New(jobs, steps, jobs, store)

	req := Request{ProjectID: "proj-1", TargetID: "target-1"}
	runID, parentJobID, err := r.RunPipeline(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.JobID("parent-job"), parentJobID)

	require.Eventually(t, func() bool {
		rec, err := store.Get(runID)
		return err == nil && rec.Result == ResultSuccess
	}, time.Second, time.Millisecond)

	rec, err := store.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, rec.Result)
	assert.Contains(t, rec.JobIDs, parentJobID)
	assert.Greater(t, len(rec.JobIDs), 1)

	steps.mu.Lock()
	defer steps.mu.Unlock()
	assert.Equal(t, []StepKind{StepProjectOpen, StepToolchainVerify, StepBuildRun, StepTargetsInstall, StepTargetsLaunch}, steps.started)
}

func TestRunnerAbortsOnChildFailure(t *testing.T) {
	jobs := newFakeJobs()
	jobs.failJobIDs[domain.JobID(StepBuildRun)] = true
	steps := &fakeSteps{}
	store := NewMemStore()
	r := New(jobs, steps, jobs, store)

	runID, _, err := r.RunPipeline(context.Background(), Request{ProjectID: "proj-1"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := store.Get(runID)
		return err == nil && rec.Result != ResultRunning
	}, time.Second, time.Millisecond)

	rec, err := store.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, rec.Result)

	steps.mu.Lock()
	defer steps.mu.Unlock()
	assert.Equal(t, []StepKind{StepProjectOpen, StepToolchainVerify, StepBuildRun}, steps.started)

	events := jobs.parentEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventKindFailed, events[len(events)-1].Kind)
}

func TestRunnerAbortsWhenChildTerminatesViaStateChangedCancelled(t *testing.T) {
	jobs := newFakeJobs()
	jobs.cancelJobIDs[domain.JobID(StepBuildRun)] = true
	steps := &fakeSteps{}
	store := NewMemStore()
	r := New(jobs, steps, jobs, store)

	runID, _, err := r.RunPipeline(context.Background(), Request{ProjectID: "proj-1"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := store.Get(runID)
		return err == nil && rec.Result != ResultRunning
	}, time.Second, time.Millisecond)

	rec, err := store.Get(runID)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, rec.Result)

	steps.mu.Lock()
	defer steps.mu.Unlock()
	assert.Equal(t, []StepKind{StepProjectOpen, StepToolchainVerify, StepBuildRun}, steps.started)
}

func TestRunnerCancelRunStopsBeforeNextStep(t *testing.T) {
	jobs := newFakeJobs()
	steps := &fakeSteps{block: true}
	store := NewMemStore()
	r := New(jobs, steps, jobs, store)

	runID, _, err := r.RunPipeline(context.Background(), Request{ProjectID: "proj-1"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		steps.mu.Lock()
		defer steps.mu.Unlock()
		return len(steps.started) == 1
	}, time.Second, time.Millisecond)

	assert.True(t, r.CancelRun(runID))
	assert.False(t, r.CancelRun(runID), "a run with no cancel func registered should report false")

	require.Eventually(t, func() bool {
		rec, err := store.Get(runID)
		return err == nil && rec.Result == ResultCancelled
	}, time.Second, time.Millisecond)
}

func TestRunPipelineRejectsEmptyStepSet(t *testing.T) {
	jobs := newFakeJobs()
	steps := &fakeSteps{}
	store := NewMemStore()
	r := New(jobs, steps, jobs, store)

	_, _, err := r.RunPipeline(context.Background(), Request{}, nil)
	require.Error(t, err)
}

func TestParseStepsRejectsUnknownName(t *testing.T) {
	_, err := ParseSteps([]string{"not.a.step"}, Request{})
	require.Error(t, err)
}

func TestParseStepsAcceptsKnownNames(t *testing.T) {
	steps, err := ParseSteps([]string{string(StepBuildRun), string(StepTargetsInstall)}, Request{TargetID: "t1"})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "t1", steps[1].Inputs["target_id"])
}

func TestMemStoreUpsertMergesJobIDs(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Upsert(RunRecord{RunID: "r1", Result: ResultRunning, JobIDs: []domain.JobID{"a"}}))
	require.NoError(t, s.Upsert(RunRecord{RunID: "r1", Result: ResultSuccess, JobIDs: []domain.JobID{"b"}}))

	rec, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, rec.Result)
	assert.ElementsMatch(t, []domain.JobID{"a", "b"}, rec.JobIDs)
}
