package registry

import (
	"context"
	"sync"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/bus"
	"github.com/aadk/jobflow/internal/jobsvc/domain"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/aadk/jobflow/pkg/logger"
)

// JobSnapshot is the persisted shape of one job: its metadata record plus
// its bounded event history.
type JobSnapshot struct {
	Job    domain.Job
	Events []domain.JobEvent
}

// Persister is everything JobRegistry needs from the Persistent Store.
// Upsert must flush synchronously to durable storage when flush is true
// (state-terminal updates); otherwise it may coalesce.
type Persister interface {
	Upsert(snapshot JobSnapshot, flush bool) error
	Remove(jobID domain.JobID) error
	LoadAll() (map[domain.JobID]JobSnapshot, error)
	Close() error
}

// Metrics is the subset of prometheus instrumentation the registry updates.
// Kept as an interface so registry tests don't need a real prometheus
// registry.
type Metrics interface {
	ObserveJobCreated(jobType string)
	ObserveJobStateChanged(state domain.JobState)
	ObserveEventPublished(kind domain.EventKind)
}

type noopMetrics struct{}

func (noopMetrics) ObserveJobCreated(string)               {}
func (noopMetrics) ObserveJobStateChanged(domain.JobState) {}
func (noopMetrics) ObserveEventPublished(domain.EventKind) {}

type jobEntry struct {
	mu     sync.RWMutex
	job    domain.Job
	log    *eventLog
	cancel chan struct{}
}

// JobRegistry is the authoritative in-memory index of jobs and their
// bounded event histories. Mutable state is protected by a
// per-job lock so many concurrent publishers to distinct jobs don't
// contend, plus a coarser index lock held briefly for create/list.
type JobRegistry struct {
	indexMu sync.RWMutex
	jobs    map[domain.JobID]*jobEntry

	eventBus    *bus.PubSub[domain.JobEvent]
	eventLogCap int
	persister   Persister
	metrics     Metrics
	log         *logger.Logger
}

// Option configures a JobRegistry at construction time.
type Option func(*JobRegistry)

// WithEventLogCapacity overrides the per-job history cap.
func WithEventLogCapacity(n int) Option {
	return func(r *JobRegistry) { r.eventLogCap = n }
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *JobRegistry) { r.metrics = m }
}

// New builds a JobRegistry. If persister is non-nil, LoadAll is called to
// recover state and any non-terminal job is finalized as Failed with a
// synthetic "service restarted" event.
func New(persister Persister, opts ...Option) (*JobRegistry, error) {
	r := &JobRegistry{
		jobs:        make(map[domain.JobID]*jobEntry),
		eventBus:    bus.New[domain.JobEvent](bus.DefaultConfig()),
		eventLogCap: DefaultEventLogCapacity,
		persister:   persister,
		metrics:     noopMetrics{},
		log:         logger.WithMode("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if persister != nil {
		if err := r.recover(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *JobRegistry) recover() error {
	snapshots, err := r.persister.LoadAll()
	if err != nil {
		return aerr.NewPersistenceError("registry", "recover", err)
	}

	now := time.Now()
	for jobID, snap := range snapshots {
		entry := &jobEntry{
			job:    snap.Job,
			log:    newEventLog(r.eventLogCap),
			cancel: make(chan struct{}),
		}
		entry.log.events = append(entry.log.events, snap.Events...)

		if !snap.Job.State.IsTerminal() {
			synthetic := domain.NewFailedEvent(jobID, now, domain.ErrorDetail{
				Code:    domain.ErrorCodeInternal,
				Message: "service restarted",
			})
			entry.log.append(synthetic)
			entry.job.State = domain.JobStateFailed
			entry.job.FinishedAt = &now
			if r.persister != nil {
				_ = r.persister.Upsert(JobSnapshot{Job: entry.job, Events: entry.log.snapshot()}, true)
			}
		}

		r.jobs[jobID] = entry
	}

	r.log.Info("recovered jobs from persistent store", "count", len(snapshots))
	return nil
}

// CreateJob validates jobType and creates a new Queued job with a freshly
// assigned job_id.
func (r *JobRegistry) CreateJob(jobType, displayName string, ids domain.Identifiers) (*domain.Job, error) {
	return r.createJob(domain.NewJobID(), jobType, displayName, ids)
}

// CreateJobWithID is CreateJob for callers that pre-reserve a job_id
// themselves (`{job_id?, correlation_id?, run_id?}` triple).
// It fails with AlreadyExists if jobID is already known.
func (r *JobRegistry) CreateJobWithID(jobID domain.JobID, jobType, displayName string, ids domain.Identifiers) (*domain.Job, error) {
	if jobID == "" {
		return nil, aerr.WrapJobError("", "create", aerr.ErrInvalidJobSpec)
	}
	if _, ok := r.lookup(jobID); ok {
		return nil, aerr.WrapJobError(string(jobID), "create", aerr.ErrJobAlreadyExists)
	}
	return r.createJob(jobID, jobType, displayName, ids)
}

func (r *JobRegistry) createJob(jobID domain.JobID, jobType, displayName string, ids domain.Identifiers) (*domain.Job, error) {
	if !domain.IsKnownJobType(jobType) {
		return nil, aerr.WrapJobError("", "create", aerr.ErrInvalidJobSpec)
	}

	now := time.Now()
	job := domain.Job{
		JobID:       jobID,
		JobType:     jobType,
		State:       domain.JobStateQueued,
		DisplayName: displayName,
		CreatedAt:   now,
		Identifiers: ids,
	}

	entry := &jobEntry{
		job:    job,
		log:    newEventLog(r.eventLogCap),
		cancel: make(chan struct{}),
	}

	r.indexMu.Lock()
	if _, exists := r.jobs[job.JobID]; exists {
		r.indexMu.Unlock()
		return nil, aerr.WrapJobError(string(job.JobID), "create", aerr.ErrJobAlreadyExists)
	}
	r.jobs[job.JobID] = entry
	r.indexMu.Unlock()

	if r.persister != nil {
		if err := r.persister.Upsert(JobSnapshot{Job: job}, false); err != nil {
			r.log.Warn("failed to persist new job", "job_id", string(job.JobID), "error", err)
		}
	}
	r.metrics.ObserveJobCreated(jobType)

	return job.Clone(), nil
}

func (r *JobRegistry) lookup(jobID domain.JobID) (*jobEntry, bool) {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	e, ok := r.jobs[jobID]
	return e, ok
}

// GetJob returns a copy of the job record, or ErrJobNotFound.
func (r *JobRegistry) GetJob(jobID domain.JobID) (*domain.Job, error) {
	entry, ok := r.lookup(jobID)
	if !ok {
		return nil, aerr.NewJobNotFoundError(string(jobID))
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.job.Clone(), nil
}

// CancelJob is idempotent: it sets the cancellation latch and returns
// accepted=true iff the job existed and was non-terminal at the time of
// the call. It does not itself change job state; the worker observing
// the signal must publish the terminal event.
func (r *JobRegistry) CancelJob(jobID domain.JobID) (bool, error) {
	entry, ok := r.lookup(jobID)
	if !ok {
		return false, aerr.NewJobNotFoundError(string(jobID))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.job.State.IsTerminal() {
		return false, nil
	}

	select {
	case <-entry.cancel:
		// already canceled
	default:
		close(entry.cancel)
	}
	return true, nil
}

// CancelSignal returns a channel closed when CancelJob has been called for
// jobID, for workers to observe.
func (r *JobRegistry) CancelSignal(jobID domain.JobID) (<-chan struct{}, error) {
	entry, ok := r.lookup(jobID)
	if !ok {
		return nil, aerr.NewJobNotFoundError(string(jobID))
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.cancel, nil
}

// PublishEvent appends evt to its job's event log (evicting if at
// capacity), applies the derived-state update rule, persists, and
// broadcasts to live subscribers.
func (r *JobRegistry) PublishEvent(evt domain.JobEvent) error {
	entry, ok := r.lookup(evt.JobID)
	if !ok {
		return aerr.NewJobNotFoundError(string(evt.JobID))
	}

	entry.mu.Lock()
	entry.log.append(evt)
	flush := r.applyDerivedState(&entry.job, evt)
	snapshot := JobSnapshot{Job: entry.job, Events: entry.log.snapshot()}
	entry.mu.Unlock()

	if r.persister != nil {
		if err := r.persister.Upsert(snapshot, flush); err != nil {
			return aerr.NewPersistenceError("registry", "publish", err)
		}
	}

	r.metrics.ObserveEventPublished(evt.Kind)
	r.eventBus.Publish(string(evt.JobID), evt)
	return nil
}

// applyDerivedState mutates job according to the event kind and reports
// whether the update is terminal, which requires a synchronous flush.
func (r *JobRegistry) applyDerivedState(job *domain.Job, evt domain.JobEvent) bool {
	switch evt.Kind {
	case domain.EventKindStateChanged:
		next := evt.StateChanged.NewState
		if job.State.CanTransitionTo(next) {
			r.transition(job, next, evt.At)
		}
		return job.State.IsTerminal()

	case domain.EventKindProgress:
		if job.State == domain.JobStateQueued {
			r.transition(job, domain.JobStateRunning, evt.At)
		}
		return false

	case domain.EventKindCompleted:
		if !job.State.IsTerminal() {
			r.transition(job, domain.JobStateSuccess, evt.At)
		}
		return true

	case domain.EventKindFailed:
		if !job.State.IsTerminal() {
			r.transition(job, domain.JobStateFailed, evt.At)
		}
		return true

	default:
		return false
	}
}

func (r *JobRegistry) transition(job *domain.Job, next domain.JobState, at time.Time) {
	if job.State == domain.JobStateQueued && next != domain.JobStateQueued {
		t := at
		job.StartedAt = &t
	}
	job.State = next
	if next.IsTerminal() {
		t := at
		job.FinishedAt = &t
	}
	r.metrics.ObserveJobStateChanged(next)
}

// StreamJobEvents implements the replay-then-live coupling.
// The returned channel is closed when ctx is canceled, the job's
// broadcast topic is closed, or a short drain grace has passed after a
// terminal event was forwarded (see bus.JoinReplayLive).
func (r *JobRegistry) StreamJobEvents(ctx context.Context, jobID domain.JobID, includeHistory bool) (<-chan domain.JobEvent, error) {
	entry, ok := r.lookup(jobID)
	if !ok {
		return nil, aerr.NewJobNotFoundError(string(jobID))
	}

	// Snapshot and subscribe under the same lock so no event published
	// between snapshot and subscribe is lost or duplicated.
	entry.mu.RLock()
	var history []domain.JobEvent
	if includeHistory {
		history = entry.log.snapshot()
	}
	live, unsubscribe := r.eventBus.Subscribe(ctx, string(jobID))
	entry.mu.RUnlock()

	out := bus.JoinReplayLive(ctx, history, live, unsubscribe)
	return out, nil
}

// RemoveJob drops jobID from the index entirely. It is the retention
// worker's only write path into the registry; callers are responsible
// for only removing terminal jobs. Returns false if jobID was never known.
func (r *JobRegistry) RemoveJob(jobID domain.JobID) bool {
	r.indexMu.Lock()
	_, ok := r.jobs[jobID]
	if ok {
		delete(r.jobs, jobID)
	}
	r.indexMu.Unlock()

	if !ok {
		return false
	}
	if r.persister != nil {
		if err := r.persister.Remove(jobID); err != nil {
			r.log.Warn("failed to remove job from persistent store", "job_id", string(jobID), "error", err)
		}
	}
	return true
}

// Close releases registry resources (the broadcast bus and, if present,
// the persister).
func (r *JobRegistry) Close() error {
	r.eventBus.Close()
	if r.persister != nil {
		return r.persister.Close()
	}
	return nil
}
