// Package runagg implements the run aggregator: a subscriber factory
// that merges the event streams of every job sharing a run or
// correlation identity into one best-effort, timestamp-ordered stream.
package runagg

import (
	"context"
	"sync"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/jobsvc/metrics"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/aadk/jobflow/pkg/logger"
)

// Config holds the reorder-buffer and discovery tunables.
type Config struct {
	BufferMax  int
	MaxDelay   time.Duration
	Discovery  time.Duration
	FlushEvery time.Duration
}

// DefaultConfig returns the baseline tunables (BUFFER_MAX=512,
// MAX_DELAY_MS=1500, DISCOVERY_MS=750, FLUSH_MS=200).
func DefaultConfig() Config {
	return Config{
		BufferMax:  512,
		MaxDelay:   1500 * time.Millisecond,
		Discovery:  750 * time.Millisecond,
		FlushEvery: 200 * time.Millisecond,
	}
}

// JobStreamer is the subset of JobRegistry the aggregator subscribes
// through: the per-job replay-then-live path.
type JobStreamer interface {
	StreamJobEvents(ctx context.Context, jobID domain.JobID, includeHistory bool) (<-chan domain.JobEvent, error)
}

// JobLister is the subset of JobRegistry used for member discovery.
type JobLister interface {
	ListJobs(filter registry.JobFilter, pageToken string, pageSize int) ([]*domain.Job, string, error)
}

// Registry is everything the aggregator needs from JobRegistry.
type Registry interface {
	JobStreamer
	JobLister
}

// Identity is the run or correlation identity a client subscribes to.
// Exactly one field should be set; RunID takes precedence if both are.
type Identity struct {
	RunID         domain.RunID
	CorrelationID domain.CorrelationID
}

func (id Identity) filter() registry.JobFilter {
	if id.RunID != "" {
		return registry.JobFilter{RunID: id.RunID}
	}
	return registry.JobFilter{CorrelationID: id.CorrelationID}
}

// Aggregator runs StreamRunEvents subscriptions against a Registry.
type Aggregator struct {
	r   Registry
	cfg Config
	log *logger.Logger
}

// New builds an Aggregator over r.
func New(r Registry, cfg Config) *Aggregator {
	if cfg.BufferMax <= 0 {
		cfg = DefaultConfig()
	}
	return &Aggregator{r: r, cfg: cfg, log: logger.WithMode("runagg")}
}

// memberState tracks one discovered job's streaming subscription.
type memberState struct {
	cancel context.CancelFunc
	done   <-chan struct{}
}

// StreamRunEvents discovers the jobs matching id, subscribes to each via
// the per-job replay-then-live path, merges arrivals through a bounded
// reorder buffer, and periodically rescans for late joiners. The returned
// channel is closed when ctx is done, or once every member job (and the
// workflow.pipeline parent, if any) is terminal and the buffer has stayed
// empty for two consecutive flush ticks.
func (a *Aggregator) StreamRunEvents(ctx context.Context, id Identity, includeHistory bool) (<-chan domain.JobEvent, error) {
	if id.RunID == "" && id.CorrelationID == "" {
		return nil, aerr.WrapRunError("", "stream", aerr.ErrInvalidRunSpec)
	}

	out := make(chan domain.JobEvent)
	ctx, cancel := context.WithCancel(ctx)

	arrivals := make(chan domain.JobEvent, a.cfg.BufferMax)
	members := make(map[domain.JobID]*memberState)
	var membersMu sync.Mutex

	subscribeTo := func(job *domain.Job) {
		membersMu.Lock()
		if _, ok := members[job.JobID]; ok {
			membersMu.Unlock()
			return
		}
		memberCtx, memberCancel := context.WithCancel(ctx)
		done := make(chan struct{})
		members[job.JobID] = &memberState{cancel: memberCancel, done: done}
		membersMu.Unlock()

		stream, err := a.r.StreamJobEvents(memberCtx, job.JobID, includeHistory)
		if err != nil {
			a.log.Warn("run aggregator failed to subscribe to member job", "job_id", string(job.JobID), "error", err)
			close(done)
			memberCancel()
			return
		}

		go func() {
			defer close(done)
			for {
				select {
				case evt, ok := <-stream:
					if !ok {
						return
					}
					select {
					case arrivals <- evt:
					case <-memberCtx.Done():
						return
					}
				case <-memberCtx.Done():
					return
				}
			}
		}()
	}

	discover := func() {
		token := ""
		for {
			page, next, err := a.r.ListJobs(id.filter(), token, 0)
			if err != nil {
				a.log.Warn("run aggregator discovery failed", "error", err)
				return
			}
			for _, job := range page {
				subscribeTo(job)
			}
			if next == "" {
				return
			}
			token = next
		}
	}

	discover()

	go a.run(ctx, cancel, out, arrivals, discover, func() bool {
		return a.allMembersTerminal(id)
	})

	return out, nil
}

// run drives the reorder buffer, discovery rescans, and shutdown
// conditions from a single goroutine, per the cooperative-producer model
// design note.
func (a *Aggregator) run(ctx context.Context, cancel context.CancelFunc, out chan<- domain.JobEvent, arrivals <-chan domain.JobEvent, discover func(), allTerminal func() bool) {
	defer cancel()
	defer close(out)

	buf := newReorderBuffer(a.cfg.BufferMax, a.cfg.MaxDelay)

	discoveryTicker := time.NewTicker(a.cfg.Discovery)
	defer discoveryTicker.Stop()
	flushTicker := time.NewTicker(a.cfg.FlushEvery)
	defer flushTicker.Stop()

	emit := func(evt domain.JobEvent) bool {
		select {
		case out <- evt:
			return true
		case <-ctx.Done():
			return false
		}
	}

	quiesce := 0
	for {
		select {
		case <-ctx.Done():
			drained := buf.drainAll()
			metrics.AddBufferDepth(-len(drained))
			for _, evt := range drained {
				if !emit(evt) {
					return
				}
			}
			return

		case evt := <-arrivals:
			evicted, did := buf.insert(evt, time.Now())
			metrics.AddBufferDepth(1)
			if did {
				metrics.AddBufferDepth(-1)
				if !emit(evicted) {
					return
				}
			}
			quiesce = 0

		case <-discoveryTicker.C:
			discover()

		case <-flushTicker.C:
			released := buf.releaseReady(time.Now())
			metrics.AddBufferDepth(-len(released))
			for _, evt := range released {
				if !emit(evt) {
					return
				}
			}
			if buf.len() == 0 && allTerminal() {
				quiesce++
			} else {
				quiesce = 0
			}
			// Require two consecutive quiet flush ticks before closing, so
			// a member job that terminates in the same tick as a late
			// Completed/Failed event still gets a chance to be observed.
			if quiesce >= 2 {
				return
			}
		}
	}
}

func (a *Aggregator) allMembersTerminal(id Identity) bool {
	page, _, err := a.r.ListJobs(id.filter(), "", 0)
	if err != nil {
		return false
	}
	if len(page) == 0 {
		return false
	}

	var parent *domain.Job
	for _, j := range page {
		if j.JobType == "workflow.pipeline" {
			parent = j
		}
		if !j.State.IsTerminal() {
			return false
		}
	}
	return parent == nil || parent.State.IsTerminal()
}
