// Package retention implements the retention worker: periodic and
// opportunistic trimming of terminal jobs from the registry by age
// and count, never touching active jobs.
package retention

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/jobsvc/metrics"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
	"github.com/aadk/jobflow/pkg/logger"
)

// Registry is the subset of JobRegistry the Retention Worker needs.
type Registry interface {
	ListJobs(filter registry.JobFilter, pageToken string, pageSize int) ([]*domain.Job, string, error)
	RemoveJob(jobID domain.JobID) bool
}

// Policy holds the tunables from (AADK_JOB_HISTORY_RETENTION_DAYS,
// AADK_JOB_HISTORY_MAX). Zero disables the corresponding rule.
type Policy struct {
	RetentionDays int
	MaxCompleted  int
}

// Worker periodically trims terminal jobs per Policy.
type Worker struct {
	registry Registry
	policy   Policy
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	running bool
}

// New builds a retention Worker. interval is the periodic tick cadence;
// RunOnce can additionally be called opportunistically after large inserts.
func New(registry Registry, policy Policy, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{registry: registry, policy: policy, interval: interval, log: logger.WithMode("retention")}
}

// Run blocks, running RunOnce on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce trims terminal jobs older than RetentionDays and, if MaxCompleted
// is set, drops the oldest-finished-first terminal jobs beyond that count.
// Active jobs are never candidates.
func (w *Worker) RunOnce() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	terminal := w.listTerminalJobs()
	if len(terminal) == 0 {
		return
	}

	toRemove := map[domain.JobID]bool{}

	if w.policy.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -w.policy.RetentionDays)
		for _, j := range terminal {
			if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
				toRemove[j.JobID] = true
			}
		}
	}

	if w.policy.MaxCompleted > 0 && len(terminal) > w.policy.MaxCompleted {
		sort.Slice(terminal, func(i, k int) bool {
			ti, tk := finishedAt(terminal[i]), finishedAt(terminal[k])
			return ti.Before(tk)
		})
		excess := len(terminal) - w.policy.MaxCompleted
		for _, j := range terminal[:excess] {
			toRemove[j.JobID] = true
		}
	}

	removed := 0
	for jobID := range toRemove {
		if w.registry.RemoveJob(jobID) {
			removed++
		}
	}
	if removed > 0 {
		metrics.ObserveRetentionRemoved(removed)
		w.log.Info("retention removed terminal jobs", "count", removed)
	}
}

func finishedAt(j *domain.Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.CreatedAt
}

func (w *Worker) listTerminalJobs() []*domain.Job {
	var all []*domain.Job
	for _, state := range []domain.JobState{domain.JobStateSuccess, domain.JobStateFailed, domain.JobStateCancelled} {
		token := ""
		s := state
		for {
			page, next, err := w.registry.ListJobs(registry.JobFilter{State: &s}, token, 0)
			if err != nil {
				w.log.Error("retention failed listing jobs", "state", state.String(), "error", err)
				break
			}
			all = append(all, page...)
			if next == "" {
				break
			}
			token = next
		}
	}

	return all
}
