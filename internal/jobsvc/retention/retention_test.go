package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
)

func newRegistry(t *testing.T) *registry.JobRegistry {
	t.Helper()
	r, err := registry.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func finishJobAt(t *testing.T, r *registry.JobRegistry, at time.Time) domain.JobID {
	t.Helper()
	job, err := r.CreateJob("demo.job", "", domain.Identifiers{})
	require.NoError(t, err)
	require.NoError(t, r.PublishEvent(domain.NewCompletedEvent(job.JobID, at, "ok", nil)))
	return job.JobID
}

func TestRunOnceTrimsTerminalJobsOlderThanRetentionDays(t *testing.T) {
	r := newRegistry(t)

	old := finishJobAt(t, r, time.Now().AddDate(0, 0, -10))
	recent := finishJobAt(t, r, time.Now())

	w := New(r, Policy{RetentionDays: 7}, time.Hour)
	w.RunOnce()

	_, err := r.GetJob(old)
	assert.Error(t, err)
	_, err = r.GetJob(recent)
	assert.NoError(t, err)
}

func TestRunOnceTrimsOldestFinishedFirstBeyondMaxCompleted(t *testing.T) {
	r := newRegistry(t)

	first := finishJobAt(t, r, time.Now().Add(-3*time.Hour))
	second := finishJobAt(t, r, time.Now().Add(-2*time.Hour))
	newest := finishJobAt(t, r, time.Now().Add(-time.Hour))

	w := New(r, Policy{MaxCompleted: 1}, time.Hour)
	w.RunOnce()

	_, err := r.GetJob(first)
	assert.Error(t, err)
	_, err = r.GetJob(second)
	assert.Error(t, err)
	_, err = r.GetJob(newest)
	assert.NoError(t, err)
}

func TestRunOnceNeverTrimsActiveJobs(t *testing.T) {
	r := newRegistry(t)

	active, err := r.CreateJob("build.run", "", domain.Identifiers{})
	require.NoError(t, err)
	require.NoError(t, r.PublishEvent(domain.NewStateChangedEvent(active.JobID, time.Now().AddDate(0, 0, -30), domain.JobStateRunning)))

	w := New(r, Policy{RetentionDays: 1, MaxCompleted: 1}, time.Hour)
	w.RunOnce()

	_, err = r.GetJob(active.JobID)
	assert.NoError(t, err)
}

func TestRunOnceWithDisabledPolicyTrimsNothing(t *testing.T) {
	r := newRegistry(t)

	done := finishJobAt(t, r, time.Now().AddDate(0, 0, -365))

	w := New(r, Policy{}, time.Hour)
	w.RunOnce()

	_, err := r.GetJob(done)
	assert.NoError(t, err)
}
