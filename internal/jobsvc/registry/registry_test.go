package registry

import (
	"context"
	"testing"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *JobRegistry {
	t.Helper()
	r, err := New(nil)
	require.NoError(t, err)
	return r
}

func TestCreateJobRejectsUnknownType(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.CreateJob("not.a.real.type", "", domain.Identifiers{})
	require.Error(t, err)
	assert.True(t, aerr.IsJobError(err))
}

func TestCreateJobRejectsEmptyType(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.CreateJob("", "", domain.Identifiers{})
	require.Error(t, err)
}

func TestScenarioStartAndStreamDemoJob(t *testing.T) {
	r := newTestRegistry(t)
	job, err := r.CreateJob("demo.job", "demo", domain.Identifiers{})
	require.NoError(t, err)

	base := time.UnixMilli(100)
	events := []domain.JobEvent{
		domain.NewStateChangedEvent(job.JobID, base, domain.JobStateRunning),
		domain.NewProgressEvent(job.JobID, time.UnixMilli(110), domain.Progress{Percent: 33}),
		domain.NewProgressEvent(job.JobID, time.UnixMilli(120), domain.Progress{Percent: 66}),
		domain.NewProgressEvent(job.JobID, time.UnixMilli(130), domain.Progress{Percent: 99}),
		domain.NewCompletedEvent(job.JobID, time.UnixMilli(140), "ok", nil),
	}
	for _, e := range events {
		require.NoError(t, r.PublishEvent(e))
	}

	got, err := r.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateSuccess, got.State)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, int64(140), got.FinishedAt.UnixMilli())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stream, err := r.StreamJobEvents(ctx, job.JobID, true)
	require.NoError(t, err)

	var replayed []domain.JobEvent
	for i := 0; i < len(events); i++ {
		select {
		case e := <-stream:
			replayed = append(replayed, e)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replayed event")
		}
	}
	require.Len(t, replayed, 5)
	for i, e := range replayed {
		assert.Equal(t, events[i].Kind, e.Kind)
	}
}

func TestScenarioCancelMidFlight(t *testing.T) {
	r := newTestRegistry(t)
	job, err := r.CreateJob("toolchain.install", "", domain.Identifiers{})
	require.NoError(t, err)

	require.NoError(t, r.PublishEvent(domain.NewStateChangedEvent(job.JobID, time.UnixMilli(100), domain.JobStateRunning)))
	require.NoError(t, r.PublishEvent(domain.NewProgressEvent(job.JobID, time.UnixMilli(120), domain.Progress{Percent: 10})))

	accepted, err := r.CancelJob(job.JobID)
	require.NoError(t, err)
	assert.True(t, accepted)

	sig, err := r.CancelSignal(job.JobID)
	require.NoError(t, err)
	select {
	case <-sig:
	default:
		t.Fatal("expected cancel signal to be closed")
	}

	require.NoError(t, r.PublishEvent(domain.NewFailedEvent(job.JobID, time.UnixMilli(130), domain.ErrorDetail{Code: domain.ErrorCodeCancelled})))

	accepted, err = r.CancelJob(job.JobID)
	require.NoError(t, err)
	assert.False(t, accepted)

	got, err := r.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, got.State)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, int64(130), got.FinishedAt.UnixMilli())
}

func TestStateTransitionsAreMonotonic(t *testing.T) {
	r := newTestRegistry(t)
	job, err := r.CreateJob("demo.job", "", domain.Identifiers{})
	require.NoError(t, err)

	require.NoError(t, r.PublishEvent(domain.NewCompletedEvent(job.JobID, time.UnixMilli(100), "ok", nil)))
	got, _ := r.GetJob(job.JobID)
	assert.Equal(t, domain.JobStateSuccess, got.State)

	// a regressive StateChanged after terminal must not change state
	require.NoError(t, r.PublishEvent(domain.NewStateChangedEvent(job.JobID, time.UnixMilli(200), domain.JobStateRunning)))
	got, _ = r.GetJob(job.JobID)
	assert.Equal(t, domain.JobStateSuccess, got.State)
}

func TestEventLogEvictionProtectsStateChanged(t *testing.T) {
	r := newTestRegistry(t)
	job, err := r.CreateJob("demo.job", "", domain.Identifiers{})
	require.NoError(t, err)

	entry, ok := r.lookup(job.JobID)
	require.True(t, ok)
	entry.log.capacity = 2

	require.NoError(t, r.PublishEvent(domain.NewStateChangedEvent(job.JobID, time.UnixMilli(1), domain.JobStateRunning)))
	require.NoError(t, r.PublishEvent(domain.NewProgressEvent(job.JobID, time.UnixMilli(2), domain.Progress{Percent: 1})))
	require.NoError(t, r.PublishEvent(domain.NewProgressEvent(job.JobID, time.UnixMilli(3), domain.Progress{Percent: 2})))

	entry.mu.RLock()
	snap := entry.log.snapshot()
	entry.mu.RUnlock()

	require.Len(t, snap, 2)
	assert.Equal(t, domain.EventKindStateChanged, snap[0].Kind)
}

func TestListJobsOrderingAndPagination(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 5; i++ {
		_, err := r.CreateJob("demo.job", "", domain.Identifiers{})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	var all []*domain.Job
	token := ""
	for {
		page, next, err := r.ListJobs(JobFilter{}, token, 2)
		require.NoError(t, err)
		all = append(all, page...)
		if next == "" {
			break
		}
		token = next
	}

	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
}

func TestGetCancelPublishUnknownJobNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.GetJob("missing")
	assert.True(t, aerr.IsNotFoundError(err))

	_, err = r.CancelJob("missing")
	assert.True(t, aerr.IsNotFoundError(err))

	err = r.PublishEvent(domain.NewProgressEvent("missing", time.Now(), domain.Progress{}))
	assert.True(t, aerr.IsNotFoundError(err))
}
