package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
	"github.com/aadk/jobflow/internal/jobsvc/runagg"
)

func newTestJobService(t *testing.T) *JobService {
	t.Helper()
	reg, err := registry.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	agg := runagg.New(reg, runagg.DefaultConfig())
	return New(reg, agg)
}

func TestJobServiceStartJobRejectsUnknownType(t *testing.T) {
	s := newTestJobService(t)
	_, err := s.StartJob(context.Background(), &api.StartJobRequest{JobType: "nope"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestJobServiceStartJobHonorsPreReservedID(t *testing.T) {
	s := newTestJobService(t)
	resp, err := s.StartJob(context.Background(), &api.StartJobRequest{JobType: "demo.job", JobID: "fixed-id"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", resp.Job.JobID)

	_, err = s.StartJob(context.Background(), &api.StartJobRequest{JobType: "demo.job", JobID: "fixed-id"})
	require.Error(t, err)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestJobServiceGetCancelRoundTrip(t *testing.T) {
	s := newTestJobService(t)
	started, err := s.StartJob(context.Background(), &api.StartJobRequest{JobType: "toolchain.install"})
	require.NoError(t, err)

	got, err := s.GetJob(context.Background(), &api.GetJobRequest{JobID: started.Job.JobID})
	require.NoError(t, err)
	assert.Equal(t, api.JobStateQueued, got.Job.State)

	cancelResp, err := s.CancelJob(context.Background(), &api.CancelJobRequest{JobID: started.Job.JobID})
	require.NoError(t, err)
	assert.True(t, cancelResp.Accepted)

	// the job is still non-terminal, so a repeated cancel is accepted again
	cancelResp, err = s.CancelJob(context.Background(), &api.CancelJobRequest{JobID: started.Job.JobID})
	require.NoError(t, err)
	assert.True(t, cancelResp.Accepted)
}

func TestJobServiceGetUnknownJobNotFound(t *testing.T) {
	s := newTestJobService(t)
	_, err := s.GetJob(context.Background(), &api.GetJobRequest{JobID: "missing"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestJobServicePublishAndListHistory(t *testing.T) {
	s := newTestJobService(t)
	started, err := s.StartJob(context.Background(), &api.StartJobRequest{JobType: "demo.job"})
	require.NoError(t, err)

	_, err = s.PublishJobEvent(context.Background(), &api.PublishJobEventRequest{
		Event: api.JobEvent{JobID: started.Job.JobID, Kind: "progress", At: 1000, Progress: &api.Progress{Percent: 50, Phase: "build"}},
	})
	require.NoError(t, err)

	hist, err := s.ListJobHistory(context.Background(), &api.ListJobHistoryRequest{JobID: started.Job.JobID})
	require.NoError(t, err)
	require.Len(t, hist.Events, 1)
	assert.Equal(t, "progress", hist.Events[0].Kind)
}

func TestJobServiceListJobsFiltersByType(t *testing.T) {
	s := newTestJobService(t)
	_, err := s.StartJob(context.Background(), &api.StartJobRequest{JobType: "demo.job"})
	require.NoError(t, err)
	_, err = s.StartJob(context.Background(), &api.StartJobRequest{JobType: "build.run"})
	require.NoError(t, err)

	resp, err := s.ListJobs(context.Background(), &api.ListJobsRequest{JobType: "build.run"})
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "build.run", resp.Jobs[0].JobType)
}
