// Package server implements the JobService RPC facade over
// the JobRegistry, Event Bus, and Run Aggregator.
package server

import (
	"context"
	"time"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/jobsvc/registry"
	"github.com/aadk/jobflow/internal/jobsvc/runagg"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/aadk/jobflow/pkg/logger"
)

// JobService implements api.JobServiceServer.
type JobService struct {
	registry *registry.JobRegistry
	agg      *runagg.Aggregator
	log      *logger.Logger
}

// New builds a JobService over reg and agg.
func New(reg *registry.JobRegistry, agg *runagg.Aggregator) *JobService {
	return &JobService{registry: reg, agg: agg, log: logger.WithMode("jobservice")}
}

var _ api.JobServiceServer = (*JobService)(nil)

// StartJob creates a new job. If req.JobID is set, it is honored as a
// pre-reserved job ID; otherwise a fresh one is assigned.
func (s *JobService) StartJob(ctx context.Context, req *api.StartJobRequest) (*api.StartJobResponse, error) {
	ids := api.IdentifiersFromRequest(req.CorrelationID, req.RunID, req.ProjectID, req.TargetID, req.ToolchainSetID)

	var job *domain.Job
	var err error
	if req.JobID != "" {
		job, err = s.registry.CreateJobWithID(domain.JobID(req.JobID), req.JobType, req.DisplayName, ids)
	} else {
		job, err = s.registry.CreateJob(req.JobType, req.DisplayName, ids)
	}
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	return &api.StartJobResponse{Job: api.JobToWire(job)}, nil
}

// GetJob returns the current job record.
func (s *JobService) GetJob(ctx context.Context, req *api.GetJobRequest) (*api.GetJobResponse, error) {
	if req.JobID == "" {
		return nil, convertErrorToGRPCStatus(aerr.WrapJobError("", "get", aerr.ErrInvalidJobSpec))
	}
	job, err := s.registry.GetJob(domain.JobID(req.JobID))
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	return &api.GetJobResponse{Job: api.JobToWire(job)}, nil
}

// CancelJob sets the job's cancellation latch. It is idempotent and
// never errors on an already-terminal job; it returns accepted=false
// instead of a state-conflict error.
func (s *JobService) CancelJob(ctx context.Context, req *api.CancelJobRequest) (*api.CancelJobResponse, error) {
	if req.JobID == "" {
		return nil, convertErrorToGRPCStatus(aerr.WrapJobError("", "cancel", aerr.ErrInvalidJobSpec))
	}
	accepted, err := s.registry.CancelJob(domain.JobID(req.JobID))
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	return &api.CancelJobResponse{Accepted: accepted}, nil
}

// PublishJobEvent appends an event to the named job.
func (s *JobService) PublishJobEvent(ctx context.Context, req *api.PublishJobEventRequest) (*api.PublishJobEventResponse, error) {
	evt := api.JobEventFromWire(req.Event)
	if evt.JobID == "" {
		return nil, convertErrorToGRPCStatus(aerr.WrapJobError("", "publish", aerr.ErrInvalidJobSpec))
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	if err := s.registry.PublishEvent(evt); err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	return &api.PublishJobEventResponse{}, nil
}

// ListJobs returns a page of jobs matching the given filter.
func (s *JobService) ListJobs(ctx context.Context, req *api.ListJobsRequest) (*api.ListJobsResponse, error) {
	filter := registry.JobFilter{
		JobType:       req.JobType,
		CorrelationID: domain.CorrelationID(req.CorrelationID),
		RunID:         domain.RunID(req.RunID),
	}
	if req.State != nil {
		st := api.JobStateToDomain(*req.State)
		filter.State = &st
	}
	if req.CreatedAfterMillis != nil {
		t := time.UnixMilli(*req.CreatedAfterMillis)
		filter.CreatedAfter = &t
	}
	if req.CreatedBeforeMillis != nil {
		t := time.UnixMilli(*req.CreatedBeforeMillis)
		filter.CreatedBefore = &t
	}

	jobs, next, err := s.registry.ListJobs(filter, req.PageToken, int(req.PageSize))
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}

	resp := &api.ListJobsResponse{NextPageToken: next}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, api.JobToWire(j))
	}
	return resp, nil
}

// ListJobHistory returns a page of one job's event history.
func (s *JobService) ListJobHistory(ctx context.Context, req *api.ListJobHistoryRequest) (*api.ListJobHistoryResponse, error) {
	if req.JobID == "" {
		return nil, convertErrorToGRPCStatus(aerr.WrapJobError("", "list_history", aerr.ErrInvalidJobSpec))
	}
	filter := registry.HistoryFilter{Kind: domain.EventKind(req.Kind)}
	if req.AfterMillis != nil {
		t := time.UnixMilli(*req.AfterMillis)
		filter.After = &t
	}
	if req.BeforeMillis != nil {
		t := time.UnixMilli(*req.BeforeMillis)
		filter.Before = &t
	}

	events, next, err := s.registry.ListJobHistory(domain.JobID(req.JobID), filter, req.PageToken, int(req.PageSize))
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}

	resp := &api.ListJobHistoryResponse{NextPageToken: next}
	for _, e := range events {
		resp.Events = append(resp.Events, api.JobEventToWire(e))
	}
	return resp, nil
}

// StreamJobEvents streams replay-then-live events over a single job.
func (s *JobService) StreamJobEvents(req *api.StreamJobEventsRequest, stream api.JobService_StreamJobEventsServer) error {
	if req.JobID == "" {
		return convertErrorToGRPCStatus(aerr.WrapJobError("", "stream", aerr.ErrInvalidJobSpec))
	}

	events, err := s.registry.StreamJobEvents(stream.Context(), domain.JobID(req.JobID), req.IncludeHistory)
	if err != nil {
		return convertErrorToGRPCStatus(err)
	}

	for evt := range events {
		wire := api.JobEventToWire(evt)
		if err := stream.Send(&wire); err != nil {
			return err
		}
	}
	return nil
}

// StreamRunEvents streams the merged, best-effort-ordered event
// stream over every job sharing a run or correlation identity.
func (s *JobService) StreamRunEvents(req *api.StreamRunEventsRequest, stream api.JobService_StreamRunEventsServer) error {
	identity := runagg.Identity{RunID: domain.RunID(req.RunID), CorrelationID: domain.CorrelationID(req.CorrelationID)}
	if identity.RunID == "" && identity.CorrelationID == "" {
		return convertErrorToGRPCStatus(aerr.WrapRunError("", "stream", aerr.ErrInvalidRunSpec))
	}

	events, err := s.agg.StreamRunEvents(stream.Context(), identity, req.IncludeHistory)
	if err != nil {
		return convertErrorToGRPCStatus(err)
	}

	for evt := range events {
		wire := api.JobEventToWire(evt)
		if err := stream.Send(&wire); err != nil {
			return err
		}
	}
	return nil
}
