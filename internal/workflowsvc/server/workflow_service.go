// Package server implements the WorkflowService RPC facade over the
// pipeline Runner, analogous to internal/jobsvc/server's JobService
// facade.
package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aadk/jobflow/api"
	"github.com/aadk/jobflow/internal/jobsvc/domain"
	"github.com/aadk/jobflow/internal/peers"
	"github.com/aadk/jobflow/internal/workflowsvc/pipeline"
	aerr "github.com/aadk/jobflow/pkg/errors"
	"github.com/aadk/jobflow/pkg/logger"
)

// WorkflowService implements api.WorkflowServiceServer over a pipeline.Runner.
type WorkflowService struct {
	runner *pipeline.Runner
	store  pipeline.Store
	log    *logger.Logger
}

var _ api.WorkflowServiceServer = (*WorkflowService)(nil)

// New builds a WorkflowService that dispatches pipeline steps to stub
// peers through jobs, and records run state in store.
func New(jobs api.JobServiceClient, store pipeline.Store) *WorkflowService {
	adapter := &jobClientAdapter{jobs: jobs}
	runner := pipeline.New(adapter, peers.New(jobs), adapter, store)
	return &WorkflowService{runner: runner, store: store, log: logger.WithMode("workflowservice")}
}

// RunPipeline kicks off a pipeline run and returns immediately with its
// run ID and parent job ID, leaving clients to watch progress via
// JobService.StreamRunEvents.
func (s *WorkflowService) RunPipeline(ctx context.Context, req *api.RunPipelineRequest) (*api.RunPipelineResponse, error) {
	pr := pipeline.Request{
		RunID:          domain.RunID(req.RunID),
		CorrelationID:  domain.CorrelationID(req.CorrelationID),
		ProjectID:      req.ProjectID,
		TargetID:       req.TargetID,
		ToolchainSetID: req.ToolchainSetID,
		ProjectName:    req.ProjectName,
	}
	runID, parentJobID, err := s.runner.RunPipeline(ctx, pr, req.Steps)
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	return &api.RunPipelineResponse{RunID: string(runID), ParentJobID: string(parentJobID)}, nil
}

// GetRun returns a single run record.
func (s *WorkflowService) GetRun(ctx context.Context, req *api.GetRunRequest) (*api.GetRunResponse, error) {
	if req.RunID == "" {
		return nil, convertErrorToGRPCStatus(aerr.WrapRunError("", "get_run", aerr.ErrInvalidRunSpec))
	}
	rec, err := s.store.Get(domain.RunID(req.RunID))
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	return &api.GetRunResponse{Run: runRecordToWire(rec)}, nil
}

// CancelRun requests cancellation of a run: it propagates to the
// in-flight step's child job only, not the whole already-dispatched
// job set.
func (s *WorkflowService) CancelRun(ctx context.Context, req *api.CancelRunRequest) (*api.CancelRunResponse, error) {
	if req.RunID == "" {
		return nil, convertErrorToGRPCStatus(aerr.WrapRunError("", "cancel_run", aerr.ErrInvalidRunSpec))
	}
	accepted := s.runner.CancelRun(domain.RunID(req.RunID))
	return &api.CancelRunResponse{Accepted: accepted}, nil
}

// ListRuns returns a page of run records.
func (s *WorkflowService) ListRuns(ctx context.Context, req *api.ListRunsRequest) (*api.ListRunsResponse, error) {
	recs, next, err := s.store.List(req.PageToken, int(req.PageSize))
	if err != nil {
		return nil, convertErrorToGRPCStatus(err)
	}
	resp := &api.ListRunsResponse{NextPageToken: next}
	for _, rec := range recs {
		resp.Runs = append(resp.Runs, runRecordToWire(rec))
	}
	return resp, nil
}

func runRecordToWire(rec pipeline.RunRecord) api.RunRecord {
	jobIDs := make([]string, 0, len(rec.JobIDs))
	for _, id := range rec.JobIDs {
		jobIDs = append(jobIDs, string(id))
	}
	return api.RunRecordToWire(
		string(rec.RunID), string(rec.CorrelationID), rec.ProjectID, rec.TargetID, rec.ToolchainSetID,
		rec.StartedAt, rec.FinishedAt, rec.Result, jobIDs, rec.Summary,
	)
}

// convertErrorToGRPCStatus mirrors internal/jobsvc/server's error
// classification for the run-record/pipeline error taxonomy.
func convertErrorToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case aerr.IsNotFoundError(err):
		return status.Errorf(codes.NotFound, "%v", err)
	case aerr.IsRunError(err), aerr.IsPipelineError(err):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
