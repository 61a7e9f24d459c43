package server

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	aerr "github.com/aadk/jobflow/pkg/errors"
)

// convertErrorToGRPCStatus maps a domain/registry error to the gRPC
// status taxonomy.
func convertErrorToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case aerr.IsContextError(err):
		return status.Errorf(codes.DeadlineExceeded, "%v", err)
	case aerr.IsNotFoundError(err):
		return status.Errorf(codes.NotFound, "%v", err)
	case aerr.IsConflictError(err):
		return status.Errorf(codes.AlreadyExists, "%v", err)
	case aerr.IsPermissionError(err):
		return status.Errorf(codes.PermissionDenied, "%v", err)
	case aerr.IsTimeoutError(err):
		return status.Errorf(codes.DeadlineExceeded, "%v", err)
	case aerr.IsJobError(err), aerr.IsRunError(err):
		// JobError/RunError wrap an invalid-argument sentinel (unknown or
		// empty job_type, malformed run spec) unless already classified
		// above (not-found, already-exists), so what's left here is an
		// input rejection.
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case aerr.IsPersistenceError(err):
		return status.Errorf(codes.Unavailable, "%v", err)
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
