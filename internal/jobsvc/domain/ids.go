// Package domain holds the core types shared by the job registry, event
// bus, run aggregator, and persistent store: jobs, events, and the
// identifiers that tie them together.
package domain

import "github.com/google/uuid"

// JobID uniquely identifies a job for its entire lifetime.
type JobID string

// RunID groups the jobs belonging to one workflow pipeline execution.
type RunID string

// CorrelationID is an opaque caller-supplied tag carried on a job record
// (and optionally on a Failed event's ErrorDetail) to group related jobs
// across services.
type CorrelationID string

// NewJobID generates a fresh, random JobID.
func NewJobID() JobID {
	return JobID(uuid.NewString())
}

// NewRunID generates a fresh, random RunID.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}
