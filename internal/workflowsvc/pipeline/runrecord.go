package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	aerr "github.com/aadk/jobflow/pkg/errors"
)

// Run result values, mirrored on the wire as RunRecord.Result.
const (
	ResultRunning   = "RUNNING"
	ResultSuccess   = "SUCCESS"
	ResultFailed    = "FAILED"
	ResultCancelled = "CANCELLED"
)

// RunRecord is the aggregate status of one pipeline execution.
type RunRecord struct {
	RunID          domain.RunID
	CorrelationID  domain.CorrelationID
	ProjectID      string
	TargetID       string
	ToolchainSetID string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Result         string
	JobIDs         []domain.JobID
	Summary        map[string]string
}

// Store persists RunRecords for a process's lifetime. Upsert merges
// rather than replaces: a later call with a subset of fields never
// regresses one already recorded.
type Store interface {
	Upsert(rec RunRecord) error
	Get(runID domain.RunID) (RunRecord, error)
	List(pageToken string, pageSize int) ([]RunRecord, string, error)
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu      sync.RWMutex
	records map[domain.RunID]RunRecord
	order   []domain.RunID
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[domain.RunID]RunRecord)}
}

// Upsert merges rec into any existing record for rec.RunID: job ids
// accumulate, the first recorded StartedAt is kept, and Result/FinishedAt/
// Summary from rec take precedence when set, since callers only upsert with
// fresher state.
func (s *MemStore) Upsert(rec RunRecord) error {
	if rec.RunID == "" {
		return aerr.WrapRunError("", "upsert", aerr.ErrInvalidRunSpec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.RunID]
	if !ok {
		s.order = append(s.order, rec.RunID)
		s.records[rec.RunID] = rec
		return nil
	}

	merged := existing
	if rec.Result != "" {
		merged.Result = rec.Result
	}
	if rec.FinishedAt != nil {
		merged.FinishedAt = rec.FinishedAt
	}
	if len(rec.Summary) > 0 {
		if merged.Summary == nil {
			merged.Summary = map[string]string{}
		}
		for k, v := range rec.Summary {
			merged.Summary[k] = v
		}
	}
	merged.JobIDs = unionJobIDs(existing.JobIDs, rec.JobIDs)
	if rec.ProjectID != "" {
		merged.ProjectID = rec.ProjectID
	}
	if rec.TargetID != "" {
		merged.TargetID = rec.TargetID
	}
	if rec.ToolchainSetID != "" {
		merged.ToolchainSetID = rec.ToolchainSetID
	}
	s.records[rec.RunID] = merged
	return nil
}

// Get returns the record for runID.
func (s *MemStore) Get(runID domain.RunID) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	if !ok {
		return RunRecord{}, aerr.WrapRunError(string(runID), "get", aerr.ErrRunNotFound)
	}
	return rec, nil
}

// List returns records oldest-first, paginated with an opaque numeric
// offset token (there is no reordering concern here the way there is for
// job history, since a run's position never changes once created).
func (s *MemStore) List(pageToken string, pageSize int) ([]RunRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "%d", &offset); err != nil {
			return nil, "", aerr.WrapRunError("", "list", aerr.ErrInvalidRunSpec)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.order) {
		return nil, "", nil
	}
	end := offset + pageSize
	if end > len(s.order) {
		end = len(s.order)
	}
	out := make([]RunRecord, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, s.records[id])
	}
	next := ""
	if end < len(s.order) {
		next = fmt.Sprintf("%d", end)
	}
	return out, next, nil
}

func unionJobIDs(a, b []domain.JobID) []domain.JobID {
	seen := make(map[domain.JobID]bool, len(a)+len(b))
	out := make([]domain.JobID, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
