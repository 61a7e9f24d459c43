package registry

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
	aerr "github.com/aadk/jobflow/pkg/errors"
)

// JobFilter narrows ListJobs.
type JobFilter struct {
	JobType        string
	State          *domain.JobState
	CorrelationID  domain.CorrelationID
	RunID          domain.RunID
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	FinishedAfter  *time.Time
	FinishedBefore *time.Time
}

func (f JobFilter) matches(j *domain.Job) bool {
	if f.JobType != "" && j.JobType != f.JobType {
		return false
	}
	if f.State != nil && j.State != *f.State {
		return false
	}
	if f.CorrelationID != "" && j.CorrelationID != f.CorrelationID {
		return false
	}
	if f.RunID != "" && j.RunID != f.RunID {
		return false
	}
	if f.CreatedAfter != nil && j.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !j.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.FinishedAfter != nil && (j.FinishedAt == nil || j.FinishedAt.Before(*f.FinishedAfter)) {
		return false
	}
	if f.FinishedBefore != nil && (j.FinishedAt == nil || !j.FinishedAt.Before(*f.FinishedBefore)) {
		return false
	}
	return true
}

type pageCursor struct {
	LastCreatedAt int64  `json:"c"`
	LastJobID     string `json:"j"`
}

func encodePageToken(c pageCursor) string {
	b, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(b)
}

func decodePageToken(token string) (pageCursor, error) {
	var c pageCursor
	if token == "" {
		return c, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return c, aerr.WrapJobError("", "decode_page_token", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, aerr.WrapJobError("", "decode_page_token", err)
	}
	return c, nil
}

// ListJobs returns matching jobs ordered (created_at desc, job_id asc),
// paginated by pageSize starting after pageToken.
func (r *JobRegistry) ListJobs(filter JobFilter, pageToken string, pageSize int) ([]*domain.Job, string, error) {
	cursor, err := decodePageToken(pageToken)
	if err != nil {
		return nil, "", err
	}

	r.indexMu.RLock()
	matched := make([]*domain.Job, 0, len(r.jobs))
	for _, entry := range r.jobs {
		entry.mu.RLock()
		job := entry.job
		entry.mu.RUnlock()
		if filter.matches(&job) {
			matched = append(matched, job.Clone())
		}
	}
	r.indexMu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].JobID < matched[j].JobID
	})

	start := 0
	if cursor.LastJobID != "" {
		for i, j := range matched {
			if j.CreatedAt.UnixMilli() == cursor.LastCreatedAt && string(j.JobID) == cursor.LastJobID {
				start = i + 1
				break
			}
		}
	}
	if start > len(matched) {
		start = len(matched)
	}

	if pageSize <= 0 {
		pageSize = len(matched) - start
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	page := matched[start:end]

	var nextToken string
	if end < len(matched) {
		last := page[len(page)-1]
		nextToken = encodePageToken(pageCursor{LastCreatedAt: last.CreatedAt.UnixMilli(), LastJobID: string(last.JobID)})
	}

	return page, nextToken, nil
}

// HistoryFilter narrows ListJobHistory.
type HistoryFilter struct {
	Kind   domain.EventKind
	After  *time.Time
	Before *time.Time
}

func (f HistoryFilter) matches(e domain.JobEvent) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.After != nil && e.At.Before(*f.After) {
		return false
	}
	if f.Before != nil && !e.At.Before(*f.Before) {
		return false
	}
	return true
}

// ListJobHistory returns a job's events matching filter, paginated by
// index-based page tokens over the filtered sequence.
func (r *JobRegistry) ListJobHistory(jobID domain.JobID, filter HistoryFilter, pageToken string, pageSize int) ([]domain.JobEvent, string, error) {
	entry, ok := r.lookup(jobID)
	if !ok {
		return nil, "", aerr.NewJobNotFoundError(string(jobID))
	}

	entry.mu.RLock()
	all := entry.log.snapshot()
	entry.mu.RUnlock()

	filtered := make([]domain.JobEvent, 0, len(all))
	for _, e := range all {
		if filter.matches(e) {
			filtered = append(filtered, e)
		}
	}

	start := 0
	if pageToken != "" {
		cursor, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		start = int(cursor.LastCreatedAt)
		if start < 0 || start > len(filtered) {
			start = len(filtered)
		}
	}

	if pageSize <= 0 {
		pageSize = len(filtered) - start
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	page := filtered[start:end]

	var nextToken string
	if end < len(filtered) {
		nextToken = encodePageToken(pageCursor{LastCreatedAt: int64(end)})
	}

	return page, nextToken, nil
}
