package domain

import "time"

// JobState is the lifecycle state of a Job. Terminal states (Success,
// Failed, Cancelled) are absorbing: once reached, further state payloads
// are logged but ignored.
type JobState int32

const (
	JobStateUnspecified JobState = iota
	JobStateQueued
	JobStateRunning
	JobStateSuccess
	JobStateFailed
	JobStateCancelled
)

// String renders a JobState for logging and wire encoding.
func (s JobState) String() string {
	switch s {
	case JobStateQueued:
		return "QUEUED"
	case JobStateRunning:
		return "RUNNING"
	case JobStateSuccess:
		return "SUCCESS"
	case JobStateFailed:
		return "FAILED"
	case JobStateCancelled:
		return "CANCELLED"
	default:
		return "UNSPECIFIED"
	}
}

// IsTerminal reports whether this state is absorbing.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSuccess, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// rank gives the monotonic ordering used to reject regressive transitions:
// Queued < Running < terminal. All terminal states share one rank since
// once any of them is reached the state never changes again.
func (s JobState) rank() int {
	switch s {
	case JobStateQueued:
		return 1
	case JobStateRunning:
		return 2
	case JobStateSuccess, JobStateFailed, JobStateCancelled:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether moving from s to next is a forward (or
// same-rank terminal-to-terminal, which is rejected) transition.
func (s JobState) CanTransitionTo(next JobState) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// KnownJobTypes is the registered set of job_type values create_job accepts.
// Most entries name peer-service work that lives outside this repository;
// they are enumerated here because JobRegistry must validate against them
// even though the peers themselves are out of scope.
var KnownJobTypes = map[string]bool{
	"demo.job":                       true,
	"workflow.pipeline":              true,
	"toolchain.install":              true,
	"toolchain.verify":               true,
	"toolchain.update":               true,
	"toolchain.uninstall":            true,
	"toolchain.cache_cleanup":        true,
	"project.create":                 true,
	"project.open":                   true,
	"build.run":                      true,
	"target.install":                 true,
	"target.launch":                  true,
	"target.stop":                    true,
	"target.logcat":                  true,
	"target.cuttlefish.install":      true,
	"target.cuttlefish.start":        true,
	"target.cuttlefish.stop":         true,
	"target.cuttlefish.status":       true,
	"observe.export_support_bundle":  true,
	"observe.export_evidence_bundle": true,
}

// IsKnownJobType reports whether jobType is in the registered set.
func IsKnownJobType(jobType string) bool {
	return jobType != "" && KnownJobTypes[jobType]
}

// Identifiers bundles the optional linkage ids a job may carry, plus the
// correlation/run tags used to group jobs across services.
type Identifiers struct {
	CorrelationID  CorrelationID
	RunID          RunID
	ProjectID      string
	TargetID       string
	ToolchainSetID string
}

// Job is the registry's core entity: identity, lifecycle state, timing,
// and the linkage ids that tie it to a run or correlation group.
type Job struct {
	JobID       JobID
	JobType     string
	State       JobState
	DisplayName string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	Identifiers
}

// Clone returns a deep copy of the Job so callers can't mutate registry
// state through a returned pointer.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		clone.FinishedAt = &t
	}
	return &clone
}

// IsCancelable reports whether CancelJob can still have an effect.
func (j *Job) IsCancelable() bool {
	return !j.State.IsTerminal()
}
