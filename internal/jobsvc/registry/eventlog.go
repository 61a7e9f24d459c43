// Package registry implements the JobRegistry: the authoritative in-memory
// index of jobs and their bounded event histories.
package registry

import (
	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

// DefaultEventLogCapacity is the per-job history cap.
const DefaultEventLogCapacity = 1024

// eventLog is a bounded, ordered, oldest-first-eviction sequence of events
// for one job. Eviction protects StateChanged events: when full, the
// oldest non-StateChanged event is dropped first; only when every resident
// event is a StateChanged event does the oldest one get dropped.
type eventLog struct {
	capacity int
	events   []domain.JobEvent
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &eventLog{capacity: capacity}
}

func (l *eventLog) append(evt domain.JobEvent) {
	if len(l.events) >= l.capacity {
		l.evictOne()
	}
	l.events = append(l.events, evt)
}

func (l *eventLog) evictOne() {
	for i, e := range l.events {
		if e.Kind != domain.EventKindStateChanged {
			l.events = append(l.events[:i], l.events[i+1:]...)
			return
		}
	}
	// every resident event is StateChanged: drop the oldest
	if len(l.events) > 0 {
		l.events = l.events[1:]
	}
}

// snapshot returns a copy of the current event sequence, safe to read
// without holding the log's owning job lock afterward.
func (l *eventLog) snapshot() []domain.JobEvent {
	out := make([]domain.JobEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) len() int { return len(l.events) }
