package runagg

import (
	"container/heap"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

// bufferedEvent pairs a JobEvent with the wall-clock time it arrived at the
// reorder buffer, which is what the release-delay clock is
// measured against (not the event's own `at` timestamp).
type bufferedEvent struct {
	event   domain.JobEvent
	arrived time.Time
	index   int
}

// eventHeap is a min-heap ordered by event.At, so its head is always the
// oldest buffered event: the only candidate for release once its delay
// window has elapsed.
type eventHeap []*bufferedEvent

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].event.At.Before(h[j].event.At) }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *eventHeap) Push(x any) {
	be := x.(*bufferedEvent)
	be.index = len(*h)
	*h = append(*h, be)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// reorderBuffer is the bounded, delay-release staging area backing
// StreamRunEvents. It is not safe for concurrent use; the
// aggregator drives it from a single goroutine.
type reorderBuffer struct {
	h        eventHeap
	capacity int
	delay    time.Duration
}

func newReorderBuffer(capacity int, delay time.Duration) *reorderBuffer {
	rb := &reorderBuffer{capacity: capacity, delay: delay}
	heap.Init(&rb.h)
	return rb
}

func (rb *reorderBuffer) len() int { return rb.h.Len() }

// insert adds evt to the buffer, arrived at now. If the buffer is now over
// capacity, it immediately evicts (pops and returns) the oldest event; a
// full buffer trades ordering for bounded memory.
func (rb *reorderBuffer) insert(evt domain.JobEvent, now time.Time) (evicted domain.JobEvent, didEvict bool) {
	heap.Push(&rb.h, &bufferedEvent{event: evt, arrived: now})
	if rb.h.Len() > rb.capacity {
		item := heap.Pop(&rb.h).(*bufferedEvent)
		return item.event, true
	}
	return domain.JobEvent{}, false
}

// releaseReady pops and returns buffered events from the head, in
// ascending event.At order, for as long as the current head's delay window
// has elapsed as of now. It stops at the first head still inside its
// window, even if events behind it have already waited long enough.
func (rb *reorderBuffer) releaseReady(now time.Time) []domain.JobEvent {
	var out []domain.JobEvent
	for rb.h.Len() > 0 {
		head := rb.h[0]
		if now.Sub(head.arrived) < rb.delay {
			break
		}
		out = append(out, heap.Pop(&rb.h).(*bufferedEvent).event)
	}
	return out
}

// drainAll empties the buffer in timestamp order, regardless of delay. Used
// when the aggregator is shutting down and must not silently swallow
// buffered events.
func (rb *reorderBuffer) drainAll() []domain.JobEvent {
	out := make([]domain.JobEvent, 0, rb.h.Len())
	for rb.h.Len() > 0 {
		out = append(out, heap.Pop(&rb.h).(*bufferedEvent).event)
	}
	return out
}
