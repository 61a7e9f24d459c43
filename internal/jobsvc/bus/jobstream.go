package bus

import (
	"context"
	"time"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

// terminalDrainGrace is how long a job stream stays open after a terminal
// event has been forwarded, so that events published in the same burst are
// still delivered before the stream closes.
const terminalDrainGrace = 250 * time.Millisecond

// JoinReplayLive implements the replay-then-live coupling:
// it first emits every event in history (captured as a consistent
// snapshot by the caller, under the same lock that opened the live
// subscription), then forwards live events, suppressing any live event
// that duplicates the tail of history across the join point.
//
// The returned channel is closed when ctx is done, live is closed, or the
// drain grace has elapsed after a terminal event was forwarded. done, if
// non-nil, runs as the stream shuts down; callers use it to release the
// live subscription.
func JoinReplayLive(ctx context.Context, history []domain.JobEvent, live <-chan Message[domain.JobEvent], done func()) <-chan domain.JobEvent {
	out := make(chan domain.JobEvent)

	go func() {
		defer close(out)
		if done != nil {
			defer done()
		}

		var drain <-chan time.Time
		armDrain := func(evt domain.JobEvent) {
			if drain == nil && evt.IsTerminal() {
				drain = time.After(terminalDrainGrace)
			}
		}

		var lastReplayed *domain.JobEvent
		for _, evt := range history {
			e := evt
			select {
			case out <- e:
				lastReplayed = &e
				armDrain(e)
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-drain:
				return
			case msg, ok := <-live:
				if !ok {
					return
				}
				evt := msg.Payload
				if lastReplayed != nil && !evt.At.After(lastReplayed.At) && evt.Equal(*lastReplayed) {
					continue
				}
				select {
				case out <- evt:
					armDrain(evt)
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
