package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	p := New[int](DefaultConfig())
	defer p.Close()

	ctx := context.Background()
	ch1, unsub1 := p.Subscribe(ctx, "t")
	defer unsub1()
	ch2, unsub2 := p.Subscribe(ctx, "t")
	defer unsub2()

	p.Publish("t", 42)

	for _, ch := range []<-chan Message[int]{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, 42, msg.Payload)
			assert.Equal(t, "t", msg.Topic)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestPublishToOtherTopicIsNotDelivered(t *testing.T) {
	p := New[int](DefaultConfig())
	defer p.Close()

	ch, unsub := p.Subscribe(context.Background(), "a")
	defer unsub()

	p.Publish("b", 1)

	select {
	case msg := <-ch:
		t.Fatalf("unexpected delivery: %v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSlowSubscriberLosesOldestBufferedMessages(t *testing.T) {
	p := New[int](Config{BufferSize: 2})
	defer p.Close()

	ch, unsub := p.Subscribe(context.Background(), "t")
	defer unsub()

	for i := 1; i <= 4; i++ {
		p.Publish("t", i)
	}

	// 1 and 2 were displaced; the subscriber sees only the newest two.
	var got []int
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			got = append(got, msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out draining subscriber buffer")
		}
	}
	assert.Equal(t, []int{3, 4}, got)
}

func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	p := New[int](Config{BufferSize: 2})
	defer p.Close()

	slow, unsubSlow := p.Subscribe(context.Background(), "t")
	defer unsubSlow()
	fast, unsubFast := p.Subscribe(context.Background(), "t")
	defer unsubFast()

	var fastGot []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range fast {
			fastGot = append(fastGot, msg.Payload)
			if len(fastGot) == 4 {
				return
			}
		}
	}()

	for i := 1; i <= 4; i++ {
		p.Publish("t", i)
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber did not receive every message")
	}
	assert.Equal(t, []int{1, 2, 3, 4}, fastGot)
	assert.Len(t, slow, 2)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := New[int](DefaultConfig())
	defer p.Close()

	ch, unsub := p.Subscribe(context.Background(), "t")
	unsub()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// publishing after unsubscribe must not panic or deliver
	p.Publish("t", 9)
}

func TestContextCancelUnsubscribes(t *testing.T) {
	p := New[int](DefaultConfig())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := p.Subscribe(ctx, "t")
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestCloseShutsDownAllSubscribers(t *testing.T) {
	p := New[int](DefaultConfig())

	ch1, _ := p.Subscribe(context.Background(), "a")
	ch2, _ := p.Subscribe(context.Background(), "b")
	p.Close()

	for _, ch := range []<-chan Message[int]{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel not closed after Close")
		}
	}
}

func TestJoinReplayLiveEmitsHistoryThenLive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history := []domain.JobEvent{
		domain.NewStateChangedEvent("j", time.UnixMilli(100), domain.JobStateRunning),
		domain.NewProgressEvent("j", time.UnixMilli(110), domain.Progress{Percent: 10}),
	}

	live := make(chan Message[domain.JobEvent], 4)
	live <- Message[domain.JobEvent]{Topic: "j", Payload: domain.NewProgressEvent("j", time.UnixMilli(120), domain.Progress{Percent: 20})}

	out := JoinReplayLive(ctx, history, live, nil)

	var got []domain.JobEvent
	for i := 0; i < 3; i++ {
		select {
		case e := <-out:
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	require.Len(t, got, 3)
	assert.Equal(t, int64(100), got[0].At.UnixMilli())
	assert.Equal(t, int64(110), got[1].At.UnixMilli())
	assert.Equal(t, int64(120), got[2].At.UnixMilli())
}

func TestJoinReplayLiveDeduplicatesAcrossJoinPoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tail := domain.NewProgressEvent("j", time.UnixMilli(110), domain.Progress{Percent: 10})
	history := []domain.JobEvent{tail}

	// the same event arrives again on the live channel, as happens when it
	// was published between the history snapshot and the subscription
	live := make(chan Message[domain.JobEvent], 4)
	live <- Message[domain.JobEvent]{Topic: "j", Payload: tail}
	live <- Message[domain.JobEvent]{Topic: "j", Payload: domain.NewProgressEvent("j", time.UnixMilli(120), domain.Progress{Percent: 20})}

	out := JoinReplayLive(ctx, history, live, nil)

	var got []domain.JobEvent
	for i := 0; i < 2; i++ {
		select {
		case e := <-out:
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(110), got[0].At.UnixMilli())
	assert.Equal(t, int64(120), got[1].At.UnixMilli())
}

func TestJoinReplayLiveClosesAfterTerminalEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history := []domain.JobEvent{
		domain.NewCompletedEvent("j", time.UnixMilli(140), "ok", nil),
	}
	live := make(chan Message[domain.JobEvent])

	out := JoinReplayLive(ctx, history, live, nil)

	select {
	case e := <-out:
		assert.Equal(t, domain.EventKindCompleted, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal event")
	}

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not close after the drain grace")
	}
}
