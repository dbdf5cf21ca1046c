package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rapidphoto/internal/model"
)

func collect(sub *Subscription, n int) []model.ProgressEvent {
	events := make([]model.ProgressEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestSubscribeDeliversConnectedEvent(t *testing.T) {
	b := New(0, 0)
	sub := b.Subscribe("job-1")
	defer b.Unsubscribe(sub)

	events := collect(sub, 1)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventConnected, events[0].Type)
	assert.Equal(t, "job-1", events[0].JobID)
	assert.Equal(t, uint64(0), events[0].Sequence)
}

func TestPublishOrderAndSequence(t *testing.T) {
	b := New(0, 0)
	sub := b.Subscribe("job-1")
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	}

	events := collect(sub, 6)
	require.Len(t, events, 6)

	// connected first, then the published events in order with gapless
	// increasing sequence numbers
	assert.Equal(t, model.EventConnected, events[0].Type)
	for i, ev := range events[1:] {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(0, 0)
	sub1 := b.Subscribe("job-1")
	sub2 := b.Subscribe("job-1")
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish("job-1", model.ProgressEvent{Type: model.EventPhotoCompleted, JobID: "job-1"})

	for _, sub := range []*Subscription{sub1, sub2} {
		events := collect(sub, 2)
		require.Len(t, events, 2)
		assert.Equal(t, model.EventPhotoCompleted, events[1].Type)
	}
}

func TestPublishIsolatesJobs(t *testing.T) {
	b := New(0, 0)
	sub := b.Subscribe("job-1")
	defer b.Unsubscribe(sub)

	b.Publish("job-2", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-2"})

	events := collect(sub, 2)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventConnected, events[0].Type)
}

func TestSequenceSurvivesSubscriberChurn(t *testing.T) {
	b := New(0, 0)

	sub1 := b.Subscribe("job-1")
	stamped := b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	assert.Equal(t, uint64(1), stamped.Sequence)
	b.Unsubscribe(sub1)

	// Published with no live subscribers at all
	stamped = b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	assert.Equal(t, uint64(2), stamped.Sequence)

	// A late subscriber sees where the stream picks up
	sub2 := b.Subscribe("job-1")
	defer b.Unsubscribe(sub2)

	events := collect(sub2, 1)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].Sequence)

	stamped = b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	assert.Equal(t, uint64(3), stamped.Sequence)
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	b := New(0, 2)
	slow := b.Subscribe("job-1")
	fast := b.Subscribe("job-1")
	defer b.Unsubscribe(fast)

	// Fill the slow subscriber's buffer (connected event took one slot)
	// and keep publishing; the fast subscriber drains as it goes
	go func() {
		for range fast.Events() {
		}
	}()

	for i := 0; i < 10; i++ {
		b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	}

	// The slow subscriber's channel must end up closed
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-slow.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("slow subscriber was never evicted")
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(0, 0)
	sub := b.Subscribe("job-1")

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	assert.Equal(t, 0, b.ConnectionCount("job-1"))
}

func TestCloseAll(t *testing.T) {
	b := New(0, 0)
	sub1 := b.Subscribe("job-1")
	sub2 := b.Subscribe("job-1")
	other := b.Subscribe("job-2")
	defer b.Unsubscribe(other)

	assert.Equal(t, 2, b.ConnectionCount("job-1"))

	b.CloseAll("job-1")

	for _, sub := range []*Subscription{sub1, sub2} {
		// drain the connected event, then expect closure
		events := collect(sub, 2)
		assert.LessOrEqual(t, len(events), 1)
	}
	assert.Equal(t, 0, b.ConnectionCount("job-1"))
	assert.Equal(t, 1, b.ConnectionCount("job-2"))

	// Sequence restarts after CloseAll; the job is done and forgotten
	stamped := b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	assert.Equal(t, uint64(1), stamped.Sequence)
}

func TestIdleTimeoutClosesSubscription(t *testing.T) {
	b := New(50*time.Millisecond, 0)
	sub := b.Subscribe("job-1")

	// drain connected
	events := collect(sub, 1)
	require.Len(t, events, 1)

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("idle subscription was never closed")
	}
	assert.Equal(t, 0, b.ConnectionCount("job-1"))
}

func TestSequenceUniqueUnderChurn(t *testing.T) {
	b := New(0, 4)

	const publishers = 4
	const perPublisher = 2000

	stop := make(chan struct{})
	var churn sync.WaitGroup
	churn.Add(1)
	go func() {
		defer churn.Done()
		for {
			select {
			case <-stop:
				return
			default:
				sub := b.Subscribe("job-1")
				b.Unsubscribe(sub)
			}
		}
	}()

	results := make(chan uint64, publishers*perPublisher)
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				stamped := b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
				results <- stamped.Sequence
			}
		}()
	}
	wg.Wait()
	close(stop)
	churn.Wait()
	close(results)

	// Every publish must get its own sequence number: no duplicates, no
	// gaps, regardless of subscribers coming and going mid-stream
	seen := make(map[uint64]bool, publishers*perPublisher)
	var max uint64
	for seq := range results {
		require.False(t, seen[seq], "sequence %d stamped twice", seq)
		seen[seq] = true
		if seq > max {
			max = seq
		}
	}
	assert.Len(t, seen, publishers*perPublisher)
	assert.Equal(t, uint64(publishers*perPublisher), max)
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New(0, 0)
	stamped := b.Publish("job-1", model.ProgressEvent{Type: model.EventJobProgress, JobID: "job-1"})
	assert.False(t, stamped.Timestamp.IsZero())
}
