package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rapidphoto/internal/model"
)

// Default timeout: 30 minutes
const DefaultIdleTimeout = 30 * time.Minute

const DefaultBuffer = 16

// Subscription is an ephemeral, process-local handle binding one consumer
// to a job's event stream. It is torn down on unsubscribe, idle timeout,
// or eviction; its channel is closed exactly once.
type Subscription struct {
	ID    string
	JobID string

	events    chan model.ProgressEvent
	closeOnce sync.Once
	idle      *time.Timer
}

// Events returns the receive side of the subscription's delivery channel.
// The channel is closed when the subscription ends.
func (s *Subscription) Events() <-chan model.ProgressEvent {
	return s.events
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		if s.idle != nil {
			s.idle.Stop()
		}
		close(s.events)
	})
}

type jobHub struct {
	mu   sync.Mutex
	subs map[string]*Subscription
	seq  uint64
}

// Broker is the per-job publish/subscribe hub. The registry lock only
// guards the hub map itself; event delivery runs under the per-job hub
// lock, so jobs never contend with each other.
//
// A job's hub is the single home of its sequence counter: it is created on
// first use, outlives subscriber churn, and is only forgotten by CloseAll.
// Stamping and delivery happen under the one hub lock, so sequences are
// gapless, duplicate-free, and match delivery order.
type Broker struct {
	mu   sync.RWMutex
	hubs map[string]*jobHub

	idleTimeout time.Duration
	buffer      int
}

func New(idleTimeout time.Duration, buffer int) *Broker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		hubs:        make(map[string]*jobHub),
		idleTimeout: idleTimeout,
		buffer:      buffer,
	}
}

func (b *Broker) getOrCreateHub(jobID string) *jobHub {
	b.mu.RLock()
	hub := b.hubs[jobID]
	b.mu.RUnlock()
	if hub != nil {
		return hub
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	hub = b.hubs[jobID]
	if hub == nil {
		hub = &jobHub{subs: make(map[string]*Subscription)}
		b.hubs[jobID] = hub
	}
	return hub
}

// Subscribe registers a new subscriber for a job and immediately delivers a
// synthetic connected event carrying the job's current sequence number, so
// the client knows where the live stream picks up.
func (b *Broker) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		JobID:  jobID,
		events: make(chan model.ProgressEvent, b.buffer),
	}

	// Armed before registration so a concurrent Publish never sees a
	// subscription without its timer
	sub.idle = time.AfterFunc(b.idleTimeout, func() {
		log.Debug().Str("jobID", jobID).Str("subscription", sub.ID).Msg("Subscription idle timeout")
		b.Unsubscribe(sub)
	})

	hub := b.getOrCreateHub(jobID)

	hub.mu.Lock()
	hub.subs[sub.ID] = sub
	connected := model.NewConnectedEvent(jobID)
	connected.Sequence = hub.seq
	sub.events <- connected
	hub.mu.Unlock()

	log.Debug().Str("jobID", jobID).Str("subscription", sub.ID).Msg("Subscriber registered")
	return sub
}

// Publish stamps the event with the job's next sequence number and delivers
// it to every live subscriber in publish order. Delivery never blocks: a
// subscriber whose buffer is full is evicted rather than stalling the rest.
// Returns the stamped event.
func (b *Broker) Publish(jobID string, event model.ProgressEvent) model.ProgressEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	hub := b.getOrCreateHub(jobID)

	var evicted []*Subscription

	hub.mu.Lock()
	hub.seq++
	event.Sequence = hub.seq
	for id, sub := range hub.subs {
		select {
		case sub.events <- event:
			sub.idle.Reset(b.idleTimeout)
		default:
			// Slow or dead consumer; drop it rather than block the others
			delete(hub.subs, id)
			evicted = append(evicted, sub)
		}
	}
	hub.mu.Unlock()

	for _, sub := range evicted {
		log.Warn().Str("jobID", jobID).Str("subscription", sub.ID).Msg("Evicting slow subscriber")
		sub.close()
	}

	return event
}

// Unsubscribe removes the handle and closes its channel. Idempotent. The
// job's hub stays behind holding the sequence counter; CloseAll is what
// forgets a job.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.RLock()
	hub := b.hubs[sub.JobID]
	b.mu.RUnlock()

	if hub != nil {
		hub.mu.Lock()
		delete(hub.subs, sub.ID)
		hub.mu.Unlock()
	}

	sub.close()
}

// CloseAll force-terminates every subscriber for a job and forgets its
// sequence counter. Used for operational cleanup once a job is finished
// and no further events will be published.
func (b *Broker) CloseAll(jobID string) {
	b.mu.Lock()
	hub := b.hubs[jobID]
	delete(b.hubs, jobID)
	b.mu.Unlock()

	if hub == nil {
		return
	}

	hub.mu.Lock()
	subs := make([]*Subscription, 0, len(hub.subs))
	for _, sub := range hub.subs {
		subs = append(subs, sub)
	}
	hub.subs = make(map[string]*Subscription)
	hub.mu.Unlock()

	log.Info().Str("jobID", jobID).Int("count", len(subs)).Msg("Closing all subscribers for job")
	for _, sub := range subs {
		sub.close()
	}
}

// ConnectionCount returns the number of live subscribers for a job
func (b *Broker) ConnectionCount(jobID string) int {
	b.mu.RLock()
	hub := b.hubs[jobID]
	b.mu.RUnlock()

	if hub == nil {
		return 0
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.subs)
}
