package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names a step of a convergence run
type EventType string

const (
	EventConvergeStarted   EventType = "converge.started"
	EventConvergeCompleted EventType = "converge.completed"
	EventConvergeFailed    EventType = "converge.failed"
	EventResourceUpdated   EventType = "resource.updated"
	EventResourceUpToDate  EventType = "resource.up_to_date"
	EventResourceSkipped   EventType = "resource.skipped"
	EventResourceFailed    EventType = "resource.failed"
)

const (
	queueSize      = 100
	subscriberSize = 50
)

// Event is one progress notice. Resource is empty for run-level events.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	RunID     string
	Resource  string
	Message   string
	Metadata  map[string]string
}

// Subscriber receives events until it is unsubscribed or the broker stops
type Subscriber chan *Event

// Broker fans published events out to every subscriber. Slow subscribers
// lose events instead of stalling the run.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	closed      bool

	queue   chan *Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	stopped sync.Once
	dropped atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]struct{}),
		queue:       make(chan *Event, queueSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the delivery loop. Calling it twice is a no-op.
func (b *Broker) Start() {
	if b.started.CompareAndSwap(false, true) {
		go b.deliver()
	}
}

// Stop delivers what is already queued, then closes every subscriber.
func (b *Broker) Stop() {
	b.stopped.Do(func() {
		close(b.stopCh)
		if b.started.Load() {
			<-b.doneCh
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for sub := range b.subscribers {
			close(sub)
			delete(b.subscribers, sub)
		}
	})
}

// Subscribe registers a new subscriber. On a stopped broker the returned
// channel is already closed.
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub)
		return sub
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe closes sub. Unknown or already closed subscribers are ignored.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish stamps and queues event without blocking. Events published to a
// full queue are dropped and counted.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}
	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped counts events lost to a full queue
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of live subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) deliver() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.queue:
			b.fanOut(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.queue:
					b.fanOut(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Broker) fanOut(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}
