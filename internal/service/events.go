package service

import (
	"sync"
	"sync/atomic"

	"github.com/wenqinglim/euterpe/internal/domain"
)

type Subscriber struct {
	ID     string
	JobID  string
	Events chan domain.Event
}

// EventBroadcaster fans job events out to subscribers. Slow subscribers drop events.
type EventBroadcaster struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
	bufferSize  int
	nextID      atomic.Int64
}

func NewEventBroadcaster(bufferSize int) *EventBroadcaster {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBroadcaster{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for jobID, or for every job when jobID is empty.
func (b *EventBroadcaster) Subscribe(subscriberID, jobID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:     subscriberID,
		JobID:  jobID,
		Events: make(chan domain.Event, b.bufferSize),
	}

	b.subscribers[subscriberID] = sub
	return sub
}

func (b *EventBroadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(b.subscribers, subscriberID)
	}
}

// Broadcast stamps the event with the next sequence id and delivers it.
func (b *EventBroadcaster) Broadcast(event domain.Event) domain.Event {
	event.ID = b.nextID.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.JobID == "" || sub.JobID == event.JobID {
			select {
			case sub.Events <- event:
			default:
			}
		}
	}
	return event
}

func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
