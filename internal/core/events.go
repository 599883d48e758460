package core

import (
	"sync"
	"time"
)

// EventType names a store or dispatcher event.
type EventType string

// Events emitted on the store bus.
const (
	EventStateChanged       EventType = "state_changed"
	EventLoaded             EventType = "loaded"
	EventMutationApplied    EventType = "mutation_applied"
	EventMutationFailed     EventType = "mutation_failed"
	EventMutationRolledBack EventType = "mutation_rolled_back"
	EventNotice             EventType = "notice"
)

// Event is delivered to bus subscribers.
type Event struct {
	Type       EventType
	MutationID string
	Kind       ActionKind
	EntityID   string
	Notice     *Notice
	Timestamp  time.Time
}

// SubscriberID identifies an EventBus subscriber.
type SubscriberID uint64

// SubscriberFunc is invoked for each emitted event.
type SubscriberFunc func(Event)

type subscriber struct {
	id     SubscriberID
	fn     SubscriberFunc
	filter map[EventType]struct{}
}

// EventBus dispatches events synchronously, in registration order, on the
// emitting goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for every event type, or only for types when given.
func (eb *EventBus) Subscribe(fn SubscriberFunc, types ...EventType) SubscriberID {
	var filter map[EventType]struct{}
	if len(types) > 0 {
		filter = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			filter[t] = struct{}{}
		}
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.subscribers = append(eb.subscribers, subscriber{id: id, fn: fn, filter: filter})
	return id
}

// Unsubscribe removes a subscriber.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subscribers {
		if s.id == id {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Emit delivers evt to all matching subscribers.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := make([]subscriber, len(eb.subscribers))
	copy(subs, eb.subscribers)
	eb.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil {
			if _, ok := s.filter[evt.Type]; !ok {
				continue
			}
		}
		s.fn(evt)
	}
}
