package service

import "sync"

// Event kinds published by sessions.
const (
	KindShown       = "shown"
	KindHidden      = "hidden"
	KindRestyled    = "restyled"
	KindCompleted   = "completed"
	KindUncompleted = "uncompleted"
	KindConflict    = "conflict"
	KindNotice      = "notice"
	KindClosed      = "closed"
)

// Event is a change in one session's rendered state.
type Event struct {
	Session string `json:"session"`
	Kind    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventBus is a simple fan-out pub/sub for session events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
