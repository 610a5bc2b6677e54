package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AllTopics subscribes to every topic.
const AllTopics = "*"

// Event is one notification fanned out to subscribers.
type Event struct {
	ID    string    `json:"id"`
	Topic string    `json:"topic"`
	Type  string    `json:"type"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(topic, typ string, data any) Event {
	return Event{ID: uuid.NewString(), Topic: topic, Type: typ, At: time.Now().UTC(), Data: data}
}

// Hub fans batch and server events out to admin clients.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event // topic -> client channels
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe adds a client to a topic, or to every topic with AllTopics.
func (h *Hub) Subscribe(topic string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 100) // slow clients must not block the publisher
	h.subscribers[topic] = append(h.subscribers[topic], ch)
	return ch
}

// Unsubscribe removes and closes a client channel.
func (h *Hub) Unsubscribe(topic string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Broadcast delivers e to the subscribers of e.Topic and of AllTopics.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(subs []chan Event) {
		for _, ch := range subs {
			select {
			case ch <- e:
			default: // drop when the buffer is full
			}
		}
	}
	deliver(h.subscribers[e.Topic])
	if e.Topic != AllTopics {
		deliver(h.subscribers[AllTopics])
	}
}

// Subscribers counts the clients of one topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
