package events

import (
	"encoding/json"
	"sync"
)

// Hub fans events out to subscribers. Slow subscribers miss events rather
// than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub { return &Hub{subs: make(map[chan Event]struct{})} }

func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish is a no-op on a nil Hub.
func (h *Hub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := Event{Name: name, Data: b}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.RUnlock()
}
