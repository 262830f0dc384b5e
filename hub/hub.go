// Package hub fans messages out to every connected observer.
//
// Each Subscriber owns a bounded queue which its connection drains. Delivery
// never blocks: a subscriber whose queue is full is dropped and its queue
// closed, so one stalled browser tab cannot hold up the rest.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultQueueSize = 16

type Subscriber struct {
	id   string
	send chan any
}

func (s *Subscriber) ID() string {
	return s.id
}

// Messages is closed once the subscriber has been removed from the hub.
func (s *Subscriber) Messages() <-chan any {
	return s.send
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	queue  int
	logger *zap.Logger
}

func New(queue int, logger *zap.Logger) *Hub {
	if queue < 1 {
		queue = DefaultQueueSize
	}

	return &Hub{
		subs:   make(map[string]*Subscriber),
		queue:  queue,
		logger: logger,
	}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:   uuid.NewString(),
		send: make(chan any, h.queue),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", zap.String("subscriber", sub.id), zap.Int("subscribers", n))

	return sub
}

// Unsubscribe removes sub. Removing a subscriber that is already gone is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	removed := h.removeLocked(sub.id)
	n := len(h.subs)
	h.mu.Unlock()

	if removed {
		h.logger.Debug("subscriber disconnected", zap.String("subscriber", sub.id), zap.Int("subscribers", n))
	}
}

func (h *Hub) removeLocked(id string) bool {
	sub, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	close(sub.send)

	return true
}

// Publish queues msg for every subscriber except the one whose ID is
// exclude, and returns how many subscribers it reached.
func (h *Hub) Publish(msg any, exclude string) int {
	var (
		delivered int
		dropped   []string
	)

	h.mu.RLock()
	for id, sub := range h.subs {
		if id == exclude {
			continue
		}
		select {
		case sub.send <- msg:
			delivered++
		default:
			dropped = append(dropped, id)
		}
	}
	h.mu.RUnlock()

	h.drop(dropped)

	return delivered
}

// Send queues msg for sub alone.
func (h *Hub) Send(sub *Subscriber, msg any) bool {
	h.mu.RLock()
	_, ok := h.subs[sub.id]
	if ok {
		select {
		case sub.send <- msg:
		default:
			ok = false
		}
	}
	h.mu.RUnlock()

	if !ok {
		h.drop([]string{sub.id})
	}

	return ok
}

func (h *Hub) drop(ids []string) {
	if len(ids) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range ids {
		if h.removeLocked(id) {
			h.logger.Warn("dropping slow subscriber", zap.String("subscriber", id))
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Close removes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.subs {
		h.removeLocked(id)
	}
}
