package bus

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Hub is an in-process broker. Several buses sharing one Hub behave like
// several relay processes sharing one broker.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]memSub
}

type memSub struct {
	topics  map[Topic]struct{}
	deliver DeliverFunc
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]memSub)}
}

// Transport returns a new transport attached to the hub.
func (h *Hub) Transport() Transport {
	return &memTransport{hub: h, id: -1}
}

func (h *Hub) subscribe(topics []Topic, deliver DeliverFunc) int {
	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = memSub{topics: set, deliver: deliver}
	return id
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) publish(topic Topic, data []byte) {
	h.mu.RLock()
	targets := make([]DeliverFunc, 0, len(h.subs))
	for _, s := range h.subs {
		if _, ok := s.topics[topic]; ok {
			targets = append(targets, s.deliver)
		}
	}
	h.mu.RUnlock()
	for _, d := range targets {
		d(topic, append([]byte(nil), data...))
	}
}

type memTransport struct {
	hub *Hub

	mu     sync.Mutex
	id     int
	closed bool
}

func (m *memTransport) Start(_ context.Context, topics []Topic, deliver DeliverFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("memory transport closed")
	}
	if m.id >= 0 {
		return errors.New("memory transport already started")
	}
	m.id = m.hub.subscribe(topics, deliver)
	return nil
}

func (m *memTransport) Publish(ctx context.Context, msg Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return errors.New("memory transport closed")
	}
	m.hub.publish(msg.Topic, msg.Data)
	return nil
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.id >= 0 {
		m.hub.unsubscribe(m.id)
	}
	return nil
}
