package auth

import (
	"context"
	"sort"
	"sync"
)

// SessionHub fans provider session changes out to subscribers. Providers own
// one hub each. Handlers run synchronously on the publishing goroutine, in
// subscription order.
type SessionHub struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]SessionChangeHandler
}

// NewSessionHub returns an empty hub.
func NewSessionHub() *SessionHub {
	return &SessionHub{
		handlers: map[uint64]SessionChangeHandler{},
	}
}

// Subscribe registers handler until the returned Subscription is released.
func (h *SessionHub) Subscribe(handler SessionChangeHandler) Subscription {
	if handler == nil {
		return noopSubscription{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	h.handlers[id] = handler

	return &hubSubscription{hub: h, id: id}
}

// Publish delivers event to every current subscriber. Handlers must not
// publish on the same hub; the context they receive reports true from
// InSessionChange so providers can tell.
func (h *SessionHub) Publish(ctx context.Context, event SessionChangeEvent) {
	ctx = context.WithValue(ctx, sessionChangeKey{}, true)
	for _, handler := range h.snapshot() {
		handler(ctx, event)
	}
}

type sessionChangeKey struct{}

// InSessionChange reports whether ctx belongs to a session change handler.
func InSessionChange(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	in, _ := ctx.Value(sessionChangeKey{}).(bool)
	return in
}

// Len returns the number of active subscriptions.
func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}

func (h *SessionHub) snapshot() []SessionChangeHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uint64, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]SessionChangeHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.handlers[id])
	}
	return out
}

func (h *SessionHub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, id)
}

type hubSubscription struct {
	hub  *SessionHub
	id   uint64
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
