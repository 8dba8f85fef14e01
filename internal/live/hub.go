// Package live delivers query snapshots to subscribers whenever the data
// behind them changes. All deliveries for a Hub happen on one goroutine, in
// order, so subscribers never see concurrent callbacks.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Sync once the hub has shut down
var ErrClosed = errors.New("live: hub closed")

// Snapshot is one delivery of a subscription's query result
type Snapshot[T any] struct {
	Value T
	Err   error
}

// Hub owns the dispatch goroutine and the set of subscriptions
type Hub struct {
	mu     sync.Mutex
	queue  []func()
	subs   map[*Subscription]struct{}
	closed bool
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// Subscription is a cancellable handle returned by Subscribe
type Subscription struct {
	hub       *Hub
	topics    map[string]bool
	refresh   func()
	pending   bool // guarded by hub.mu
	cancelled atomic.Bool
}

// NewHub starts a hub and its dispatch goroutine
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subs:   make(map[*Subscription]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go h.dispatch()
	return h
}

// Subscribe runs query and delivers its result now and again after every
// Notify naming one of topics. Bursts of notifications for the same
// subscription collapse into a single re-query.
func Subscribe[T any](h *Hub, topics []string, query func() (T, error), deliver func(Snapshot[T])) *Subscription {
	s := &Subscription{hub: h, topics: make(map[string]bool, len(topics))}
	for _, t := range topics {
		s.topics[t] = true
	}
	s.refresh = func() {
		h.mu.Lock()
		s.pending = false
		h.mu.Unlock()

		if s.cancelled.Load() {
			return
		}
		v, err := query()
		if s.cancelled.Load() {
			return
		}
		deliver(Snapshot[T]{Value: v, Err: err})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.cancelled.Store(true)
		return s
	}
	h.subs[s] = struct{}{}
	s.pending = true
	h.enqueueLocked(s.refresh)
	return s
}

// Notify schedules a re-query for every subscription watching any of topics
func (h *Hub) Notify(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subs {
		if s.pending || !s.watches(topics) {
			continue
		}
		s.pending = true
		h.enqueueLocked(s.refresh)
	}
}

// Sync waits until everything queued before the call has been delivered
func (h *Hub) Sync(ctx context.Context) error {
	flushed := make(chan struct{})
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.enqueueLocked(func() { close(flushed) })
	h.mu.Unlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of active subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close delivers what is already queued, then stops the dispatch goroutine.
// Later Subscribe and Notify calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		for s := range h.subs {
			s.cancelled.Store(true)
		}
		h.subs = map[*Subscription]struct{}{}
		h.signal()
	}
	h.mu.Unlock()
	<-h.done
}

// Cancel stops further deliveries. Safe to call more than once and from
// inside a delivery callback.
func (s *Subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

// Cancelled reports whether Cancel has been called or the hub closed
func (s *Subscription) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Subscription) watches(topics []string) bool {
	for _, t := range topics {
		if s.topics[t] {
			return true
		}
	}
	return false
}

func (h *Hub) enqueueLocked(fn func()) {
	h.queue = append(h.queue, fn)
	h.signal()
}

func (h *Hub) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) dispatch() {
	defer close(h.done)
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			closed := h.closed
			h.mu.Unlock()
			if closed {
				return
			}
			<-h.wake
			continue
		}
		fn := h.queue[0]
		h.queue[0] = nil
		h.queue = h.queue[1:]
		h.mu.Unlock()

		h.run(fn)
	}
}

func (h *Hub) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("live delivery panic", "panic", r)
		}
	}()
	fn()
}
