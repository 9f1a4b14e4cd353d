package feed

import (
	"sync"

	"solana-trade-feed/internal/domain"
)

// EventQueue is the FIFO hand-off between the receive loop (single
// producer) and the batch processor (single consumer). It is unbounded:
// sustained overload shows up as queue growth, observable through Len,
// rather than dropped events.
type EventQueue struct {
	mu     sync.Mutex
	events []*domain.TradeEvent
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// PushBack appends an event to the tail.
func (q *EventQueue) PushBack(ev *domain.TradeEvent) {
	if ev == nil {
		return
	}
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// PushFront requeues an event at the head, ahead of everything else.
// Used when persistence of a single event fails and it must be retried
// before the rest of the queue.
func (q *EventQueue) PushFront(ev *domain.TradeEvent) {
	if ev == nil {
		return
	}
	q.mu.Lock()
	q.events = append([]*domain.TradeEvent{ev}, q.events...)
	q.mu.Unlock()
}

// PopBatch removes and returns up to n events from the head.
func (q *EventQueue) PopBatch(n int) []*domain.TradeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.events) == 0 {
		return nil
	}
	if n > len(q.events) {
		n = len(q.events)
	}

	batch := make([]*domain.TradeEvent, n)
	copy(batch, q.events[:n])
	q.events = q.events[n:]
	return batch
}

// Len returns the current queue depth.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
