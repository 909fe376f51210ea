package server

import (
	"sync"

	"github.com/memvault/memvault/internal/domain"
)

// notificationQueue is a per-session bounded FIFO mailbox of server-originated
// notifications awaiting delivery. Producers never block: when the queue is
// full the oldest undelivered entry is discarded (drop-oldest backpressure).
// The consumer side is a channel receive, so the dispatcher's drain loop
// suspends on an empty queue and wakes on enqueue without polling.
type notificationQueue struct {
	mu      sync.Mutex
	ch      chan domain.Notification
	dropped int
}

func newNotificationQueue(capacity int) *notificationQueue {
	return &notificationQueue{ch: make(chan domain.Notification, capacity)}
}

// Enqueue appends a notification, discarding the oldest entry when the queue
// is full. It reports whether an entry was dropped.
func (q *notificationQueue) Enqueue(n domain.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	for {
		select {
		case q.ch <- n:
			if dropped {
				q.dropped++
			}
			return dropped
		default:
		}
		// Full. Evict the head and retry; the consumer may have drained
		// concurrently, in which case nothing is lost.
		select {
		case <-q.ch:
			dropped = true
		default:
		}
	}
}

// C returns the receive side consumed by the dispatcher's drain loop.
// Receive order is enqueue order.
func (q *notificationQueue) C() <-chan domain.Notification {
	return q.ch
}

// Len returns the number of undelivered notifications.
func (q *notificationQueue) Len() int {
	return len(q.ch)
}

// Dropped returns how many notifications were discarded due to backpressure.
func (q *notificationQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
