package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvault/memvault/internal/domain"
)

func TestQueueFIFO(t *testing.T) {
	q := newNotificationQueue(10)

	assert.False(t, q.Enqueue(domain.NewNotification("a", nil)))
	assert.False(t, q.Enqueue(domain.NewNotification("b", nil)))
	assert.False(t, q.Enqueue(domain.NewNotification("c", nil)))
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got := <-q.C()
		assert.Equal(t, want, got.Method)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueDropOldestWhenFull(t *testing.T) {
	q := newNotificationQueue(2)

	assert.False(t, q.Enqueue(domain.NewNotification("a", nil)))
	assert.False(t, q.Enqueue(domain.NewNotification("b", nil)))
	// Queue is full: the oldest entry gives way, the producer never blocks.
	assert.True(t, q.Enqueue(domain.NewNotification("c", nil)))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 1, q.Dropped())

	assert.Equal(t, "b", (<-q.C()).Method)
	assert.Equal(t, "c", (<-q.C()).Method)
}

func TestQueueWakesBlockedConsumer(t *testing.T) {
	q := newNotificationQueue(4)

	received := make(chan domain.Notification, 1)
	go func() {
		received <- <-q.C()
	}()

	// Give the consumer a moment to block on the empty queue.
	time.Sleep(10 * time.Millisecond)
	q.Enqueue(domain.NewNotification("wake", nil))

	select {
	case n := <-received:
		require.Equal(t, "wake", n.Method)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by enqueue")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newNotificationQueue(8)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				q.Enqueue(domain.NewNotification("n", nil))
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	// Bounded regardless of producer pressure.
	assert.LessOrEqual(t, q.Len(), 8)
	assert.Equal(t, 400, q.Len()+q.Dropped())
}
