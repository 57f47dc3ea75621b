package feed

import (
	"context"
	"sync"

	"github.com/roach88/gameroom/internal/ledger"
)

// queue is a thread-safe unbounded FIFO of one circuit's events.
//
// The reader enqueues while the circuit's consumer dequeues, so a slow
// projection database never blocks reading the feed for other circuits.
// A buffered signal channel lets the consumer wait with a context.
type queue struct {
	mu     sync.Mutex
	events []ledger.StateChangeEvent
	closed bool
	signal chan struct{} // buffered, size 1
}

func newQueue() *queue {
	return &queue{
		events: make([]ledger.StateChangeEvent, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *queue) Enqueue(ev ledger.StateChangeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *queue) TryDequeue() (ledger.StateChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return ledger.StateChangeEvent{}, false
	}
	ev := q.events[0]

	// Clear the slot so the backing array does not pin consumed payloads.
	q.events[0] = ledger.StateChangeEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Next blocks until an event is available. It returns false once the
// queue is closed and drained, or when ctx is done.
func (q *queue) Next(ctx context.Context) (ledger.StateChangeEvent, bool) {
	for {
		if ev, ok := q.TryDequeue(); ok {
			return ev, true
		}

		q.mu.Lock()
		drained := q.closed && len(q.events) == 0
		q.mu.Unlock()
		if drained {
			return ledger.StateChangeEvent{}, false
		}

		select {
		case <-ctx.Done():
			return ledger.StateChangeEvent{}, false
		case <-q.signal:
		}
	}
}

// Len returns the current queue length.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued. Queued events are
// still delivered.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
