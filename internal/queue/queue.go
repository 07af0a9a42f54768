// Package queue provides the bounded FIFO between command intake and the
// orchestrator.
package queue

import (
	"errors"
	"sync"

	"github.com/orinctl/strapd/internal/models"
)

// Queue errors.
var (
	// ErrBusy is returned when the queue is at capacity. The submission is
	// rejected rather than queued; the caller must resubmit later.
	ErrBusy = errors.New("command queue is full")
)

// Capacity bounds the pending-command backlog. Reject-on-full keeps the
// worst case memory and latency predictable.
const Capacity = 4

// Queue is a fixed-capacity FIFO safe for one producer and one consumer
// running concurrently. It never blocks and never grows.
type Queue struct {
	mu    sync.Mutex
	items [Capacity]models.Command
	head  int
	count int

	// notify wakes the consumer via Wake. Buffered by one so the producer
	// never blocks; repeated signals coalesce.
	notify chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends a command, failing with ErrBusy at capacity. It does not
// signal the consumer: the producer calls Wake once any bookkeeping tied to
// the enqueue has been published, so the consumer never races ahead of it.
func (q *Queue) Enqueue(cmd models.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == Capacity {
		return ErrBusy
	}
	q.items[(q.head+q.count)%Capacity] = cmd
	q.count++
	return nil
}

// Wake signals the consumer that the queue changed.
func (q *Queue) Wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue removes and returns the oldest command, if any.
func (q *Queue) TryDequeue() (models.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return models.Command{}, false
	}
	cmd := q.items[q.head]
	q.items[q.head] = models.Command{}
	q.head = (q.head + 1) % Capacity
	q.count--
	return cmd, true
}

// Peek returns the oldest command without removing it.
func (q *Queue) Peek() (models.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return models.Command{}, false
	}
	return q.items[q.head], true
}

// Drain removes and returns every pending command in FIFO order. Used when
// a fatal error discards the backlog.
func (q *Queue) Drain() []models.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Command, 0, q.count)
	for q.count > 0 {
		out = append(out, q.items[q.head])
		q.items[q.head] = models.Command{}
		q.head = (q.head + 1) % Capacity
		q.count--
	}
	return out
}

// Depth returns the number of pending commands.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Notify exposes the wakeup channel the consumer selects on. A receive
// means at least one enqueue happened since the last receive.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
