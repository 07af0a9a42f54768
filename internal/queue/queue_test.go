package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/orinctl/strapd/internal/models"
)

func newCommand(i int) models.Command {
	return models.Command{
		ID:   fmt.Sprintf("cmd-%d", i),
		Kind: models.SequenceNormalReboot,
	}
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(newCommand(i)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}
	if q.Depth() != 3 {
		t.Fatalf("expected depth 3, got %d", q.Depth())
	}

	for i := 0; i < 3; i++ {
		cmd, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue %d returned empty", i)
		}
		if cmd.ID != fmt.Sprintf("cmd-%d", i) {
			t.Fatalf("expected cmd-%d, got %s", i, cmd.ID)
		}
	}
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestEnqueueBusyAtCapacity(t *testing.T) {
	q := New()

	for i := 0; i < Capacity; i++ {
		if err := q.Enqueue(newCommand(i)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	err := q.Enqueue(newCommand(Capacity))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if q.Depth() != Capacity {
		t.Fatalf("expected depth %d after rejection, got %d", Capacity, q.Depth())
	}

	// A dequeue frees a slot again.
	if _, ok := q.TryDequeue(); !ok {
		t.Fatal("TryDequeue returned empty")
	}
	if err := q.Enqueue(newCommand(Capacity)); err != nil {
		t.Fatalf("Enqueue after dequeue failed: %v", err)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New()
	if err := q.Enqueue(newCommand(0)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	peeked, ok := q.Peek()
	if !ok || peeked.ID != "cmd-0" {
		t.Fatalf("unexpected peek result %v %v", peeked, ok)
	}
	if q.Depth() != 1 {
		t.Fatalf("peek must not remove, depth %d", q.Depth())
	}
}

func TestDrain(t *testing.T) {
	q := New()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(newCommand(i)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained, got %d", len(drained))
	}
	for i, cmd := range drained {
		if cmd.ID != fmt.Sprintf("cmd-%d", i) {
			t.Fatalf("drain order broken at %d: %s", i, cmd.ID)
		}
	}
	if q.Depth() != 0 {
		t.Fatalf("expected empty queue after drain, depth %d", q.Depth())
	}
}

func TestEnqueueLeavesWakeToProducer(t *testing.T) {
	q := New()
	if err := q.Enqueue(newCommand(0)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The producer signals explicitly after its bookkeeping, so the bare
	// enqueue must not wake the consumer.
	select {
	case <-q.Notify():
		t.Fatal("Enqueue must not notify on its own")
	default:
	}

	q.Wake()
	select {
	case <-q.Notify():
	default:
		t.Fatal("expected a pending notification after Wake")
	}
}

func TestWakeCoalesces(t *testing.T) {
	q := New()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(newCommand(i)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
		q.Wake()
	}

	select {
	case <-q.Notify():
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-q.Notify():
		t.Fatal("notifications must coalesce")
	default:
	}
}

func TestWrapAround(t *testing.T) {
	q := New()
	// Cycle more entries than the capacity to cross the ring boundary.
	next := 0
	for i := 0; i < Capacity*3; i++ {
		if err := q.Enqueue(newCommand(i)); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
		cmd, ok := q.TryDequeue()
		if !ok || cmd.ID != fmt.Sprintf("cmd-%d", next) {
			t.Fatalf("wrap-around broke order at %d: %v", i, cmd.ID)
		}
		next++
	}
}
