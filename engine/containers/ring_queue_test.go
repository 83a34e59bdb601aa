package containers

import (
	"errors"
	"testing"
)

func TestRingQueueOrder(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d) = %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue = %v, want ErrQueueFull", err)
	}
	for want := 1; want <= 3; want++ {
		got, err := rq.Dequeue()
		if err != nil || got != want {
			t.Fatalf("Dequeue() = %d, %v; want %d", got, err, want)
		}
	}
	if _, err := rq.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("Peek on empty queue = %v, want ErrQueueEmpty", err)
	}
}

func TestRingQueuePushDropsOldest(t *testing.T) {
	rq := NewRingQueue[string](2)
	rq.Push("a")
	rq.Push("b")
	rq.Push("c")

	var got []string
	rq.Each(func(s string) { got = append(got, s) })
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Each visited %v, want [b c]", got)
	}
	if rq.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rq.Len())
	}
}
