package world

import (
	"sync"
	"testing"

	"hellblock.ai/internal/pos"
)

func TestTickQueue_PopDueOrder(t *testing.T) {
	var q TickQueue
	a := pos.NewBlockPos(1, 10, 1)
	b := pos.NewBlockPos(2, 10, 2)
	c := pos.NewBlockPos(3, 10, 3)
	d := pos.NewBlockPos(4, 10, 4)
	q.Push(30, a)
	q.Push(10, b)
	q.Push(20, c)
	q.Push(10, d)

	if e, ok := q.Peek(); !ok || e.FireTime != 10 || e.Pos != b {
		t.Fatalf("peek: got=%v ok=%v", e, ok)
	}
	got := q.PopDue(20)
	want := []pos.BlockPos{b, d, c}
	if len(got) != len(want) {
		t.Fatalf("due len: got=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("due[%d]: got=%v want=%v", i, got[i], want[i])
		}
	}
	if q.Len() != 1 {
		t.Fatalf("remaining: got=%d want=1", q.Len())
	}
	if got := q.PopDue(29); len(got) != 0 {
		t.Fatalf("nothing due before 30, got %v", got)
	}
	if got := q.PopDue(30); len(got) != 1 || got[0] != a {
		t.Fatalf("last: got=%v", got)
	}
}

func TestTickQueue_EntriesDoNotConsume(t *testing.T) {
	var q TickQueue
	for i := int32(0); i < 50; i++ {
		q.Push(50-i, pos.NewBlockPos(0, i, 0))
	}
	es := q.Entries()
	if len(es) != 50 || q.Len() != 50 {
		t.Fatalf("entries=%d len=%d", len(es), q.Len())
	}
	for i := 1; i < len(es); i++ {
		if es[i-1].FireTime > es[i].FireTime {
			t.Fatalf("entries out of order at %d", i)
		}
	}
	q.Clear()
	if _, ok := q.Peek(); ok {
		t.Fatalf("expected empty after clear")
	}
}

func TestTickQueue_ConcurrentPush(t *testing.T) {
	var q TickQueue
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(int32(i), pos.NewBlockPos(int32(g), int32(i), 0))
			}
		}(g)
	}
	wg.Wait()
	if got := len(q.PopDue(1000)); got != 800 {
		t.Fatalf("popped: got=%d want=800", got)
	}
}
