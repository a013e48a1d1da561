package world

import (
	"container/heap"
	"sort"
	"sync"

	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/codec"
)

// TickQueue holds delayed ticks ordered by fire time, then insertion order.
// Executing ticks is up to the caller; the queue only stores them.
type TickQueue struct {
	mu  sync.Mutex
	h   tickHeap
	seq uint64
}

type tickItem struct {
	fire int32
	pos  pos.BlockPos
	seq  uint64
}

type tickHeap []tickItem

func (h tickHeap) Len() int { return len(h) }
func (h tickHeap) Less(i, j int) bool {
	if h[i].fire != h[j].fire {
		return h[i].fire < h[j].fire
	}
	return h[i].seq < h[j].seq
}
func (h tickHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *tickHeap) Push(x any)   { *h = append(*h, x.(tickItem)) }
func (h *tickHeap) Pop() any {
	old := *h
	it := old[len(old)-1]
	*h = old[:len(old)-1]
	return it
}

func (q *TickQueue) Push(fireTime int32, p pos.BlockPos) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.h, tickItem{fire: fireTime, pos: p, seq: q.seq})
}

func (q *TickQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

func (q *TickQueue) Peek() (codec.TickEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return codec.TickEntry{}, false
	}
	return codec.TickEntry{FireTime: q.h[0].fire, Pos: q.h[0].pos}, true
}

// PopDue removes and returns every entry with fire time <= now, earliest first.
func (q *TickQueue) PopDue(now int32) []pos.BlockPos {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []pos.BlockPos
	for q.h.Len() > 0 && q.h[0].fire <= now {
		it := heap.Pop(&q.h).(tickItem)
		out = append(out, it.pos)
	}
	return out
}

// Entries returns the queue contents in firing order without removing them.
func (q *TickQueue) Entries() []codec.TickEntry {
	q.mu.Lock()
	items := append(tickHeap(nil), q.h...)
	q.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items.Less(i, j) })
	out := make([]codec.TickEntry, len(items))
	for i, it := range items {
		out[i] = codec.TickEntry{FireTime: it.fire, Pos: it.pos}
	}
	return out
}

func (q *TickQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.h = nil
}
