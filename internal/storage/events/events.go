// Package events carries storage notifications (saves, prunes, recoveries)
// from the adapters to the journal and to live observers.
package events

import (
	"sync"
	"time"
)

type Kind string

const (
	WorldCreated    Kind = "WORLD_CREATED"
	WorldDeleted    Kind = "WORLD_DELETED"
	RegionSaved     Kind = "REGION_SAVED"
	RegionPruned    Kind = "REGION_PRUNED"
	RegionRecovered Kind = "REGION_CORRUPT_RECOVERED"
	ChunkRecovered  Kind = "CHUNK_CORRUPT_RECOVERED"
	ChunkPruned     Kind = "CHUNK_PRUNED"
	SaveSkipped     Kind = "SAVE_SKIPPED"
)

type Event struct {
	Kind    Kind   `json:"kind"`
	World   string `json:"world"`
	Backend string `json:"backend,omitempty"`
	RegionX *int32 `json:"region_x,omitempty"`
	RegionZ *int32 `json:"region_z,omitempty"`
	ChunkX  *int32 `json:"chunk_x,omitempty"`
	ChunkZ  *int32 `json:"chunk_z,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
	Detail  string `json:"detail,omitempty"`
	TimeMS  int64  `json:"time_ms"`
}

func (e Event) WithRegion(x, z int32) Event {
	e.RegionX, e.RegionZ = &x, &z
	return e
}

func (e Event) WithChunk(x, z int32) Event {
	e.ChunkX, e.ChunkZ = &x, &z
	return e
}

// Sink receives events. Emit must not block the storage path.
type Sink interface {
	Emit(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Hub fans events out to subscribers and fixed sinks. Slow subscribers lose
// events instead of stalling the emitter.
type Hub struct {
	mu     sync.RWMutex
	sinks  []Sink
	subs   map[uint64]chan Event
	nextID uint64

	dropped uint64
	now     func() time.Time
}

func NewHub(sinks ...Sink) *Hub {
	return &Hub{
		sinks: sinks,
		subs:  map[uint64]chan Event{},
		now:   time.Now,
	}
}

func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Hub) Emit(e Event) {
	if e.TimeMS == 0 {
		e.TimeMS = h.now().UnixMilli()
	}
	h.mu.RLock()
	sinks := h.sinks
	var dropped uint64
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()
	if dropped > 0 {
		h.mu.Lock()
		h.dropped += dropped
		h.mu.Unlock()
	}
	for _, s := range sinks {
		s.Emit(e)
	}
}

// Subscribe returns a buffered channel of future events and a cancel func
// that closes it.
func (h *Hub) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Recorder keeps every event in memory; used by tests and tooling.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
