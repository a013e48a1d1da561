package world

import (
	"sort"
	"sync"

	"hellblock.ai/internal/pos"
)

// Region groups the chunks of one 32x32 cell. chunkBytes is the durable view
// (encoded payloads as last saved); loaded holds live chunks currently in memory.
type Region struct {
	pos pos.RegionPos

	mu         sync.RWMutex
	chunkBytes map[pos.ChunkPos][]byte
	loaded     map[pos.ChunkPos]*Chunk
	removed    map[pos.ChunkPos]struct{}
}

func NewRegion(rp pos.RegionPos) *Region {
	return &Region{
		pos:        rp,
		chunkBytes: map[pos.ChunkPos][]byte{},
		loaded:     map[pos.ChunkPos]*Chunk{},
		removed:    map[pos.ChunkPos]struct{}{},
	}
}

// NewRegionWithBytes adopts an already-decoded chunk payload map.
func NewRegionWithBytes(rp pos.RegionPos, chunks map[pos.ChunkPos][]byte) *Region {
	r := NewRegion(rp)
	for cp, b := range chunks {
		r.chunkBytes[cp] = b
	}
	return r
}

func (r *Region) Pos() pos.RegionPos { return r.pos }

func (r *Region) ChunkBytes(cp pos.ChunkPos) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.chunkBytes[cp]
	return b, ok
}

// SetChunkBytes swaps in a freshly encoded payload.
func (r *Region) SetChunkBytes(cp pos.ChunkPos, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkBytes[cp] = b
	delete(r.removed, cp)
}

func (r *Region) RemoveChunkBytes(cp pos.ChunkPos) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunkBytes[cp]; !ok {
		return false
	}
	delete(r.chunkBytes, cp)
	r.removed[cp] = struct{}{}
	return true
}

// BytesSnapshot copies the payload map; the byte slices are shared and never mutated.
func (r *Region) BytesSnapshot() map[pos.ChunkPos][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[pos.ChunkPos][]byte, len(r.chunkBytes))
	for cp, b := range r.chunkBytes {
		out[cp] = b
	}
	return out
}

// TakeRemoved returns and forgets the chunks dropped since the last call.
func (r *Region) TakeRemoved() []pos.ChunkPos {
	r.mu.Lock()
	out := make([]pos.ChunkPos, 0, len(r.removed))
	for cp := range r.removed {
		out = append(out, cp)
	}
	r.removed = map[pos.ChunkPos]struct{}{}
	r.mu.Unlock()
	sortChunkPos(out)
	return out
}

func (r *Region) LoadedChunk(cp pos.ChunkPos) *Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[cp]
}

// LoadOrStoreChunk installs c unless another caller got there first.
func (r *Region) LoadOrStoreChunk(c *Chunk) (actual *Chunk, stored bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.loaded[c.Pos()]; ok {
		return cur, false
	}
	r.loaded[c.Pos()] = c
	return c, true
}

func (r *Region) UnloadChunk(cp pos.ChunkPos) *Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.loaded[cp]
	delete(r.loaded, cp)
	return c
}

func (r *Region) LoadedChunks() []*Chunk {
	r.mu.RLock()
	out := make([]*Chunk, 0, len(r.loaded))
	for _, c := range r.loaded {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return chunkLess(out[i].Pos(), out[j].Pos()) })
	return out
}

func (r *Region) ChunkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunkBytes)
}

// CanPrune reports whether nothing durable remains in the region.
func (r *Region) CanPrune() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunkBytes) == 0
}

func chunkLess(a, b pos.ChunkPos) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Z < b.Z
}

func sortChunkPos(s []pos.ChunkPos) {
	sort.Slice(s, func(i, j int) bool { return chunkLess(s[i], s[j]) })
}
