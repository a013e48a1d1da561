package world

import (
	"sort"
	"sync"

	"hellblock.ai/internal/pos"
)

// World is the storage view of one host world: a lazily filled region cache
// plus extra data, bound to the adapter chosen when it was created.
type World struct {
	name    string
	folder  string
	adapter Adapter

	mu      sync.RWMutex
	regions map[pos.RegionPos]*Region
	extra   ExtraData
}

// New binds name to adapter. folder is the host's directory for the world and
// may be empty for backends that do not use the filesystem.
func New(name, folder string, adapter Adapter) *World {
	return &World{
		name:    name,
		folder:  folder,
		adapter: adapter,
		regions: map[pos.RegionPos]*Region{},
	}
}

func (w *World) Name() string     { return w.name }
func (w *World) Folder() string   { return w.folder }
func (w *World) Adapter() Adapter { return w.adapter }

func (w *World) Region(rp pos.RegionPos) *Region {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.regions[rp]
}

// LoadOrStoreRegion caches r unless a region for the same cell already exists,
// in which case the existing one is returned.
func (w *World) LoadOrStoreRegion(r *Region) *Region {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.regions[r.Pos()]; ok {
		return cur
	}
	w.regions[r.Pos()] = r
	return r
}

func (w *World) RemoveRegion(rp pos.RegionPos) *Region {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.regions[rp]
	delete(w.regions, rp)
	return r
}

// Regions returns the cached regions ordered by position.
func (w *World) Regions() []*Region {
	w.mu.RLock()
	out := make([]*Region, 0, len(w.regions))
	for _, r := range w.regions {
		out = append(out, r)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pos(), out[j].Pos()
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}

func (w *World) RegionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.regions)
}

func (w *World) Extra() ExtraData {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.extra.Clone()
}

func (w *World) SetExtra(e ExtraData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extra = e.Clone()
}

// Chunk loads the chunk through the bound adapter.
func (w *World) Chunk(cp pos.ChunkPos, create bool) (*Chunk, error) {
	return w.adapter.LoadChunk(w, cp, create)
}
