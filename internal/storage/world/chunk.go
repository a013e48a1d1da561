package world

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/codec"
)

// Chunk holds the custom state of one chunk column: sparse sections, the
// delayed tick queue, blocks needing periodic re-evaluation and load timing.
type Chunk struct {
	pos pos.ChunkPos

	mu            sync.RWMutex
	sections      map[int32]*Section
	ticked        map[pos.BlockPos]struct{}
	loadedSeconds int32
	lastLoaded    int64 // epoch millis
	offline       int64 // seconds unloaded before the latest MarkLoaded

	ticks TickQueue
	dirty atomic.Bool
}

func NewChunk(cp pos.ChunkPos) *Chunk {
	return &Chunk{
		pos:      cp,
		sections: map[int32]*Section{},
		ticked:   map[pos.BlockPos]struct{}{},
	}
}

func (c *Chunk) Pos() pos.ChunkPos { return c.pos }

func (c *Chunk) State(p pos.BlockPos) (block.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.sections[p.SectionID()]
	if s == nil {
		return block.State{}, false
	}
	return s.State(p)
}

// SetState stores st at p, creating the section on first use.
func (c *Chunk) SetState(p pos.BlockPos, st block.State) (prev block.State, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := p.SectionID()
	s := c.sections[id]
	if s == nil {
		s = newSection(id)
		c.sections[id] = s
	}
	prev, had = s.blocks[p]
	s.blocks[p] = st
	c.dirty.Store(true)
	return prev, had
}

// RemoveState clears p. A section losing its last block is dropped.
func (c *Chunk) RemoveState(p pos.BlockPos) (block.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := p.SectionID()
	s := c.sections[id]
	if s == nil {
		return block.State{}, false
	}
	prev, ok := s.blocks[p]
	if !ok {
		return block.State{}, false
	}
	delete(s.blocks, p)
	if len(s.blocks) == 0 {
		delete(c.sections, id)
	}
	c.dirty.Store(true)
	return prev, true
}

func (c *Chunk) HasSection(id int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[id]
	return ok
}

// SectionIDs returns the ids of non-empty sections in ascending order.
func (c *Chunk) SectionIDs() []int32 {
	c.mu.RLock()
	ids := make([]int32, 0, len(c.sections))
	for id := range c.sections {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SectionBlocks returns a copy of one section's block map.
func (c *Chunk) SectionBlocks(id int32) map[pos.BlockPos]block.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.sections[id]
	if s == nil {
		return nil
	}
	return s.copyBlocks()
}

func (c *Chunk) BlockCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.sections {
		n += s.Len()
	}
	return n
}

func (c *Chunk) ScheduleTick(fireTime int32, p pos.BlockPos) {
	c.ticks.Push(fireTime, p)
	c.dirty.Store(true)
}

// DrainDueTicks removes and returns positions due at now, earliest first.
func (c *Chunk) DrainDueTicks(now int32) []pos.BlockPos {
	due := c.ticks.PopDue(now)
	if len(due) > 0 {
		c.dirty.Store(true)
	}
	return due
}

func (c *Chunk) Ticks() *TickQueue { return &c.ticks }

func (c *Chunk) SetTicked(p pos.BlockPos, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, had := c.ticked[p]
	if on == had {
		return
	}
	if on {
		c.ticked[p] = struct{}{}
	} else {
		delete(c.ticked, p)
	}
	c.dirty.Store(true)
}

func (c *Chunk) IsTicked(p pos.BlockPos) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ticked[p]
	return ok
}

func (c *Chunk) TickedBlocks() []pos.BlockPos {
	c.mu.RLock()
	out := make([]pos.BlockPos, 0, len(c.ticked))
	for p := range c.ticked {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarkLoaded stamps the time the chunk entered memory. The gap since the
// previous stamp is kept for OfflineSeconds.
func (c *Chunk) MarkLoaded(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := now.UnixMilli()
	c.offline = 0
	if c.lastLoaded > 0 && ms > c.lastLoaded {
		c.offline = (ms - c.lastLoaded) / 1000
	}
	c.lastLoaded = ms
}

// MarkUnloaded adds the time spent loaded since the last stamp.
func (c *Chunk) MarkUnloaded(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accrueLocked(now)
}

func (c *Chunk) accrueLocked(now time.Time) {
	ms := now.UnixMilli()
	if c.lastLoaded > 0 && ms > c.lastLoaded {
		c.loadedSeconds += int32((ms - c.lastLoaded) / 1000)
		// Keep the sub-second remainder for the next accrual.
		c.lastLoaded = ms - (ms-c.lastLoaded)%1000
	}
}

// OfflineSeconds is how long the chunk sat unloaded before its latest load,
// measured from the stamp persisted when it was last unloaded or saved.
func (c *Chunk) OfflineSeconds() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offline
}

func (c *Chunk) LoadedSeconds() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedSeconds
}

func (c *Chunk) LastLoaded() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastLoaded
}

func (c *Chunk) Dirty() bool { return c.dirty.Load() }
func (c *Chunk) MarkDirty()  { c.dirty.Store(true) }

// CanPrune reports whether the chunk carries no state worth persisting.
func (c *Chunk) CanPrune() bool {
	c.mu.RLock()
	empty := len(c.sections) == 0 && len(c.ticked) == 0
	c.mu.RUnlock()
	return empty && c.ticks.Len() == 0
}

// Data captures the chunk's durable fields and clears the dirty flag.
func (c *Chunk) Data() codec.ChunkData {
	c.dirty.Store(false)
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := codec.ChunkData{
		X:             c.pos.X,
		Z:             c.pos.Z,
		LoadedSeconds: c.loadedSeconds,
		LastLoaded:    c.lastLoaded,
		Ticks:         c.ticks.Entries(),
	}
	if len(c.ticked) > 0 {
		d.Ticked = make([]pos.BlockPos, 0, len(c.ticked))
		for p := range c.ticked {
			d.Ticked = append(d.Ticked, p)
		}
	}
	for _, s := range c.sections {
		if s.Len() == 0 {
			continue
		}
		d.Sections = append(d.Sections, codec.SectionData{ID: s.id, Blocks: s.copyBlocks()})
	}
	sort.Slice(d.Sections, func(i, j int) bool { return d.Sections[i].ID < d.Sections[j].ID })
	return d
}

// ChunkFromData rebuilds a live chunk from its decoded wire form.
func ChunkFromData(d codec.ChunkData) *Chunk {
	c := NewChunk(d.Pos())
	c.loadedSeconds = d.LoadedSeconds
	c.lastLoaded = d.LastLoaded
	for _, t := range d.Ticks {
		c.ticks.Push(t.FireTime, t.Pos)
	}
	for _, p := range d.Ticked {
		c.ticked[p] = struct{}{}
	}
	for _, sd := range d.Sections {
		if len(sd.Blocks) == 0 {
			continue
		}
		s := newSection(sd.ID)
		for p, st := range sd.Blocks {
			s.blocks[p] = st
		}
		c.sections[sd.ID] = s
	}
	return c
}
