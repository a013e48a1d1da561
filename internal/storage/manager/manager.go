// Package manager is the gameplay-facing entry point to custom block storage.
// It owns the loaded worlds and one autosave loop per world.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/world"
)

var (
	ErrClosed       = errors.New("storage manager closed")
	ErrUnknownWorld = errors.New("world not loaded")
	ErrOutOfBounds  = errors.New("block y out of range")
	ErrForeignWorld = errors.New("world is not managed here")
)

type Options struct {
	// Adapter is the backend chosen for every world of this manager.
	Adapter          world.Adapter
	AutosaveInterval time.Duration
	Logger           *log.Logger
	Now              func() time.Time
}

type Manager struct {
	adapter  world.Adapter
	interval time.Duration
	log      *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	worlds  map[string]*entry
	loading map[string]*pendingWorld
	closed  bool

	closeOnce sync.Once

	saves        atomic.Uint64
	chunkWrites  atomic.Uint64
	regionWrites atomic.Uint64
	saveFailures atomic.Uint64

	eventMu     sync.Mutex
	eventCounts map[events.Kind]uint64
}

// pendingWorld is a world load in flight; later callers for the same name
// wait on done instead of creating it twice.
type pendingWorld struct {
	done chan struct{}
	err  error
}

type entry struct {
	w *world.World

	// saveMu serializes region writes for the world.
	saveMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(opts Options) (*Manager, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("manager: nil adapter")
	}
	m := &Manager{
		adapter:     opts.Adapter,
		interval:    opts.AutosaveInterval,
		log:         opts.Logger,
		now:         opts.Now,
		worlds:      map[string]*entry{},
		loading:     map[string]*pendingWorld{},
		eventCounts: map[events.Kind]uint64{},
	}
	if m.log == nil {
		m.log = log.New(io.Discard, "", 0)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func (m *Manager) Backend() string { return m.adapter.Name() }

// GetOrLoadWorld returns the loaded world, creating it through the adapter on
// first use. The adapter call runs without holding the manager lock.
func (m *Manager) GetOrLoadWorld(ctx context.Context, name string) (*world.World, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if e, ok := m.worlds[name]; ok {
			m.mu.Unlock()
			return e.w, nil
		}
		if p, ok := m.loading[name]; ok {
			m.mu.Unlock()
			select {
			case <-p.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if p.err != nil {
				return nil, p.err
			}
			continue
		}
		p := &pendingWorld{done: make(chan struct{})}
		m.loading[name] = p
		m.mu.Unlock()

		w, err := m.adapter.CreateWorld(ctx, name)

		m.mu.Lock()
		delete(m.loading, name)
		switch {
		case err != nil:
			p.err = fmt.Errorf("load world %s: %w", name, err)
		case m.closed:
			p.err = ErrClosed
		default:
			m.register(name, w)
		}
		close(p.done)
		m.mu.Unlock()
		if p.err != nil {
			return nil, p.err
		}
		m.log.Printf("[storage] world loaded name=%s backend=%s", name, m.adapter.Name())
		return w, nil
	}
}

// register adds a freshly created world. m.mu must be held.
func (m *Manager) register(name string, w *world.World) {
	e := &entry{w: w, stop: make(chan struct{})}
	m.worlds[name] = e
	if m.interval > 0 {
		e.wg.Add(1)
		go m.autosaveLoop(e)
	}
}

// waitLoading blocks until no load of name is in flight and returns with
// m.mu held.
func (m *Manager) waitLoading(name string) {
	for {
		m.mu.Lock()
		p, ok := m.loading[name]
		if !ok {
			return
		}
		m.mu.Unlock()
		<-p.done
	}
}

func (m *Manager) World(name string) *world.World {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.worlds[name]; ok {
		return e.w
	}
	return nil
}

func (m *Manager) WorldNames() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.worlds))
	for name := range m.worlds {
		out = append(out, name)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

func (m *Manager) entry(w *world.World) (*entry, error) {
	if w == nil {
		return nil, ErrUnknownWorld
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.worlds[w.Name()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorld, w.Name())
	}
	if e.w != w {
		return nil, fmt.Errorf("%w: %s", ErrForeignWorld, w.Name())
	}
	return e, nil
}

func (m *Manager) GetOrCreateChunk(w *world.World, cp pos.ChunkPos) (*world.Chunk, error) {
	if _, err := m.entry(w); err != nil {
		return nil, err
	}
	return w.Chunk(cp, true)
}

// GetBlockState never creates a chunk or region.
func (m *Manager) GetBlockState(w *world.World, p pos.Pos) (block.State, bool, error) {
	if _, err := m.entry(w); err != nil {
		return block.State{}, false, err
	}
	if !pos.ValidY(p.Y) {
		return block.State{}, false, nil
	}
	c, err := w.Chunk(pos.ChunkPosOf(p), false)
	if err != nil || c == nil {
		return block.State{}, false, err
	}
	st, ok := c.State(pos.BlockPosOf(p))
	return st, ok, nil
}

// SetBlockState stores st at p, or clears p when st is nil.
func (m *Manager) SetBlockState(w *world.World, p pos.Pos, st *block.State) error {
	if _, err := m.entry(w); err != nil {
		return err
	}
	if !pos.ValidY(p.Y) {
		return fmt.Errorf("%w: %d", ErrOutOfBounds, p.Y)
	}
	if st != nil {
		if err := st.Type().Validate(); err != nil {
			return fmt.Errorf("set block %s: %w", p, err)
		}
	}
	cp, bp := pos.ChunkPosOf(p), pos.BlockPosOf(p)
	if st == nil {
		c, err := w.Chunk(cp, false)
		if err != nil || c == nil {
			return err
		}
		c.RemoveState(bp)
		return nil
	}
	c, err := w.Chunk(cp, true)
	if err != nil {
		return err
	}
	c.SetState(bp, *st)
	return nil
}

func (m *Manager) ScheduleDelayedTick(w *world.World, cp pos.ChunkPos, fireTime int32, bp pos.BlockPos) error {
	c, err := m.GetOrCreateChunk(w, cp)
	if err != nil {
		return err
	}
	c.ScheduleTick(fireTime, bp)
	return nil
}

// DrainDueTicks pops the ticks of cp due at now. A chunk that is not stored
// has nothing due.
func (m *Manager) DrainDueTicks(w *world.World, cp pos.ChunkPos, now int32) ([]pos.BlockPos, error) {
	if _, err := m.entry(w); err != nil {
		return nil, err
	}
	c, err := w.Chunk(cp, false)
	if err != nil || c == nil {
		return nil, err
	}
	return c.DrainDueTicks(now), nil
}

func (m *Manager) SetTicked(w *world.World, p pos.Pos, on bool) error {
	if _, err := m.entry(w); err != nil {
		return err
	}
	if !pos.ValidY(p.Y) {
		return fmt.Errorf("%w: %d", ErrOutOfBounds, p.Y)
	}
	c, err := w.Chunk(pos.ChunkPosOf(p), on)
	if err != nil || c == nil {
		return err
	}
	c.SetTicked(pos.BlockPosOf(p), on)
	return nil
}

// SaveDirtyChunks re-encodes every dirty loaded chunk and writes the regions
// that changed.
func (m *Manager) SaveDirtyChunks(w *world.World) error {
	e, err := m.entry(w)
	if err != nil {
		return err
	}
	return m.saveDirty(e)
}

func (m *Manager) saveDirty(e *entry) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	m.saves.Add(1)
	var errs []error
	for _, r := range e.w.Regions() {
		n := 0
		for _, c := range r.LoadedChunks() {
			if !c.Dirty() {
				continue
			}
			if err := m.adapter.SaveChunk(e.w, c); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
		if n == 0 {
			continue
		}
		m.chunkWrites.Add(uint64(n))
		if err := m.adapter.SaveRegion(e.w, r); err != nil {
			errs = append(errs, fmt.Errorf("region %s: %w", r.Pos(), err))
			continue
		}
		m.regionWrites.Add(1)
	}
	if err := errors.Join(errs...); err != nil {
		m.saveFailures.Add(1)
		return fmt.Errorf("save world %s: %w", e.w.Name(), err)
	}
	return nil
}

// SaveAll saves dirty chunks and the world's extra data.
func (m *Manager) SaveAll(w *world.World) error {
	e, err := m.entry(w)
	if err != nil {
		return err
	}
	return m.saveAll(e)
}

func (m *Manager) saveAll(e *entry) error {
	err := m.saveDirty(e)
	if xerr := m.adapter.SaveExtraData(e.w); xerr != nil {
		err = errors.Join(err, fmt.Errorf("save extra data %s: %w", e.w.Name(), xerr))
	}
	return err
}

// UnloadRegion flushes every chunk of the region and drops it from memory.
func (m *Manager) UnloadRegion(w *world.World, rp pos.RegionPos) error {
	e, err := m.entry(w)
	if err != nil {
		return err
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	r := w.Region(rp)
	if r == nil {
		return nil
	}
	now := m.now()
	chunks := r.LoadedChunks()
	for _, c := range chunks {
		c.MarkUnloaded(now)
		if err := m.adapter.SaveChunk(w, c); err != nil {
			return fmt.Errorf("unload region %s: %w", rp, err)
		}
	}
	if err := m.adapter.SaveRegion(w, r); err != nil {
		return fmt.Errorf("unload region %s: %w", rp, err)
	}
	m.chunkWrites.Add(uint64(len(chunks)))
	m.regionWrites.Add(1)
	for _, c := range chunks {
		r.UnloadChunk(c.Pos())
	}
	if w.Region(rp) == r {
		w.RemoveRegion(rp)
	}
	return nil
}

// DeleteWorld stops the world's autosave loop before any storage is removed.
func (m *Manager) DeleteWorld(ctx context.Context, name string) error {
	m.waitLoading(name)
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	e := m.worlds[name]
	delete(m.worlds, name)
	m.mu.Unlock()

	if e != nil {
		e.stopLoop()
		// Wait out a save that started before the loop stopped.
		e.saveMu.Lock()
		defer e.saveMu.Unlock()
	}
	if err := m.adapter.DeleteWorld(ctx, name); err != nil {
		return fmt.Errorf("delete world %s: %w", name, err)
	}
	m.log.Printf("[storage] world deleted name=%s", name)
	return nil
}

func (e *entry) stopLoop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	e.wg.Wait()
}

func (m *Manager) autosaveLoop(e *entry) {
	defer e.wg.Done()
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			if err := m.saveDirty(e); err != nil {
				m.log.Printf("[storage] autosave failed world=%s err=%v", e.w.Name(), err)
			}
		}
	}
}

// Close stops every autosave loop and performs a final save of all worlds.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		entries := make([]*entry, 0, len(m.worlds))
		for _, e := range m.worlds {
			entries = append(entries, e)
		}
		m.mu.Unlock()

		var errs []error
		for _, e := range entries {
			e.stopLoop()
			m.accrueLoadedTime(e)
			if serr := m.saveAll(e); serr != nil {
				errs = append(errs, serr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// accrueLoadedTime folds the time each loaded chunk spent in memory into its
// stored total so the final save persists it.
func (m *Manager) accrueLoadedTime(e *entry) {
	now := m.now()
	for _, r := range e.w.Regions() {
		for _, c := range r.LoadedChunks() {
			c.MarkUnloaded(now)
			if !c.CanPrune() {
				c.MarkDirty()
			}
		}
	}
}

// Emit counts storage events for Stats.
func (m *Manager) Emit(e events.Event) {
	m.eventMu.Lock()
	m.eventCounts[e.Kind]++
	m.eventMu.Unlock()
}
