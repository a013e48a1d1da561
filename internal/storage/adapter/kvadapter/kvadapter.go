// Package kvadapter stores chunks as individual entries in the host's
// embedded blob map. Regions exist only as in-memory groupings.
package kvadapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/adapter"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/world"
	"hellblock.ai/internal/tag"
)

const (
	Name     = "embedded"
	Priority = 100

	chunkPrefix = "chunk/"
	extraKey    = "extra"
)

type Adapter struct {
	adapter.Base
}

func New(opts adapter.Options) (*Adapter, error) {
	base, err := adapter.NewBase(Name, opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base}, nil
}

func (a *Adapter) Name() string  { return Name }
func (a *Adapter) Priority() int { return Priority }

func (a *Adapter) Available() bool {
	_, ok := adapter.Blobs(a.Host)
	return ok
}

// ChunkKey is "chunk/<rx>,<rz>/<x>,<z>"; the region prefix keeps a region's
// chunks contiguous so loading it scans only its own entries.
func ChunkKey(cp pos.ChunkPos) string {
	return regionPrefix(cp.RegionPos()) + pair(cp.X, cp.Z)
}

func regionPrefix(rp pos.RegionPos) string {
	return chunkPrefix + pair(rp.X, rp.Z) + "/"
}

func pair(x, z int32) string {
	return strconv.FormatInt(int64(x), 10) + "," + strconv.FormatInt(int64(z), 10)
}

// ParseChunkKey is the inverse of ChunkKey.
func ParseChunkKey(k string) (pos.ChunkPos, bool) {
	rest, ok := strings.CutPrefix(k, chunkPrefix)
	if !ok {
		return pos.ChunkPos{}, false
	}
	rs, cs, ok := strings.Cut(rest, "/")
	if !ok {
		return pos.ChunkPos{}, false
	}
	rx, rz, ok := parsePair(rs)
	if !ok {
		return pos.ChunkPos{}, false
	}
	x, z, ok := parsePair(cs)
	if !ok {
		return pos.ChunkPos{}, false
	}
	cp := pos.ChunkPos{X: x, Z: z}
	if cp.RegionPos() != (pos.RegionPos{X: rx, Z: rz}) {
		return pos.ChunkPos{}, false
	}
	return cp, true
}

func parsePair(s string) (int32, int32, bool) {
	xs, zs, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, false
	}
	x, err1 := strconv.ParseInt(xs, 10, 32)
	z, err2 := strconv.ParseInt(zs, 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return int32(x), int32(z), true
}

func (a *Adapter) blobs(name string) (adapter.BlobMap, error) {
	p, ok := adapter.Blobs(a.Host)
	if !ok {
		return nil, fmt.Errorf("%s: host has no blob engine", Name)
	}
	m, err := p.BlobMap(name)
	if err != nil {
		return nil, fmt.Errorf("blob map %s: %w", name, err)
	}
	return m, nil
}

func (a *Adapter) CreateWorld(ctx context.Context, name string) (*world.World, error) {
	hw, created, err := a.EnsureHostWorld(ctx, name)
	if err != nil {
		return nil, err
	}
	w := world.New(name, hw.Folder(), a)
	if _, err := a.LoadExtraData(w); err != nil {
		return nil, err
	}
	if created {
		if err := a.SaveExtraData(w); err != nil {
			return nil, err
		}
		a.Emit(events.Event{Kind: events.WorldCreated, World: name})
	}
	return w, nil
}

func (a *Adapter) DeleteWorld(ctx context.Context, name string) error {
	if p, ok := adapter.Blobs(a.Host); ok {
		if _, exists := a.Host.World(name); exists {
			m, err := p.BlobMap(name)
			if err != nil {
				return fmt.Errorf("blob map %s: %w", name, err)
			}
			keys, err := m.Keys("")
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := m.Delete(k); err != nil {
					return err
				}
			}
			if err := p.CloseBlobMap(name); err != nil {
				return err
			}
		}
	}
	if err := a.DeleteHostWorld(ctx, name); err != nil {
		return err
	}
	a.Emit(events.Event{Kind: events.WorldDeleted, World: name})
	return nil
}

func (a *Adapter) LoadExtraData(w *world.World) (world.ExtraData, error) {
	m, err := a.blobs(w.Name())
	if err != nil {
		return world.ExtraData{}, err
	}
	raw, ok, err := m.Get(extraKey)
	if err != nil {
		return world.ExtraData{}, err
	}
	e := a.DefaultExtra()
	if ok {
		decoded, err := decodeExtra(raw)
		if err != nil {
			a.Log.Printf("[%s] invalid extra data, using defaults world=%s err=%v", Name, w.Name(), err)
		} else {
			e = decoded
		}
	}
	w.SetExtra(e)
	return e, nil
}

func decodeExtra(raw []byte) (world.ExtraData, error) {
	_, t, err := tag.Unmarshal(raw)
	if err != nil {
		return world.ExtraData{}, err
	}
	c, ok := t.(tag.Compound)
	if !ok {
		return world.ExtraData{}, fmt.Errorf("extra data root is %s", t.Type())
	}
	return world.ExtraFromTag(c)
}

func (a *Adapter) SaveExtraData(w *world.World) error {
	m, err := a.blobs(w.Name())
	if err != nil {
		return err
	}
	b, err := tag.Marshal("", w.Extra().Tag())
	if err != nil {
		return err
	}
	return m.Put(extraKey, b)
}

// LoadRegion gathers the region's chunk entries. Undecodable entries are
// deleted one by one; the region itself never fails to load.
func (a *Adapter) LoadRegion(w *world.World, rp pos.RegionPos, create bool) (*world.Region, error) {
	if r := w.Region(rp); r != nil {
		return r, nil
	}
	m, err := a.blobs(w.Name())
	if err != nil {
		return nil, err
	}
	keys, err := m.Keys(regionPrefix(rp))
	if err != nil {
		return nil, err
	}
	chunks := map[pos.ChunkPos][]byte{}
	for _, k := range keys {
		cp, ok := ParseChunkKey(k)
		if !ok || !rp.Contains(cp) {
			continue
		}
		raw, ok, err := m.Get(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, err := a.VerifyChunk(cp, raw); err != nil {
			a.Log.Printf("[%s] corrupt chunk entry world=%s key=%s err=%v", Name, w.Name(), k, err)
			if delErr := m.Delete(k); delErr != nil {
				return nil, fmt.Errorf("%w: %s: %v", adapter.ErrDeleteFailed, k, delErr)
			}
			a.Emit(events.Event{Kind: events.ChunkRecovered, World: w.Name(), Detail: err.Error()}.WithChunk(cp.X, cp.Z))
			continue
		}
		chunks[cp] = raw
	}
	if len(chunks) == 0 {
		return a.CreateRegion(w, rp, create), nil
	}
	return w.LoadOrStoreRegion(world.NewRegionWithBytes(rp, chunks)), nil
}

func (a *Adapter) LoadChunk(w *world.World, cp pos.ChunkPos, create bool) (*world.Chunk, error) {
	r, err := a.LoadRegion(w, cp.RegionPos(), create)
	if err != nil {
		return nil, err
	}
	return a.ChunkFromRegion(w, r, cp, create)
}

func (a *Adapter) SaveRegion(w *world.World, r *world.Region) error {
	m, err := a.blobs(w.Name())
	if err != nil {
		return err
	}
	rp := r.Pos()
	chunks := r.BytesSnapshot()
	for cp, b := range chunks {
		if err := m.Put(ChunkKey(cp), b); err != nil {
			return err
		}
	}
	for _, cp := range r.TakeRemoved() {
		if err := m.Delete(ChunkKey(cp)); err != nil {
			return err
		}
	}
	if len(chunks) == 0 {
		if len(r.LoadedChunks()) == 0 && w.Region(rp) == r {
			w.RemoveRegion(rp)
		}
		a.Emit(events.Event{Kind: events.RegionPruned, World: w.Name()}.WithRegion(rp.X, rp.Z))
		return nil
	}
	a.Emit(events.Event{Kind: events.RegionSaved, World: w.Name(), Chunks: len(chunks)}.WithRegion(rp.X, rp.Z))
	return nil
}
