package adapter

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/world"
)

// Options configures the shared adapter plumbing.
type Options struct {
	Host      Host
	Codec     *codec.ChunkCodec
	Namespace string
	Generator string
	Logger    *log.Logger
	Events    events.Sink
	Now       func() time.Time
}

// Base holds what every backend shares: host access, the chunk codec and
// the chunk-level cache operations that never touch the medium.
type Base struct {
	Host      Host
	Codec     *codec.ChunkCodec
	Namespace string
	Generator string
	Log       *log.Logger
	Events    events.Sink
	Now       func() time.Time

	backend string
}

func NewBase(backend string, opts Options) (Base, error) {
	if opts.Host == nil {
		return Base{}, fmt.Errorf("%s: nil host", backend)
	}
	if opts.Codec == nil {
		return Base{}, fmt.Errorf("%s: nil chunk codec", backend)
	}
	b := Base{
		Host:      opts.Host,
		Codec:     opts.Codec,
		Namespace: opts.Namespace,
		Generator: opts.Generator,
		Log:       opts.Logger,
		Events:    opts.Events,
		Now:       opts.Now,
		backend:   backend,
	}
	if b.Namespace == "" {
		b.Namespace = "hellblock"
	}
	if b.Log == nil {
		b.Log = log.New(io.Discard, "", 0)
	}
	if b.Events == nil {
		b.Events = events.Discard
	}
	if b.Now == nil {
		b.Now = time.Now
	}
	return b, nil
}

func (b *Base) Emit(e events.Event) {
	e.Backend = b.backend
	if e.TimeMS == 0 {
		e.TimeMS = b.Now().UnixMilli()
	}
	b.Events.Emit(e)
}

// EnsureHostWorld looks up or creates the host world on the primary loop.
func (b *Base) EnsureHostWorld(ctx context.Context, name string) (HostWorld, bool, error) {
	var (
		hw      HostWorld
		created bool
	)
	err := b.Host.Main(ctx, func() error {
		if w, ok := b.Host.World(name); ok {
			hw = w
			return nil
		}
		w, err := b.Host.CreateWorldWithGenerator(name, b.Generator)
		if err != nil {
			return err
		}
		hw, created = w, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create host world %s: %w", name, err)
	}
	return hw, created, nil
}

func (b *Base) DeleteHostWorld(ctx context.Context, name string) error {
	err := b.Host.Main(ctx, func() error {
		if _, ok := b.Host.World(name); !ok {
			return nil
		}
		return b.Host.DeleteWorldFiles(name)
	})
	if err != nil {
		return fmt.Errorf("delete host world %s: %w", name, err)
	}
	return nil
}

// VerifyChunk decodes raw fully and checks it belongs at cp.
func (b *Base) VerifyChunk(cp pos.ChunkPos, raw []byte) (codec.ChunkData, error) {
	d, err := b.Codec.Decode(raw)
	if err != nil {
		return codec.ChunkData{}, err
	}
	if d.Pos() != cp {
		return codec.ChunkData{}, fmt.Errorf("%w: payload for chunk %s stored at %s", codec.ErrCorrupt, d.Pos(), cp)
	}
	return d, nil
}

// ChunkFromRegion materializes cp from r's payload cache. A payload that no
// longer decodes is dropped from the region and treated as absent.
func (b *Base) ChunkFromRegion(w *world.World, r *world.Region, cp pos.ChunkPos, create bool) (*world.Chunk, error) {
	if r == nil {
		return nil, nil
	}
	if c := r.LoadedChunk(cp); c != nil {
		return c, nil
	}
	var c *world.Chunk
	if raw, ok := r.ChunkBytes(cp); ok {
		d, err := b.VerifyChunk(cp, raw)
		if err != nil {
			b.Log.Printf("[%s] corrupt chunk dropped world=%s chunk=%s err=%v", b.backend, w.Name(), cp, err)
			r.RemoveChunkBytes(cp)
			b.Emit(events.Event{Kind: events.ChunkRecovered, World: w.Name(), Detail: err.Error()}.WithChunk(cp.X, cp.Z))
		} else {
			c = world.ChunkFromData(d)
		}
	}
	if c == nil {
		if !create {
			return nil, nil
		}
		c = world.NewChunk(cp)
	}
	c.MarkLoaded(b.Now())
	actual, _ := r.LoadOrStoreChunk(c)
	return actual, nil
}

// SaveChunk re-encodes c into its region's payload cache. Prunable chunks are
// removed from the cache instead. A chunk whose region is no longer loaded is
// skipped so the region is not resurrected.
func (b *Base) SaveChunk(w *world.World, c *world.Chunk) error {
	cp := c.Pos()
	r := w.Region(cp.RegionPos())
	if r == nil {
		b.Log.Printf("[%s] SEVERE: save into unloaded region skipped world=%s chunk=%s region=%s", b.backend, w.Name(), cp, cp.RegionPos())
		b.Emit(events.Event{Kind: events.SaveSkipped, World: w.Name(), Detail: "region not loaded"}.WithChunk(cp.X, cp.Z))
		return nil
	}
	if c.CanPrune() {
		c.Data() // clears dirty
		if r.RemoveChunkBytes(cp) {
			b.Emit(events.Event{Kind: events.ChunkPruned, World: w.Name()}.WithChunk(cp.X, cp.Z))
		}
		return nil
	}
	raw, err := b.Codec.Encode(c.Data())
	if err != nil {
		c.MarkDirty()
		return fmt.Errorf("encode chunk %s: %w", cp, err)
	}
	r.SetChunkBytes(cp, raw)
	return nil
}

// CreateRegion caches an empty region, or returns nil when create is unset.
func (b *Base) CreateRegion(w *world.World, rp pos.RegionPos, create bool) *world.Region {
	if !create {
		return nil
	}
	return w.LoadOrStoreRegion(world.NewRegion(rp))
}

// DefaultExtra builds fresh extra data for a world without any stored.
func (b *Base) DefaultExtra() world.ExtraData {
	return world.NewExtraData(b.Now().UnixMilli())
}
