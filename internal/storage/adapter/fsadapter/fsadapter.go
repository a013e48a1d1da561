// Package fsadapter stores each region as one file under the host world's
// folder. It works on every host and is the fallback backend.
package fsadapter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/adapter"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/world"
)

const (
	Name     = "filesystem"
	Priority = 0

	extraFile = "data.json"
	// MetaKey names the extra-data blob on hosts with persistent data.
	MetaKey = "hellblock:extra"
)

type Adapter struct {
	adapter.Base
	ext string
}

// New returns a filesystem adapter writing r.<x>.<z>.<ext> files.
func New(ext string, opts adapter.Options) (*Adapter, error) {
	base, err := adapter.NewBase(Name, opts)
	if err != nil {
		return nil, err
	}
	if ext == "" {
		ext = "hbr"
	}
	return &Adapter{Base: base, ext: ext}, nil
}

func (a *Adapter) Name() string    { return Name }
func (a *Adapter) Priority() int   { return Priority }
func (a *Adapter) Available() bool { return true }

func (a *Adapter) dir(w *world.World) string {
	return filepath.Join(w.Folder(), a.Namespace)
}

func (a *Adapter) RegionPath(w *world.World, rp pos.RegionPos) string {
	return filepath.Join(a.dir(w), fmt.Sprintf("r.%d.%d.%s", rp.X, rp.Z, a.ext))
}

func (a *Adapter) CreateWorld(ctx context.Context, name string) (*world.World, error) {
	hw, created, err := a.EnsureHostWorld(ctx, name)
	if err != nil {
		return nil, err
	}
	w := world.New(name, hw.Folder(), a)
	if err := os.MkdirAll(a.dir(w), 0o755); err != nil {
		return nil, err
	}
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
	if pd, ok := adapter.PersistentData(a.Host); ok {
		if err := pd.DeleteMeta(name, MetaKey); err != nil {
			return fmt.Errorf("delete extra data %s: %w", name, err)
		}
	}
	if err := a.DeleteHostWorld(ctx, name); err != nil {
		return err
	}
	a.Emit(events.Event{Kind: events.WorldDeleted, World: name})
	return nil
}

func (a *Adapter) LoadExtraData(w *world.World) (world.ExtraData, error) {
	var (
		raw   []byte
		found bool
	)
	if pd, ok := adapter.PersistentData(a.Host); ok {
		b, ok, err := pd.GetMeta(w.Name(), MetaKey)
		if err != nil {
			return world.ExtraData{}, fmt.Errorf("load extra data %s: %w", w.Name(), err)
		}
		raw, found = b, ok
	} else {
		b, err := os.ReadFile(filepath.Join(a.dir(w), extraFile))
		switch {
		case err == nil:
			raw, found = b, true
		case !errors.Is(err, fs.ErrNotExist):
			return world.ExtraData{}, fmt.Errorf("load extra data %s: %w", w.Name(), err)
		}
	}

	e := a.DefaultExtra()
	if found {
		decoded, err := world.DecodeExtraJSON(raw)
		if err != nil {
			a.Log.Printf("[%s] invalid extra data, using defaults world=%s err=%v", Name, w.Name(), err)
		} else {
			e = decoded
		}
	}
	w.SetExtra(e)
	return e, nil
}

func (a *Adapter) SaveExtraData(w *world.World) error {
	b, err := w.Extra().MarshalIndent()
	if err != nil {
		return err
	}
	if pd, ok := adapter.PersistentData(a.Host); ok {
		if err := pd.SetMeta(w.Name(), MetaKey, b); err != nil {
			return fmt.Errorf("save extra data %s: %w", w.Name(), err)
		}
		return nil
	}
	return writeFileAtomic(filepath.Join(a.dir(w), extraFile), b)
}

func (a *Adapter) LoadRegion(w *world.World, rp pos.RegionPos, create bool) (*world.Region, error) {
	if r := w.Region(rp); r != nil {
		return r, nil
	}
	path := a.RegionPath(w, rp)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a.CreateRegion(w, rp, create), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read region %s: %w", path, err)
	}

	chunks, err := a.decodeRegion(rp, b)
	if err != nil {
		a.Log.Printf("[%s] corrupt region world=%s region=%s path=%s err=%v", Name, w.Name(), rp, path, err)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %v", adapter.ErrDeleteFailed, path, rmErr)
		}
		a.Emit(events.Event{Kind: events.RegionRecovered, World: w.Name(), Detail: err.Error()}.WithRegion(rp.X, rp.Z))
		return a.CreateRegion(w, rp, create), nil
	}
	return w.LoadOrStoreRegion(world.NewRegionWithBytes(rp, chunks)), nil
}

// decodeRegion parses the container and decodes every chunk in it so a
// region is either fully readable or treated as corrupt.
func (a *Adapter) decodeRegion(rp pos.RegionPos, b []byte) (map[pos.ChunkPos][]byte, error) {
	chunks, err := codec.DecodeRegion(rp, b)
	if err != nil {
		return nil, err
	}
	for cp, raw := range chunks {
		if _, err := a.VerifyChunk(cp, raw); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", cp, err)
		}
	}
	return chunks, nil
}

func (a *Adapter) LoadChunk(w *world.World, cp pos.ChunkPos, create bool) (*world.Chunk, error) {
	r, err := a.LoadRegion(w, cp.RegionPos(), create)
	if err != nil {
		return nil, err
	}
	return a.ChunkFromRegion(w, r, cp, create)
}

func (a *Adapter) SaveRegion(w *world.World, r *world.Region) error {
	rp := r.Pos()
	path := a.RegionPath(w, rp)
	chunks := r.BytesSnapshot()
	r.TakeRemoved()

	if len(chunks) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete region %s: %w", path, err)
		}
		if len(r.LoadedChunks()) == 0 && w.Region(rp) == r {
			w.RemoveRegion(rp)
		}
		a.Emit(events.Event{Kind: events.RegionPruned, World: w.Name()}.WithRegion(rp.X, rp.Z))
		return nil
	}

	b, err := codec.EncodeRegion(rp, chunks)
	if err != nil {
		return fmt.Errorf("encode region %s: %w", rp, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(path, b); err != nil {
		return fmt.Errorf("write region %s: %w", path, err)
	}
	a.Emit(events.Event{Kind: events.RegionSaved, World: w.Name(), Chunks: len(chunks)}.WithRegion(rp.X, rp.Z))
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
