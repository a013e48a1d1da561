package fsadapter

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/compress"
	"hellblock.ai/internal/host/localhost"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/adapter"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/world"
	"hellblock.ai/internal/tag"
)

type fixture struct {
	host *localhost.Host
	rec  *events.Recorder
	a    *Adapter
}

func newFixture(t *testing.T, root string, persistent bool) *fixture {
	t.Helper()
	h, err := localhost.Open(localhost.Options{Root: root, PersistentData: persistent})
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	comp, err := compress.Lookup("zstd")
	if err != nil {
		t.Fatalf("compressor: %v", err)
	}
	cc, err := codec.NewChunkCodec(comp, block.DefaultNamespace)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	rec := &events.Recorder{}
	a, err := New("hbr", adapter.Options{Host: h.API(), Codec: cc, Events: rec})
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return &fixture{host: h, rec: rec, a: a}
}

func (f *fixture) world(t *testing.T, name string) *world.World {
	t.Helper()
	w, err := f.a.CreateWorld(context.Background(), name)
	if err != nil {
		t.Fatalf("create world: %v", err)
	}
	return w
}

func wart(age int32) block.State {
	return block.NewState(block.NewKey("hellblock", "nether_wart"), tag.Compound{"age": tag.Int(age)})
}

func (f *fixture) flush(t *testing.T, w *world.World, c *world.Chunk) {
	t.Helper()
	if err := f.a.SaveChunk(w, c); err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	if err := f.a.SaveRegion(w, w.Region(c.Pos().RegionPos())); err != nil {
		t.Fatalf("save region: %v", err)
	}
}

func TestAdapter_RoundTripAcrossRestart(t *testing.T) {
	root := t.TempDir()
	f := newFixture(t, root, false)
	w := f.world(t, "hell")
	cp := pos.ChunkPos{X: -33, Z: 40}
	c, err := f.a.LoadChunk(w, cp, true)
	if err != nil || c == nil {
		t.Fatalf("load chunk: c=%v err=%v", c, err)
	}
	p := pos.NewBlockPos(3, 67, 9)
	c.SetState(p, wart(2))
	c.ScheduleTick(100, p)
	f.flush(t, w, c)

	if _, err := os.Stat(f.a.RegionPath(w, cp.RegionPos())); err != nil {
		t.Fatalf("region file: %v", err)
	}
	if f.rec.Count(events.RegionSaved) != 1 {
		t.Fatalf("region saved events: %d", f.rec.Count(events.RegionSaved))
	}
	_ = f.host.Close()

	g := newFixture(t, root, false)
	w2 := g.world(t, "hell")
	c2, err := g.a.LoadChunk(w2, cp, false)
	if err != nil || c2 == nil {
		t.Fatalf("reload chunk: c=%v err=%v", c2, err)
	}
	st, ok := c2.State(p)
	if !ok || !st.Equal(wart(2)) {
		t.Fatalf("state after restart: got=%v ok=%v", st, ok)
	}
	if e, ok := c2.Ticks().Peek(); !ok || e.FireTime != 100 || e.Pos != p {
		t.Fatalf("tick after restart: %v ok=%v", e, ok)
	}
	if w2.Extra().WorldID != w.Extra().WorldID {
		t.Fatalf("world id changed across restart")
	}
}

func TestAdapter_MissingRegionNotCreated(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	cp := pos.ChunkPos{X: 5, Z: 5}
	c, err := f.a.LoadChunk(w, cp, false)
	if err != nil || c != nil {
		t.Fatalf("expected absent chunk, c=%v err=%v", c, err)
	}
	if w.Region(cp.RegionPos()) != nil {
		t.Fatalf("lookup without create must not cache a region")
	}

	// A present region with a missing chunk is distinct from a missing region.
	other, _ := f.a.LoadChunk(w, pos.ChunkPos{X: 6, Z: 5}, true)
	other.SetState(pos.NewBlockPos(0, 0, 0), wart(1))
	f.flush(t, w, other)
	c, err = f.a.LoadChunk(w, cp, false)
	if err != nil || c != nil {
		t.Fatalf("missing chunk in existing region: c=%v err=%v", c, err)
	}
	if w.Region(cp.RegionPos()) == nil {
		t.Fatalf("existing region should be cached")
	}
}

func TestAdapter_CorruptRegionRecovered(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	rp := pos.RegionPos{X: 1, Z: -1}
	path := f.a.RegionPath(w, rp)
	if err := os.WriteFile(path, []byte("definitely not a region"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := f.a.LoadRegion(w, rp, false)
	if err != nil || r != nil {
		t.Fatalf("corrupt region without create: r=%v err=%v", r, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("corrupt file should be deleted, stat err=%v", err)
	}
	if f.rec.Count(events.RegionRecovered) != 1 {
		t.Fatalf("recovered events: %d", f.rec.Count(events.RegionRecovered))
	}

	if err := os.WriteFile(path, []byte{9, 9, 9}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err = f.a.LoadRegion(w, rp, true)
	if err != nil || r == nil || r.ChunkCount() != 0 {
		t.Fatalf("corrupt region with create: r=%v err=%v", r, err)
	}
}

func TestAdapter_GarbledChunkPayloadRecovered(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	rp := pos.RegionPos{}
	b, err := codec.EncodeRegion(rp, map[pos.ChunkPos][]byte{{X: 2, Z: 3}: []byte("garbage payload")})
	if err != nil {
		t.Fatalf("encode region: %v", err)
	}
	if err := os.WriteFile(f.a.RegionPath(w, rp), b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := f.a.LoadChunk(w, pos.ChunkPos{X: 2, Z: 3}, true)
	if err != nil || c == nil || c.BlockCount() != 0 {
		t.Fatalf("expected fresh chunk, c=%v err=%v", c, err)
	}
	if f.rec.Count(events.RegionRecovered) != 1 {
		t.Fatalf("recovery not reported")
	}
}

func TestAdapter_PruneDeletesRegionFile(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	cp := pos.ChunkPos{X: 0, Z: 0}
	c, _ := f.a.LoadChunk(w, cp, true)
	p := pos.NewBlockPos(1, 1, 1)
	c.SetState(p, wart(0))
	f.flush(t, w, c)
	path := f.a.RegionPath(w, cp.RegionPos())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("region file missing: %v", err)
	}

	c.RemoveState(p)
	f.flush(t, w, c)
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("empty region must be deleted, stat err=%v", err)
	}
	if f.rec.Count(events.ChunkPruned) != 1 || f.rec.Count(events.RegionPruned) != 1 {
		t.Fatalf("prune events: chunk=%d region=%d", f.rec.Count(events.ChunkPruned), f.rec.Count(events.RegionPruned))
	}
}

func TestAdapter_ConcurrentChunkSaves(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	var chunks []*world.Chunk
	for x := int32(0); x < 8; x++ {
		for z := int32(0); z < 8; z++ {
			c, err := f.a.LoadChunk(w, pos.ChunkPos{X: x, Z: z}, true)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			c.SetState(pos.NewBlockPos(x, x*z, z), wart(x+z))
			chunks = append(chunks, c)
		}
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(chunks))
	for _, c := range chunks {
		wg.Add(1)
		go func(c *world.Chunk) {
			defer wg.Done()
			errs <- f.a.SaveChunk(w, c)
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("save chunk: %v", err)
		}
	}
	r := w.Region(pos.RegionPos{})
	if r.ChunkCount() != 64 {
		t.Fatalf("chunk count: got=%d want=64", r.ChunkCount())
	}
	if err := f.a.SaveRegion(w, r); err != nil {
		t.Fatalf("save region: %v", err)
	}
	raw, err := os.ReadFile(f.a.RegionPath(w, pos.RegionPos{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	decoded, err := codec.DecodeRegion(pos.RegionPos{}, raw)
	if err != nil || len(decoded) != 64 {
		t.Fatalf("decode: n=%d err=%v", len(decoded), err)
	}
}

func TestAdapter_SaveIntoUnloadedRegionSkipped(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	c, _ := f.a.LoadChunk(w, pos.ChunkPos{X: 40, Z: 40}, true)
	c.SetState(pos.NewBlockPos(0, 0, 0), wart(1))
	w.RemoveRegion(c.Pos().RegionPos())
	if err := f.a.SaveChunk(w, c); err != nil {
		t.Fatalf("skip should not error: %v", err)
	}
	if w.Region(c.Pos().RegionPos()) != nil {
		t.Fatalf("region resurrected")
	}
	if f.rec.Count(events.SaveSkipped) != 1 {
		t.Fatalf("skip not reported")
	}
}

func TestAdapter_ExtraDataFileAndMeta(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "w")
	e := w.Extra()
	e.Biome = "basalt_deltas"
	w.SetExtra(e)
	if err := f.a.SaveExtraData(w); err != nil {
		t.Fatalf("save extra: %v", err)
	}
	if _, err := os.Stat(filepath.Join(w.Folder(), "hellblock", extraFile)); err != nil {
		t.Fatalf("data.json: %v", err)
	}
	got, err := f.a.LoadExtraData(w)
	if err != nil || got.Biome != "basalt_deltas" {
		t.Fatalf("load extra: %v err=%v", got, err)
	}

	if err := os.WriteFile(filepath.Join(w.Folder(), "hellblock", extraFile), []byte(`{"version":"x"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = f.a.LoadExtraData(w)
	if err != nil || got.Biome != "" || got.WorldID == "" {
		t.Fatalf("invalid extra should fall back to defaults: %v err=%v", got, err)
	}

	m := newFixture(t, t.TempDir(), true)
	mw := m.world(t, "w")
	if _, err := os.Stat(filepath.Join(mw.Folder(), "hellblock", extraFile)); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("meta host should not write data.json, err=%v", err)
	}
	pd, _ := adapter.PersistentData(m.host.API())
	if _, ok, err := pd.GetMeta("w", MetaKey); !ok || err != nil {
		t.Fatalf("meta missing: ok=%v err=%v", ok, err)
	}
}

func TestAdapter_DeleteWorldIdempotent(t *testing.T) {
	f := newFixture(t, t.TempDir(), false)
	w := f.world(t, "doomed")
	folder := w.Folder()
	for i := 0; i < 2; i++ {
		if err := f.a.DeleteWorld(context.Background(), "doomed"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if _, err := os.Stat(folder); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("world folder survived: %v", err)
	}
}
