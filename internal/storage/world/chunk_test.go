package world

import (
	"testing"
	"time"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/compress"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/tag"
)

func testState(name string, age int32) block.State {
	return block.NewState(block.NewKey("hellblock", name), tag.Compound{"age": tag.Int(age)})
}

func TestChunk_SectionsCreatedAndDropped(t *testing.T) {
	c := NewChunk(pos.ChunkPos{X: 3, Z: -2})
	p := pos.NewBlockPos(4, 70, 5)
	if c.HasSection(p.SectionID()) {
		t.Fatalf("fresh chunk must have no sections")
	}
	c.SetState(p, testState("nether_wart", 1))
	if !c.HasSection(4) || !c.Dirty() {
		t.Fatalf("section 4 should exist and chunk be dirty")
	}
	st, ok := c.State(p)
	if !ok || st.Type().Value != "nether_wart" {
		t.Fatalf("state: got=%v ok=%v", st, ok)
	}
	if _, ok := c.State(pos.NewBlockPos(4, 71, 5)); ok {
		t.Fatalf("neighbour must be empty")
	}

	c.Data() // clears dirty
	if c.Dirty() {
		t.Fatalf("Data should clear dirty")
	}
	if _, ok := c.RemoveState(p); !ok {
		t.Fatalf("remove existing state")
	}
	if c.HasSection(4) || len(c.SectionIDs()) != 0 {
		t.Fatalf("empty section must be dropped")
	}
	if !c.CanPrune() || !c.Dirty() {
		t.Fatalf("chunk should be prunable and dirty after last removal")
	}
}

func TestChunk_CanPruneConsidersTicks(t *testing.T) {
	c := NewChunk(pos.ChunkPos{})
	p := pos.NewBlockPos(0, -5, 0)
	c.ScheduleTick(40, p)
	if c.CanPrune() {
		t.Fatalf("pending tick keeps chunk")
	}
	if due := c.DrainDueTicks(40); len(due) != 1 || due[0] != p {
		t.Fatalf("drain: got=%v", due)
	}
	c.SetTicked(p, true)
	if c.CanPrune() || !c.IsTicked(p) {
		t.Fatalf("ticked block keeps chunk")
	}
	c.SetTicked(p, false)
	if !c.CanPrune() {
		t.Fatalf("expected prunable")
	}
}

func TestChunk_LoadTiming(t *testing.T) {
	c := NewChunk(pos.ChunkPos{})
	t0 := time.UnixMilli(1_700_000_000_000)
	c.MarkLoaded(t0)
	c.MarkUnloaded(t0.Add(90*time.Second + 400*time.Millisecond))
	if got := c.LoadedSeconds(); got != 90 {
		t.Fatalf("loaded seconds: got=%d want=90", got)
	}
	if got := c.OfflineSeconds(); got != 0 {
		t.Fatalf("offline before reload: got=%d want=0", got)
	}
	c.MarkLoaded(t0.Add(150*time.Second + 400*time.Millisecond))
	if got := c.OfflineSeconds(); got != 60 {
		t.Fatalf("offline seconds: got=%d want=60", got)
	}
	if got := c.LastLoaded(); got != t0.Add(150*time.Second+400*time.Millisecond).UnixMilli() {
		t.Fatalf("last loaded not restamped: got=%d", got)
	}
	fresh := NewChunk(pos.ChunkPos{})
	fresh.MarkLoaded(t0)
	if got := fresh.OfflineSeconds(); got != 0 {
		t.Fatalf("never loaded chunk: got=%d", got)
	}
}

func TestChunk_DataRoundTripThroughCodec(t *testing.T) {
	comp, err := compress.Lookup("zstd")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	cc, err := codec.NewChunkCodec(comp, block.DefaultNamespace)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	c := NewChunk(pos.ChunkPos{X: -7, Z: 12})
	c.MarkLoaded(time.UnixMilli(5_000))
	c.SetState(pos.NewBlockPos(0, 0, 0), testState("soul_fire", 2))
	c.SetState(pos.NewBlockPos(15, -64, 15), testState("soul_fire", 2))
	c.SetState(pos.NewBlockPos(8, 200, 1), testState("lava_rise", 7))
	c.ScheduleTick(12, pos.NewBlockPos(1, 1, 1))
	c.ScheduleTick(12, pos.NewBlockPos(2, 2, 2))
	c.ScheduleTick(3, pos.NewBlockPos(3, 3, 3))
	c.SetTicked(pos.NewBlockPos(8, 200, 1), true)

	b, err := cc.Encode(c.Data())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := cc.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := ChunkFromData(d)
	if got.Pos() != c.Pos() || got.LastLoaded() != 5_000 {
		t.Fatalf("header: got=%v last=%d", got.Pos(), got.LastLoaded())
	}
	if got.BlockCount() != 3 {
		t.Fatalf("blocks: got=%d want=3", got.BlockCount())
	}
	for _, p := range []pos.BlockPos{pos.NewBlockPos(0, 0, 0), pos.NewBlockPos(15, -64, 15), pos.NewBlockPos(8, 200, 1)} {
		want, _ := c.State(p)
		have, ok := got.State(p)
		if !ok || !have.Equal(want) {
			t.Fatalf("state at %v: got=%v want=%v", p, have, want)
		}
	}
	due := got.DrainDueTicks(100)
	want := []pos.BlockPos{pos.NewBlockPos(3, 3, 3), pos.NewBlockPos(1, 1, 1), pos.NewBlockPos(2, 2, 2)}
	if len(due) != len(want) {
		t.Fatalf("ticks: got=%v", due)
	}
	for i := range want {
		if due[i] != want[i] {
			t.Fatalf("tick %d: got=%v want=%v", i, due[i], want[i])
		}
	}
	if !got.IsTicked(pos.NewBlockPos(8, 200, 1)) {
		t.Fatalf("ticked block lost")
	}
}
