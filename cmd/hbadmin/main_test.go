package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/persistence/blobdb"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/adapter/kvadapter"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/storage/events"
)

func TestParseRegionName(t *testing.T) {
	rp, err := parseRegionName("r.-3.7.hbr")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rp != (pos.RegionPos{X: -3, Z: 7}) {
		t.Fatalf("got=%v want=-3,7", rp)
	}
	for _, bad := range []string{"r.1.hbr", "x.1.2.hbr", "r.a.2.hbr", "r.1.99999999999.hbr"} {
		if _, err := parseRegionName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func encodeChunk(t *testing.T, cc *codec.ChunkCodec, cp pos.ChunkPos) []byte {
	t.Helper()
	bp := pos.NewBlockPos(1, 70, 2)
	b, err := cc.Encode(codec.ChunkData{
		X: cp.X, Z: cp.Z,
		LoadedSeconds: 5,
		Sections: []codec.SectionData{{
			ID:     bp.SectionID(),
			Blocks: map[pos.BlockPos]block.State{bp: block.NewState(block.NewKey("hellblock", "ember"), nil)},
		}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func TestDumpChunks_ReportsCorrupt(t *testing.T) {
	cc, err := newCodec("zstd", "hellblock")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	good := pos.ChunkPos{X: 1, Z: 1}
	chunks := map[pos.ChunkPos][]byte{good: encodeChunk(t, cc, good)}
	chunks[pos.ChunkPos{X: 2, Z: 1}] = encodeChunk(t, cc, good)
	chunks[pos.ChunkPos{X: 3, Z: 1}] = []byte{0xff, 0x00}
	var out bytes.Buffer
	if failed := dumpChunks(&out, cc, chunks, true); failed != 2 {
		t.Fatalf("failed=%d want=2\n%s", failed, out.String())
	}
	s := out.String()
	if !strings.Contains(s, "chunk 1,1 ") || !strings.Contains(s, "blocks=1") {
		t.Fatalf("missing summary:\n%s", s)
	}
	if !strings.Contains(s, "hellblock:ember") {
		t.Fatalf("missing block listing:\n%s", s)
	}
	if strings.Count(s, "CORRUPT") != 2 {
		t.Fatalf("corrupt lines:\n%s", s)
	}
}

func TestLoadKVChunks(t *testing.T) {
	db, err := blobdb.OpenLevelDB(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	cp := pos.ChunkPos{X: -4, Z: 9}
	if err := db.Put(kvadapter.ChunkKey(cp), []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Put("extra", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := loadKVChunks(db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || string(got[cp]) != "payload" {
		t.Fatalf("got=%v", got)
	}
}

func TestFilterEvents(t *testing.T) {
	evs := []events.Event{{Kind: events.RegionSaved}, {Kind: events.ChunkPruned}, {Kind: events.RegionSaved}}
	if n := len(filterEvents(evs, "")); n != 3 {
		t.Fatalf("unfiltered got=%d want=3", n)
	}
	if n := len(filterEvents(evs, events.RegionSaved)); n != 2 {
		t.Fatalf("filtered got=%d want=2", n)
	}
	if len(evs) != 3 || evs[1].Kind != events.ChunkPruned {
		t.Fatalf("input mutated: %v", evs)
	}
}
