package codec

import (
	"bytes"
	"testing"

	"hellblock.ai/internal/pos"
)

func TestRegionContainerRoundTrip(t *testing.T) {
	rp := pos.RegionPos{X: -1, Z: 0}
	in := map[pos.ChunkPos][]byte{
		{X: -1, Z: 0}:   []byte("first"),
		{X: -32, Z: 31}: []byte("second payload"),
		{X: -5, Z: 7}:   {},
	}
	b, err := EncodeRegion(rp, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if b[0] != RegionVersion {
		t.Fatalf("version byte=%d", b[0])
	}
	out, err := DecodeRegion(rp, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("chunks=%d want %d", len(out), len(in))
	}
	for cp, payload := range in {
		if !bytes.Equal(out[cp], payload) {
			t.Fatalf("chunk %v payload mismatch", cp)
		}
	}
}

func TestEncodeRegionRejectsForeignChunk(t *testing.T) {
	_, err := EncodeRegion(pos.RegionPos{}, map[pos.ChunkPos][]byte{{X: 32, Z: 0}: nil})
	if err == nil {
		t.Fatalf("expected error for chunk outside region")
	}
}

func TestDecodeRegionRejectsMalformed(t *testing.T) {
	rp := pos.RegionPos{X: 2, Z: 3}
	good, err := EncodeRegion(rp, map[pos.ChunkPos][]byte{{X: 64, Z: 96}: []byte("abc")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRegion(pos.RegionPos{X: 2, Z: 4}, good); !IsCorrupt(err) {
		t.Fatalf("wrong region: err=%v", err)
	}
	if _, err := DecodeRegion(rp, good[:len(good)-1]); !IsCorrupt(err) {
		t.Fatalf("truncated: err=%v", err)
	}
	if _, err := DecodeRegion(rp, append(append([]byte(nil), good...), 0)); !IsCorrupt(err) {
		t.Fatalf("trailing: err=%v", err)
	}
	bad := append([]byte(nil), good...)
	bad[0] = 9
	if _, err := DecodeRegion(rp, bad); !IsCorrupt(err) {
		t.Fatalf("version: err=%v", err)
	}
	if _, err := DecodeRegion(rp, nil); !IsCorrupt(err) {
		t.Fatalf("empty: err=%v", err)
	}
}
