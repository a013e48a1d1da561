package codec

import (
	"fmt"
	"sort"

	"hellblock.ai/internal/pos"
)

const (
	RegionVersion   = 1
	maxRegionChunks = pos.RegionChunks * pos.RegionChunks
)

// EncodeRegion packs pre-encoded chunk payloads into one region container.
// Entries are ordered by chunk coordinates so equal inputs give equal bytes.
func EncodeRegion(rp pos.RegionPos, chunks map[pos.ChunkPos][]byte) ([]byte, error) {
	keys := make([]pos.ChunkPos, 0, len(chunks))
	for cp := range chunks {
		if !rp.Contains(cp) {
			return nil, fmt.Errorf("chunk %v does not belong to region %v", cp, rp)
		}
		keys = append(keys, cp)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Z < keys[j].Z
	})

	var w writer
	w.u8(RegionVersion)
	w.i32(rp.X)
	w.i32(rp.Z)
	w.i32(int32(len(keys)))
	for _, cp := range keys {
		payload := chunks[cp]
		w.i32(cp.X)
		w.i32(cp.Z)
		w.i32(int32(len(payload)))
		w.bytes(payload)
	}
	return w.buf.Bytes(), nil
}

// DecodeRegion unpacks a region container. Payloads are returned as-is; they
// are validated by the chunk codec.
func DecodeRegion(rp pos.RegionPos, b []byte) (map[pos.ChunkPos][]byte, error) {
	r := reader{b: b}
	version := r.u8()
	x := r.i32()
	z := r.i32()
	if r.err != nil {
		return nil, r.err
	}
	if version != RegionVersion {
		return nil, fmt.Errorf("%w: region version %d", ErrUnsupportedVersion, version)
	}
	if x != rp.X || z != rp.Z {
		return nil, fmt.Errorf("%w: region header %d,%d in file for %v", ErrCorrupt, x, z, rp)
	}
	n := r.count(12)
	if n > maxRegionChunks {
		return nil, fmt.Errorf("%w: %d chunks in one region", ErrCorrupt, n)
	}
	out := make(map[pos.ChunkPos][]byte, n)
	for i := 0; i < n && r.err == nil; i++ {
		cp := pos.ChunkPos{X: r.i32(), Z: r.i32()}
		size := r.i32()
		payload := r.bytes(int(size))
		if r.err != nil {
			break
		}
		if !rp.Contains(cp) {
			return nil, fmt.Errorf("%w: chunk %v outside region %v", ErrCorrupt, cp, rp)
		}
		if _, dup := out[cp]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk %v", ErrCorrupt, cp)
		}
		out[cp] = payload
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing region bytes", ErrCorrupt, r.remaining())
	}
	return out, nil
}
