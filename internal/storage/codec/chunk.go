package codec

import (
	"errors"
	"fmt"
	"sort"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/compress"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/tag"
)

var (
	ErrCorrupt            = errors.New("corrupt chunk data")
	ErrUnsupportedVersion = errors.New("unsupported chunk format version")
)

const (
	maxEntries      = 1 << 20
	maxSectionBytes = 32 << 20
)

// ChunkCodec converts ChunkData to and from its compressed byte payload.
type ChunkCodec struct {
	comp      compress.Compressor
	namespace string
}

func NewChunkCodec(c compress.Compressor, defaultNamespace string) (*ChunkCodec, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil compressor", compress.ErrUnavailable)
	}
	if defaultNamespace == "" {
		defaultNamespace = block.DefaultNamespace
	}
	return &ChunkCodec{comp: c, namespace: defaultNamespace}, nil
}

func (c *ChunkCodec) Compressor() compress.Compressor { return c.comp }

func (c *ChunkCodec) Encode(d ChunkData) ([]byte, error) {
	return c.encode(d, ChunkVersion)
}

func (c *ChunkCodec) encode(d ChunkData, version byte) ([]byte, error) {
	var w writer
	w.u8(version)
	w.i32(d.X)
	w.i32(d.Z)
	w.i32(d.LoadedSeconds)
	w.i64(d.LastLoaded)

	w.i32(int32(len(d.Ticks)))
	for _, t := range d.Ticks {
		w.i32(t.FireTime)
		w.i32(int32(t.Pos))
	}

	ticked := append([]pos.BlockPos(nil), d.Ticked...)
	sort.Slice(ticked, func(i, j int) bool { return ticked[i] < ticked[j] })
	w.i32(int32(len(ticked)))
	for _, p := range ticked {
		w.i32(int32(p))
	}

	raw, err := c.encodeSections(d.Sections, version)
	if err != nil {
		return nil, err
	}
	z, err := c.comp.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress sections: %w", err)
	}
	w.i32(int32(len(z)))
	w.i32(int32(len(raw)))
	w.bytes(z)
	return w.buf.Bytes(), nil
}

func (c *ChunkCodec) encodeSections(sections []SectionData, version byte) ([]byte, error) {
	nonEmpty := make([]SectionData, 0, len(sections))
	for _, s := range sections {
		if len(s.Blocks) > 0 {
			nonEmpty = append(nonEmpty, s)
		}
	}
	sort.Slice(nonEmpty, func(i, j int) bool { return nonEmpty[i].ID < nonEmpty[j].ID })

	var w writer
	w.i32(int32(len(nonEmpty)))
	for _, s := range nonEmpty {
		payload, err := encodeSection(s, version)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", s.ID, err)
		}
		w.i32(s.ID)
		w.i32(int32(len(payload)))
		w.bytes(payload)
	}
	return w.buf.Bytes(), nil
}

type stateGroup struct {
	state block.State
	pos   []int32
}

// encodeSection writes one record per distinct state with every position
// that shares it.
func encodeSection(s SectionData, version byte) ([]byte, error) {
	positions := make([]pos.BlockPos, 0, len(s.Blocks))
	for p := range s.Blocks {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	var groups []*stateGroup
	byFingerprint := map[string]*stateGroup{}
	for _, p := range positions {
		st := s.Blocks[p]
		if err := st.Type().Validate(); err != nil {
			return nil, fmt.Errorf("block %v: %w", p, err)
		}
		fp, err := st.Fingerprint()
		if err != nil {
			return nil, err
		}
		g, ok := byFingerprint[fp]
		if !ok {
			g = &stateGroup{state: st}
			byFingerprint[fp] = g
			groups = append(groups, g)
		}
		g.pos = append(g.pos, int32(p))
	}

	records := make([]tag.Tag, 0, len(groups))
	for _, g := range groups {
		typ := g.state.Type().String()
		if version < ChunkVersion {
			typ = g.state.Type().Value
		}
		records = append(records, tag.Compound{
			"type": tag.String(typ),
			"pos":  tag.IntArray(g.pos),
			"data": g.state.RawData(),
		})
	}
	return tag.Marshal("", tag.Compound{
		"blocks": tag.List{Elem: tag.TypeCompound, Values: records},
	})
}

// Decode parses a chunk payload. Every failure wraps ErrCorrupt or
// ErrUnsupportedVersion; a failed decode never returns partial data.
func (c *ChunkCodec) Decode(b []byte) (ChunkData, error) {
	r := reader{b: b}
	version := r.u8()
	if r.err != nil {
		return ChunkData{}, r.err
	}
	if version != ChunkVersion && version != legacyChunkVersion {
		return ChunkData{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var d ChunkData
	d.X = r.i32()
	d.Z = r.i32()
	d.LoadedSeconds = r.i32()
	d.LastLoaded = r.i64()

	n := r.count(8)
	if n > 0 {
		d.Ticks = make([]TickEntry, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		fire := r.i32()
		p := pos.BlockPos(r.i32())
		d.Ticks = append(d.Ticks, TickEntry{FireTime: fire, Pos: p})
	}

	n = r.count(4)
	if n > 0 {
		d.Ticked = make([]pos.BlockPos, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		d.Ticked = append(d.Ticked, pos.BlockPos(r.i32()))
	}

	zlen := r.i32()
	rawLen := r.i32()
	if r.err != nil {
		return ChunkData{}, r.err
	}
	if zlen < 0 || rawLen < 0 || rawLen > maxSectionBytes {
		return ChunkData{}, fmt.Errorf("%w: section frame %d/%d", ErrCorrupt, zlen, rawLen)
	}
	z := r.bytes(int(zlen))
	if r.err != nil {
		return ChunkData{}, r.err
	}
	if r.remaining() != 0 {
		return ChunkData{}, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.remaining())
	}
	raw, err := c.comp.Decompress(z, int(rawLen))
	if err != nil {
		return ChunkData{}, fmt.Errorf("%w: decompress sections: %v", ErrCorrupt, err)
	}
	sections, err := c.decodeSections(raw, version)
	if err != nil {
		return ChunkData{}, err
	}
	d.Sections = sections
	return d, nil
}

func (c *ChunkCodec) decodeSections(raw []byte, version byte) ([]SectionData, error) {
	r := reader{b: raw}
	n := r.count(8)
	var out []SectionData
	seen := map[int32]bool{}
	for i := 0; i < n && r.err == nil; i++ {
		id := r.i32()
		size := r.i32()
		if r.err != nil {
			break
		}
		if size < 0 {
			return nil, fmt.Errorf("%w: section %d length %d", ErrCorrupt, id, size)
		}
		payload := r.bytes(int(size))
		if r.err != nil {
			break
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate section %d", ErrCorrupt, id)
		}
		seen[id] = true
		s, err := c.decodeSection(id, payload, version)
		if err != nil {
			return nil, err
		}
		if len(s.Blocks) > 0 {
			out = append(out, s)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing section bytes", ErrCorrupt, r.remaining())
	}
	return out, nil
}

func (c *ChunkCodec) decodeSection(id int32, payload []byte, version byte) (SectionData, error) {
	_, root, err := tag.Unmarshal(payload)
	if err != nil {
		return SectionData{}, fmt.Errorf("%w: section %d: %v", ErrCorrupt, id, err)
	}
	rc, ok := root.(tag.Compound)
	if !ok {
		return SectionData{}, fmt.Errorf("%w: section %d root is %s", ErrCorrupt, id, root.Type())
	}
	list, ok := rc.GetList("blocks")
	if !ok || (list.Elem != tag.TypeCompound && len(list.Values) > 0) {
		return SectionData{}, fmt.Errorf("%w: section %d has no block list", ErrCorrupt, id)
	}
	s := SectionData{ID: id, Blocks: map[pos.BlockPos]block.State{}}
	for i, v := range list.Values {
		rec := v.(tag.Compound)
		typ, ok := rec.GetString("type")
		if !ok {
			return SectionData{}, fmt.Errorf("%w: section %d record %d has no type", ErrCorrupt, id, i)
		}
		var key block.Key
		if version < ChunkVersion {
			key, err = block.QualifyKey(typ, c.namespace)
		} else {
			key, err = block.ParseKey(typ)
		}
		if err != nil {
			return SectionData{}, fmt.Errorf("%w: section %d: %v", ErrCorrupt, id, err)
		}
		positions, ok := rec.GetIntArray("pos")
		if !ok {
			return SectionData{}, fmt.Errorf("%w: section %d record %d has no positions", ErrCorrupt, id, i)
		}
		data, _ := rec.GetCompound("data")
		st := block.NewState(key, data)
		for _, p := range positions {
			bp := pos.BlockPos(p)
			if bp.SectionID() != id {
				return SectionData{}, fmt.Errorf("%w: position %v outside section %d", ErrCorrupt, bp, id)
			}
			s.Blocks[bp] = st
		}
	}
	return s, nil
}

// PeekPos reads only the chunk coordinates from a payload header.
func PeekPos(b []byte) (pos.ChunkPos, error) {
	r := reader{b: b}
	version := r.u8()
	x := r.i32()
	z := r.i32()
	if r.err != nil {
		return pos.ChunkPos{}, r.err
	}
	if version != ChunkVersion && version != legacyChunkVersion {
		return pos.ChunkPos{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return pos.ChunkPos{X: x, Z: z}, nil
}

// IsCorrupt reports whether err came from malformed or unsupported bytes.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrUnsupportedVersion)
}
