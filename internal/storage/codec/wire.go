package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type writer struct {
	buf bytes.Buffer
	tmp [8]byte
}

func (w *writer) u8(v byte) { w.buf.WriteByte(v) }

func (w *writer) i32(v int32) {
	binary.BigEndian.PutUint32(w.tmp[:4], uint32(v))
	w.buf.Write(w.tmp[:4])
}

func (w *writer) i64(v int64) {
	binary.BigEndian.PutUint64(w.tmp[:8], uint64(v))
	w.buf.Write(w.tmp[:8])
}

func (w *writer) bytes(b []byte) { w.buf.Write(b) }

// reader decodes big-endian fields from a byte slice. The first failure
// sticks; later reads return zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorrupt, n, r.off, r.remaining())
		return nil
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) i32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// count reads an entry count whose entries take at least entrySize bytes.
func (r *reader) count(entrySize int) int {
	n := r.i32()
	if r.err != nil {
		return 0
	}
	if n < 0 || n > maxEntries || int(n)*entrySize > r.remaining() {
		r.err = fmt.Errorf("%w: bad entry count %d at offset %d", ErrCorrupt, n, r.off)
		return 0
	}
	return int(n)
}
