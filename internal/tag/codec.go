package tag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	maxDepth     = 512
	maxArrayLen  = 1 << 24
	maxStringLen = math.MaxUint16
)

var ErrMalformed = errors.New("malformed tag data")

// Write encodes t as a named root tag. Compound keys are written in sorted
// order so equal trees always produce identical bytes.
func Write(w io.Writer, name string, t Tag) error {
	if t == nil {
		return fmt.Errorf("nil root tag")
	}
	e := encoder{w: w}
	e.byte(byte(t.Type()))
	e.string(name)
	e.payload(t, 0)
	return e.err
}

func Marshal(name string, t Tag) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, name, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes one named root tag.
func Read(r io.Reader) (string, Tag, error) {
	d := decoder{r: r}
	typ := Type(d.byte())
	if d.err != nil {
		return "", nil, d.err
	}
	if typ == TypeEnd {
		return "", nil, fmt.Errorf("%w: root is an end tag", ErrMalformed)
	}
	name := d.string()
	t := d.payload(typ, 0)
	if d.err != nil {
		return "", nil, d.err
	}
	return name, t, nil
}

func Unmarshal(b []byte) (string, Tag, error) {
	r := bytes.NewReader(b)
	name, t, err := Read(r)
	if err != nil {
		return "", nil, err
	}
	if r.Len() != 0 {
		return "", nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return name, t, nil
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) byte(b byte) {
	e.buf[0] = b
	e.write(e.buf[:1])
}

func (e *encoder) u16(v uint16) {
	binary.BigEndian.PutUint16(e.buf[:2], v)
	e.write(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.BigEndian.PutUint64(e.buf[:8], v)
	e.write(e.buf[:8])
}

func (e *encoder) string(s string) {
	if len(s) > maxStringLen {
		if e.err == nil {
			e.err = fmt.Errorf("string of %d bytes exceeds %d", len(s), maxStringLen)
		}
		return
	}
	e.u16(uint16(len(s)))
	e.write([]byte(s))
}

func (e *encoder) payload(t Tag, depth int) {
	if depth > maxDepth {
		if e.err == nil {
			e.err = fmt.Errorf("tag nesting exceeds %d", maxDepth)
		}
		return
	}
	switch v := t.(type) {
	case Byte:
		e.byte(byte(v))
	case Short:
		e.u16(uint16(v))
	case Int:
		e.u32(uint32(v))
	case Long:
		e.u64(uint64(v))
	case Float:
		e.u32(math.Float32bits(float32(v)))
	case Double:
		e.u64(math.Float64bits(float64(v)))
	case ByteArray:
		e.u32(uint32(len(v)))
		e.write(v)
	case String:
		e.string(string(v))
	case IntArray:
		e.u32(uint32(len(v)))
		for _, x := range v {
			e.u32(uint32(x))
		}
	case List:
		e.byte(byte(v.Elem))
		e.u32(uint32(len(v.Values)))
		for i, x := range v.Values {
			if x == nil || x.Type() != v.Elem {
				if e.err == nil {
					e.err = fmt.Errorf("list element %d: want %s", i, v.Elem)
				}
				return
			}
			e.payload(x, depth+1)
		}
	case Compound:
		for _, k := range v.Keys() {
			x := v[k]
			if x == nil {
				continue
			}
			e.byte(byte(x.Type()))
			e.string(k)
			e.payload(x, depth+1)
		}
		e.byte(byte(TypeEnd))
	default:
		if e.err == nil {
			e.err = fmt.Errorf("unsupported tag %T", t)
		}
	}
}

type decoder struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.fail("short read: %v", err)
	}
	return d.buf[:n]
}

func (d *decoder) byte() byte  { return d.read(1)[0] }
func (d *decoder) u16() uint16 { return binary.BigEndian.Uint16(d.read(2)) }
func (d *decoder) u32() uint32 { return binary.BigEndian.Uint32(d.read(4)) }
func (d *decoder) u64() uint64 { return binary.BigEndian.Uint64(d.read(8)) }

func (d *decoder) length() int {
	n := int32(d.u32())
	if d.err != nil {
		return 0
	}
	if n < 0 || n > maxArrayLen {
		d.fail("bad length %d", n)
		return 0
	}
	return int(n)
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil || n == 0 {
		return []byte{}
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(d.r, out); err != nil {
		d.fail("short read: %v", err)
	}
	return out
}

func (d *decoder) string() string {
	n := int(d.u16())
	return string(d.bytes(n))
}

func (d *decoder) payload(typ Type, depth int) Tag {
	if depth > maxDepth {
		d.fail("nesting exceeds %d", maxDepth)
		return nil
	}
	switch typ {
	case TypeByte:
		return Byte(int8(d.byte()))
	case TypeShort:
		return Short(int16(d.u16()))
	case TypeInt:
		return Int(int32(d.u32()))
	case TypeLong:
		return Long(int64(d.u64()))
	case TypeFloat:
		return Float(math.Float32frombits(d.u32()))
	case TypeDouble:
		return Double(math.Float64frombits(d.u64()))
	case TypeByteArray:
		return ByteArray(d.bytes(d.length()))
	case TypeString:
		return String(d.string())
	case TypeIntArray:
		n := d.length()
		out := make(IntArray, 0, min(n, 4096))
		for i := 0; i < n && d.err == nil; i++ {
			out = append(out, int32(d.u32()))
		}
		return out
	case TypeList:
		elem := Type(d.byte())
		n := d.length()
		if d.err != nil {
			return nil
		}
		if elem == TypeEnd && n > 0 {
			d.fail("list of %d end tags", n)
			return nil
		}
		if elem > TypeIntArray {
			d.fail("unknown list element type %d", elem)
			return nil
		}
		l := List{Elem: elem, Values: make([]Tag, 0, min(n, 4096))}
		for i := 0; i < n && d.err == nil; i++ {
			l.Values = append(l.Values, d.payload(elem, depth+1))
		}
		return l
	case TypeCompound:
		c := Compound{}
		for d.err == nil {
			t := Type(d.byte())
			if d.err != nil || t == TypeEnd {
				break
			}
			name := d.string()
			c[name] = d.payload(t, depth+1)
		}
		return c
	}
	d.fail("unknown tag type %d", typ)
	return nil
}
