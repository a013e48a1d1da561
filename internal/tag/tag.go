// Package tag implements a small self-describing typed tree used for
// per-block metadata and embedded world data.
package tag

import (
	"bytes"
	"fmt"
	"math"
	"sort"
)

type Type byte

const (
	TypeEnd Type = iota
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeByteArray
	TypeString
	TypeList
	TypeCompound
	TypeIntArray
)

func (t Type) String() string {
	switch t {
	case TypeEnd:
		return "end"
	case TypeByte:
		return "byte"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeByteArray:
		return "byte_array"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeCompound:
		return "compound"
	case TypeIntArray:
		return "int_array"
	}
	return fmt.Sprintf("type(%d)", byte(t))
}

type Tag interface {
	Type() Type
}

type (
	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	ByteArray []byte
	String    string
	IntArray  []int32
)

func (Byte) Type() Type      { return TypeByte }
func (Short) Type() Type     { return TypeShort }
func (Int) Type() Type       { return TypeInt }
func (Long) Type() Type      { return TypeLong }
func (Float) Type() Type     { return TypeFloat }
func (Double) Type() Type    { return TypeDouble }
func (ByteArray) Type() Type { return TypeByteArray }
func (String) Type() Type    { return TypeString }
func (IntArray) Type() Type  { return TypeIntArray }

// List is homogeneous: every value has type Elem. Elem is kept for empty lists.
type List struct {
	Elem   Type
	Values []Tag
}

func (List) Type() Type { return TypeList }

func NewList(elem Type, values ...Tag) (List, error) {
	if elem == TypeEnd && len(values) > 0 {
		return List{}, fmt.Errorf("list of end tags cannot hold values")
	}
	for i, v := range values {
		if v == nil || v.Type() != elem {
			return List{}, fmt.Errorf("list element %d: want %s", i, elem)
		}
	}
	return List{Elem: elem, Values: values}, nil
}

type Compound map[string]Tag

func (Compound) Type() Type { return TypeCompound }

// Keys returns the compound's keys in sorted order.
func (c Compound) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c Compound) GetString(key string) (string, bool) {
	v, ok := c[key].(String)
	return string(v), ok
}

func (c Compound) GetInt(key string) (int32, bool) {
	v, ok := c[key].(Int)
	return int32(v), ok
}

func (c Compound) GetLong(key string) (int64, bool) {
	v, ok := c[key].(Long)
	return int64(v), ok
}

func (c Compound) GetByte(key string) (int8, bool) {
	v, ok := c[key].(Byte)
	return int8(v), ok
}

func (c Compound) GetBool(key string) bool {
	v, _ := c.GetByte(key)
	return v != 0
}

func (c Compound) GetCompound(key string) (Compound, bool) {
	v, ok := c[key].(Compound)
	return v, ok
}

func (c Compound) GetIntArray(key string) ([]int32, bool) {
	v, ok := c[key].(IntArray)
	return []int32(v), ok
}

func (c Compound) GetList(key string) (List, bool) {
	v, ok := c[key].(List)
	return v, ok
}

func Bool(b bool) Byte {
	if b {
		return 1
	}
	return 0
}

// Clone returns a deep copy of t.
func Clone(t Tag) Tag {
	switch v := t.(type) {
	case ByteArray:
		return append(ByteArray(nil), v...)
	case IntArray:
		return append(IntArray(nil), v...)
	case List:
		out := List{Elem: v.Elem, Values: make([]Tag, len(v.Values))}
		for i, e := range v.Values {
			out.Values[i] = Clone(e)
		}
		return out
	case Compound:
		return v.Clone()
	}
	return t
}

func (c Compound) Clone() Compound {
	if c == nil {
		return nil
	}
	out := make(Compound, len(c))
	for k, v := range c {
		out[k] = Clone(v)
	}
	return out
}

// Equal reports deep equality. Floats compare by bit pattern so that NaN
// payloads survive a round trip as equal.
func Equal(a, b Tag) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Float:
		return math.Float32bits(float32(av)) == math.Float32bits(float32(b.(Float)))
	case Double:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Double)))
	case ByteArray:
		return bytes.Equal(av, b.(ByteArray))
	case IntArray:
		bv := b.(IntArray)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case List:
		bv := b.(List)
		if av.Elem != bv.Elem || len(av.Values) != len(bv.Values) {
			return false
		}
		for i := range av.Values {
			if !Equal(av.Values[i], bv.Values[i]) {
				return false
			}
		}
		return true
	case Compound:
		bv := b.(Compound)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return a == b
}
