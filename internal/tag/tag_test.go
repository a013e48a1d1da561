package tag

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func sampleCompound(t *testing.T) Compound {
	t.Helper()
	names, err := NewList(TypeString, String("a"), String("b"))
	if err != nil {
		t.Fatalf("new list: %v", err)
	}
	empty, err := NewList(TypeCompound)
	if err != nil {
		t.Fatalf("new empty list: %v", err)
	}
	return Compound{
		"byte":    Byte(-3),
		"short":   Short(1200),
		"int":     Int(-70000),
		"long":    Long(math.MaxInt64),
		"float":   Float(1.5),
		"double":  Double(-2.25),
		"bytes":   ByteArray{1, 2, 3},
		"string":  String("lava_rise"),
		"ints":    IntArray{1, -2, 3},
		"names":   names,
		"empty":   empty,
		"nested":  Compound{"stage": Int(3), "owner": String("uuid")},
		"nothing": ByteArray{},
	}
}

func TestMarshalUnmarshalRoundTripsAllTypes(t *testing.T) {
	in := sampleCompound(t)
	b, err := Marshal("root", in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	name, out, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if name != "root" {
		t.Fatalf("name=%q want root", name)
	}
	if !Equal(in, out) {
		t.Fatalf("round trip mismatch: in=%v out=%v", in, out)
	}
	l, ok := out.(Compound).GetList("empty")
	if !ok || l.Elem != TypeCompound || len(l.Values) != 0 {
		t.Fatalf("empty list lost its element type: %+v", l)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	a, err := Marshal("", sampleCompound(t))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		b, err := Marshal("", sampleCompound(t))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("marshal output differs between runs")
		}
	}
}

func TestNewListRejectsMixedTypes(t *testing.T) {
	if _, err := NewList(TypeInt, Int(1), String("x")); err == nil {
		t.Fatalf("expected error for heterogeneous list")
	}
	if _, err := Marshal("", List{Elem: TypeInt, Values: []Tag{Long(1)}}); err == nil {
		t.Fatalf("expected marshal error for heterogeneous list")
	}
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	b, err := Marshal("root", sampleCompound(t))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, n := range []int{0, 1, 5, len(b) / 2, len(b) - 1} {
		if _, _, err := Unmarshal(b[:n]); !errors.Is(err, ErrMalformed) {
			t.Fatalf("truncated at %d: err=%v want ErrMalformed", n, err)
		}
	}
}

func TestUnmarshalRejectsNegativeLength(t *testing.T) {
	// compound root "" { int_array "a" length -1 }
	b := []byte{byte(TypeCompound), 0, 0, byte(TypeIntArray), 0, 1, 'a', 0xFF, 0xFF, 0xFF, 0xFF}
	if _, _, err := Unmarshal(b); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	in := sampleCompound(t)
	c := in.Clone()
	c["nested"].(Compound)["stage"] = Int(9)
	c["ints"].(IntArray)[0] = 42
	if v, _ := in["nested"].(Compound).GetInt("stage"); v != 3 {
		t.Fatalf("clone shares nested compound")
	}
	if in["ints"].(IntArray)[0] != 1 {
		t.Fatalf("clone shares int array")
	}
}

func TestEqualComparesNaNByBits(t *testing.T) {
	nan := Double(math.NaN())
	if !Equal(nan, nan) {
		t.Fatalf("NaN should equal itself by bit pattern")
	}
	if Equal(Int(1), Long(1)) {
		t.Fatalf("different types must not be equal")
	}
}
