package block

import (
	"fmt"
	"strings"

	"hellblock.ai/internal/tag"
)

// State is the custom state of one block: its type plus kind-specific data.
// A State is immutable; replacing a block's state replaces the whole value.
type State struct {
	typ  Key
	data tag.Compound
}

func NewState(typ Key, data tag.Compound) State {
	if data == nil {
		data = tag.Compound{}
	} else {
		data = data.Clone()
	}
	return State{typ: typ, data: data}
}

func (s State) Type() Key { return s.typ }

// Data returns a copy of the state's data.
func (s State) Data() tag.Compound { return s.data.Clone() }

// Get returns a copy of one data field.
func (s State) Get(name string) (tag.Tag, bool) {
	v, ok := s.data[name]
	if !ok {
		return nil, false
	}
	return tag.Clone(v), true
}

// With returns a new state with one field replaced.
func (s State) With(name string, v tag.Tag) State {
	data := s.data.Clone()
	if data == nil {
		data = tag.Compound{}
	}
	data[name] = tag.Clone(v)
	return State{typ: s.typ, data: data}
}

func (s State) Equal(o State) bool {
	return s.typ == o.typ && tag.Equal(s.nonNilData(), o.nonNilData())
}

func (s State) nonNilData() tag.Compound {
	if s.data == nil {
		return tag.Compound{}
	}
	return s.data
}

// Fingerprint is a canonical byte string equal for equal states.
func (s State) Fingerprint() (string, error) {
	b, err := tag.Marshal(s.typ.String(), s.nonNilData())
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", s.typ, err)
	}
	return string(b), nil
}

// RawData exposes the state's data without copying. Callers must not mutate it.
func (s State) RawData() tag.Compound { return s.nonNilData() }

func (s State) String() string {
	var b strings.Builder
	b.WriteString(s.typ.String())
	b.WriteString("{")
	for i, k := range s.nonNilData().Keys() {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s=%v", k, s.data[k])
	}
	b.WriteString("}")
	return b.String()
}
