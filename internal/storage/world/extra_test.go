package world

import (
	"testing"

	"github.com/google/uuid"
)

func TestExtraData_JSONRoundTrip(t *testing.T) {
	e := NewExtraData(1234)
	e.Biome = "soul_sand_valley"
	e.Generated = true
	e.Flags = map[string]bool{"lava_rise": true, "pvp": false}
	b, err := e.MarshalIndent()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := DecodeExtraJSON(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WorldID != e.WorldID || got.Spawn != e.Spawn || !got.Generated || !got.Flags["lava_rise"] {
		t.Fatalf("round trip: got=%v want=%v", got, e)
	}
	if _, err := uuid.Parse(got.WorldID); err != nil {
		t.Fatalf("world id: %v", err)
	}
}

func TestExtraData_SchemaRejects(t *testing.T) {
	cases := []string{
		`not json`,
		`{"world_id":"0b7a3c4e-8f7e-4c55-9a4d-0a4e5f6a7b8c"}`,
		`{"version":1,"world_id":"nope"}`,
		`{"version":1,"world_id":"0b7a3c4e-8f7e-4c55-9a4d-0a4e5f6a7b8c","spawn":[1,2]}`,
		`{"version":1,"world_id":"0b7a3c4e-8f7e-4c55-9a4d-0a4e5f6a7b8c","flags":{"a":"yes"}}`,
	}
	for _, c := range cases {
		if _, err := DecodeExtraJSON([]byte(c)); err == nil {
			t.Fatalf("expected rejection for %s", c)
		}
	}
}

func TestExtraData_TagRoundTrip(t *testing.T) {
	e := NewExtraData(99)
	e.Spawn = [3]int32{-10, 80, 33}
	e.Flags = map[string]bool{"raining": true}
	got, err := ExtraFromTag(e.Tag())
	if err != nil {
		t.Fatalf("from tag: %v", err)
	}
	if got.WorldID != e.WorldID || got.Spawn != e.Spawn || got.CreatedAt != 99 || !got.Flags["raining"] {
		t.Fatalf("tag round trip: got=%v", got)
	}
	bad := e.Tag()
	delete(bad, "version")
	if _, err := ExtraFromTag(bad); err == nil {
		t.Fatalf("missing version must fail")
	}
}
