package world

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"hellblock.ai/internal/tag"
)

const ExtraVersion = 1

// ExtraData is the per-world metadata stored next to the region data.
type ExtraData struct {
	Version   int             `json:"version"`
	WorldID   string          `json:"world_id"`
	Spawn     [3]int32        `json:"spawn"`
	Biome     string          `json:"biome,omitempty"`
	Generated bool            `json:"generated"`
	Flags     map[string]bool `json:"flags,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"` // epoch millis
}

// NewExtraData returns defaults with a fresh world id.
func NewExtraData(createdAt int64) ExtraData {
	return ExtraData{
		Version:   ExtraVersion,
		WorldID:   uuid.NewString(),
		Spawn:     [3]int32{0, 64, 0},
		CreatedAt: createdAt,
	}
}

func (e ExtraData) Clone() ExtraData {
	out := e
	if e.Flags != nil {
		out.Flags = make(map[string]bool, len(e.Flags))
		for k, v := range e.Flags {
			out.Flags[k] = v
		}
	}
	return out
}

// Tag renders the extra data as a compound for tag-based backends.
func (e ExtraData) Tag() tag.Compound {
	flags := tag.Compound{}
	for k, v := range e.Flags {
		flags[k] = tag.Bool(v)
	}
	return tag.Compound{
		"version":    tag.Int(e.Version),
		"world_id":   tag.String(e.WorldID),
		"spawn":      tag.IntArray{e.Spawn[0], e.Spawn[1], e.Spawn[2]},
		"biome":      tag.String(e.Biome),
		"generated":  tag.Bool(e.Generated),
		"flags":      flags,
		"created_at": tag.Long(e.CreatedAt),
	}
}

// ExtraFromTag is the inverse of Tag.
func ExtraFromTag(c tag.Compound) (ExtraData, error) {
	var e ExtraData
	v, ok := c.GetInt("version")
	if !ok || v < 1 {
		return e, fmt.Errorf("extra data: missing version")
	}
	e.Version = int(v)
	id, _ := c.GetString("world_id")
	if _, err := uuid.Parse(id); err != nil {
		return e, fmt.Errorf("extra data: world_id: %w", err)
	}
	e.WorldID = id
	if sp, ok := c.GetIntArray("spawn"); ok {
		if len(sp) != 3 {
			return e, fmt.Errorf("extra data: spawn has %d coords", len(sp))
		}
		e.Spawn = [3]int32{sp[0], sp[1], sp[2]}
	}
	e.Biome, _ = c.GetString("biome")
	e.Generated = c.GetBool("generated")
	e.CreatedAt, _ = c.GetLong("created_at")
	if flags, ok := c.GetCompound("flags"); ok && len(flags) > 0 {
		e.Flags = make(map[string]bool, len(flags))
		for _, k := range flags.Keys() {
			b, ok := flags.GetByte(k)
			if !ok {
				return e, fmt.Errorf("extra data: flag %q is not a byte", k)
			}
			e.Flags[k] = b != 0
		}
	}
	return e, nil
}

//go:embed extra.schema.json
var extraSchemaJSON string

var (
	extraSchemaOnce sync.Once
	extraSchema     *jsonschema.Schema
	extraSchemaErr  error
)

func compiledExtraSchema() (*jsonschema.Schema, error) {
	extraSchemaOnce.Do(func() {
		extraSchema, extraSchemaErr = jsonschema.CompileString("extra.schema.json", extraSchemaJSON)
	})
	return extraSchema, extraSchemaErr
}

func (e ExtraData) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// DecodeExtraJSON validates b against the extra-data schema before decoding.
func DecodeExtraJSON(b []byte) (ExtraData, error) {
	var e ExtraData
	s, err := compiledExtraSchema()
	if err != nil {
		return e, fmt.Errorf("extra schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return e, fmt.Errorf("extra data: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return e, fmt.Errorf("extra data: %w", err)
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return e, fmt.Errorf("extra data: %w", err)
	}
	if _, err := uuid.Parse(e.WorldID); err != nil {
		return e, fmt.Errorf("extra data: world_id: %w", err)
	}
	return e, nil
}

func (e ExtraData) String() string {
	keys := make([]string, 0, len(e.Flags))
	for k, v := range e.Flags {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return fmt.Sprintf("world_id=%s spawn=%v biome=%q generated=%t flags=[%s]",
		e.WorldID, e.Spawn, e.Biome, e.Generated, strings.Join(keys, ","))
}
