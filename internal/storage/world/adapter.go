package world

import (
	"context"

	"hellblock.ai/internal/pos"
)

// Adapter is a backing store for custom block state. Implementations decide
// how regions and chunks map onto their medium; the World only caches them.
type Adapter interface {
	Name() string
	// Priority orders adapters during selection; higher wins.
	Priority() int
	Available() bool

	// CreateWorld registers name with the host (idempotent) and returns the
	// storage-side world bound to this adapter.
	CreateWorld(ctx context.Context, name string) (*World, error)
	DeleteWorld(ctx context.Context, name string) error

	LoadExtraData(w *World) (ExtraData, error)
	SaveExtraData(w *World) error

	// LoadRegion returns the cached region or reads it from the medium. A
	// missing region is created when create is set, otherwise nil is returned.
	LoadRegion(w *World, rp pos.RegionPos, create bool) (*Region, error)
	// LoadChunk resolves the owning region first; a missing region yields nil.
	LoadChunk(w *World, cp pos.ChunkPos, create bool) (*Chunk, error)

	// SaveRegion writes the region's chunk payloads to the medium, deleting
	// the backing entry when nothing remains.
	SaveRegion(w *World, r *Region) error
	// SaveChunk re-encodes c into its region's payload cache only.
	SaveChunk(w *World, c *Chunk) error
}
