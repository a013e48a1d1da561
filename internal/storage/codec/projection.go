package codec

import (
	"hellblock.ai/internal/block"
	"hellblock.ai/internal/pos"
)

const (
	// ChunkVersion is written by the encoder. Version 1 payloads stored block
	// types without a namespace.
	ChunkVersion       = 2
	legacyChunkVersion = 1
)

// ChunkData is the stable wire shape of a chunk, detached from the live chunk.
type ChunkData struct {
	X, Z          int32
	LoadedSeconds int32
	LastLoaded    int64 // epoch millis
	Ticks         []TickEntry
	Ticked        []pos.BlockPos
	Sections      []SectionData
}

func (d ChunkData) Pos() pos.ChunkPos {
	return pos.ChunkPos{X: d.X, Z: d.Z}
}

type TickEntry struct {
	FireTime int32
	Pos      pos.BlockPos
}

type SectionData struct {
	ID     int32
	Blocks map[pos.BlockPos]block.State
}
