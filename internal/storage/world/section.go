package world

import (
	"hellblock.ai/internal/block"
	"hellblock.ai/internal/pos"
)

// Section is a 16-block-high slice of a chunk holding only customized blocks.
// It is owned by its chunk and guarded by the chunk's lock.
type Section struct {
	id     int32
	blocks map[pos.BlockPos]block.State
}

func newSection(id int32) *Section {
	return &Section{id: id, blocks: map[pos.BlockPos]block.State{}}
}

func (s *Section) ID() int32 { return s.id }
func (s *Section) Len() int  { return len(s.blocks) }

func (s *Section) State(p pos.BlockPos) (block.State, bool) {
	st, ok := s.blocks[p]
	return st, ok
}

func (s *Section) copyBlocks() map[pos.BlockPos]block.State {
	out := make(map[pos.BlockPos]block.State, len(s.blocks))
	for p, st := range s.blocks {
		out[p] = st
	}
	return out
}
