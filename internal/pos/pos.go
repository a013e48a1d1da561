package pos

import "fmt"

const (
	ChunkSize       = 16
	SectionHeight   = 16
	RegionChunks    = 32
	regionEdgeShift = 5
)

// Pos is an absolute block position.
type Pos struct {
	X, Y, Z int32
}

func (p Pos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// ChunkPos identifies a 16x16 column of blocks.
type ChunkPos struct {
	X, Z int32
}

func ChunkPosOf(p Pos) ChunkPos {
	return ChunkPos{X: p.X >> 4, Z: p.Z >> 4}
}

func (c ChunkPos) RegionPos() RegionPos {
	return RegionPos{X: c.X >> regionEdgeShift, Z: c.Z >> regionEdgeShift}
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("%d,%d", c.X, c.Z)
}

// RegionPos identifies a 32x32 grid cell of chunks.
type RegionPos struct {
	X, Z int32
}

func (r RegionPos) Contains(c ChunkPos) bool {
	return c.RegionPos() == r
}

// MinChunk is the chunk with the smallest coordinates inside the region.
func (r RegionPos) MinChunk() ChunkPos {
	return ChunkPos{X: r.X << regionEdgeShift, Z: r.Z << regionEdgeShift}
}

func (r RegionPos) String() string {
	return fmt.Sprintf("%d,%d", r.X, r.Z)
}

// BlockPos is a chunk-local block position packed into 32 bits:
// x in bits 28-31, z in bits 24-27, and a signed 24-bit y below.
type BlockPos int32

const (
	minY = -(1 << 23)
	maxY = 1<<23 - 1
)

func NewBlockPos(x, y, z int32) BlockPos {
	return BlockPos(int32(uint32(x&0xF)<<28 | uint32(z&0xF)<<24 | uint32(y)&0xFFFFFF))
}

// BlockPosOf drops the chunk part of an absolute position.
func BlockPosOf(p Pos) BlockPos {
	return NewBlockPos(p.X, p.Y, p.Z)
}

func (b BlockPos) X() int32 { return int32(uint32(b) >> 28 & 0xF) }
func (b BlockPos) Z() int32 { return int32(uint32(b) >> 24 & 0xF) }

func (b BlockPos) Y() int32 {
	// Sign-extend the low 24 bits.
	return int32(uint32(b)<<8) >> 8
}

func (b BlockPos) SectionID() int32 {
	return b.Y() >> 4
}

func (b BlockPos) Abs(c ChunkPos) Pos {
	return Pos{X: c.X*ChunkSize + b.X(), Y: b.Y(), Z: c.Z*ChunkSize + b.Z()}
}

func (b BlockPos) String() string {
	return fmt.Sprintf("%d,%d,%d", b.X(), b.Y(), b.Z())
}

// ValidY reports whether y fits the packed representation.
func ValidY(y int32) bool {
	return y >= minY && y <= maxY
}
