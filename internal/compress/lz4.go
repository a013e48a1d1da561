package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4 blocks carry a one-byte marker: incompressible input is stored raw.
const (
	lz4Raw   = 0
	lz4Block = 1
)

type lz4Compressor struct{}

func newLZ4() (Compressor, error) { return lz4Compressor{}, nil }

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, 1+lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst[1:], nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(src) {
		out := make([]byte, 1+len(src))
		out[0] = lz4Raw
		copy(out[1:], src)
		return out, nil
	}
	dst[0] = lz4Block
	return dst[:1+n], nil
}

func (lz4Compressor) Decompress(src []byte, size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, fmt.Errorf("lz4: empty frame")
	}
	switch src[0] {
	case lz4Raw:
		if len(src)-1 != size {
			return nil, fmt.Errorf("lz4: raw frame holds %d bytes, want %d", len(src)-1, size)
		}
		return append([]byte(nil), src[1:]...), nil
	case lz4Block:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(src[1:], out)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, fmt.Errorf("lz4: decoded %d bytes, want %d", n, size)
		}
		return out, nil
	}
	return nil, fmt.Errorf("lz4: unknown frame marker %d", src[0])
}
