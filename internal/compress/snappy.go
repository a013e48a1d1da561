package compress

import (
	"fmt"

	"github.com/golang/snappy"
)

type snappyCompressor struct{}

func newSnappy() (Compressor, error) { return snappyCompressor{}, nil }

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte, size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("snappy: frame holds %d bytes, want %d", n, size)
	}
	return snappy.Decode(make([]byte, size), src)
}
