// Package compress resolves the byte compressor used for chunk section
// frames. A compressor is looked up once by name; an unknown or broken
// compressor is an error, never a silent pass-through.
package compress

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const maxDecodedSize = 64 << 20

var ErrUnavailable = errors.New("compressor unavailable")

type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	// Decompress expands src, which must decode to exactly size bytes.
	Decompress(src []byte, size int) ([]byte, error)
}

type factory func() (Compressor, error)

var (
	registryMu sync.Mutex
	factories  = map[string]factory{
		"zstd":   newZstd,
		"snappy": newSnappy,
		"lz4":    newLZ4,
	}
	resolved = map[string]Compressor{}
)

// Lookup returns the named compressor, constructing it on first use.
func Lookup(name string) (Compressor, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	registryMu.Lock()
	defer registryMu.Unlock()
	if c, ok := resolved[name]; ok {
		return c, nil
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown compressor %q (have %s)", ErrUnavailable, name, strings.Join(namesLocked(), ", "))
	}
	c, err := f()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	resolved[name] = c
	return c, nil
}

func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	return namesLocked()
}

func namesLocked() []string {
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func checkSize(size int) error {
	if size < 0 || size > maxDecodedSize {
		return fmt.Errorf("decoded size %d out of range", size)
	}
	return nil
}
