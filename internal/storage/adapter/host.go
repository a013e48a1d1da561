package adapter

import "context"

// Host is the engine that owns native worlds. World registration and file
// deletion must go through Main, which runs fn on the host's primary loop.
type Host interface {
	Name() string
	World(name string) (HostWorld, bool)
	CreateWorldWithGenerator(name, generator string) (HostWorld, error)
	DeleteWorldFiles(name string) error
	Main(ctx context.Context, fn func() error) error
}

type HostWorld interface {
	Name() string
	Folder() string
}

// PersistentDataHolder is offered by hosts that keep small per-world
// metadata blobs themselves.
type PersistentDataHolder interface {
	GetMeta(world, key string) ([]byte, bool, error)
	SetMeta(world, key string, value []byte) error
	DeleteMeta(world, key string) error
}

// BlobMapProvider is offered by hosts with an embedded key/value engine.
type BlobMapProvider interface {
	BlobsEnabled() bool
	BlobMap(world string) (BlobMap, error)
	CloseBlobMap(world string) error
}

type BlobMap interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Keys lists keys starting with prefix in ascending order.
	Keys(prefix string) ([]string, error)
	Close() error
}

func PersistentData(h Host) (PersistentDataHolder, bool) {
	p, ok := h.(PersistentDataHolder)
	return p, ok
}

// Blobs returns the host's blob provider when one is present and enabled.
func Blobs(h Host) (BlobMapProvider, bool) {
	p, ok := h.(BlobMapProvider)
	if !ok || !p.BlobsEnabled() {
		return nil, false
	}
	return p, true
}
