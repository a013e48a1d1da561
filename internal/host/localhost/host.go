// Package localhost is a disk-backed host engine: worlds are directories
// under a root, registered through a single primary loop.
package localhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"hellblock.ai/internal/persistence/blobdb"
	"hellblock.ai/internal/storage/adapter"
)

const levelFile = "level.json"

var ErrClosed = errors.New("host closed")

type Options struct {
	Root string
	// BlobEngine is "leveldb", "sqlite" or "none".
	BlobEngine     string
	PersistentData bool
	DBPath         string
	Logger         *log.Logger
}

type level struct {
	Name      string `json:"name"`
	Generator string `json:"generator,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type hostWorld struct {
	name   string
	folder string
}

func (w hostWorld) Name() string   { return w.name }
func (w hostWorld) Folder() string { return w.folder }

type task struct {
	fn   func() error
	done chan error
}

type Host struct {
	root       string
	engine     string
	persistent bool
	log        *log.Logger

	db *blobdb.SQLite

	queue     chan task
	closing   chan struct{}
	loopWG    sync.WaitGroup
	closeOnce sync.Once

	mu     sync.RWMutex
	worlds map[string]hostWorld
	blobs  map[string]*blobdb.LevelDB
}

func Open(opts Options) (*Host, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("empty host root")
	}
	engine := strings.ToLower(strings.TrimSpace(opts.BlobEngine))
	switch engine {
	case "":
		engine = "none"
	case "none", "leveldb", "sqlite":
	default:
		return nil, fmt.Errorf("unknown blob engine %q", opts.BlobEngine)
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, err
	}
	h := &Host{
		root:       opts.Root,
		engine:     engine,
		persistent: opts.PersistentData,
		log:        opts.Logger,
		queue:      make(chan task, 64),
		closing:    make(chan struct{}),
		worlds:     map[string]hostWorld{},
		blobs:      map[string]*blobdb.LevelDB{},
	}
	if h.log == nil {
		h.log = log.New(io.Discard, "", 0)
	}
	if h.persistent || h.engine == "sqlite" {
		path := opts.DBPath
		if path == "" {
			path = filepath.Join(opts.Root, "host.sqlite")
		}
		db, err := blobdb.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open host db: %w", err)
		}
		h.db = db
	}
	if err := h.scan(); err != nil {
		h.closeStores()
		return nil, err
	}
	h.loopWG.Add(1)
	go h.loop()
	return h, nil
}

// API returns the host as seen by storage adapters. The persistent-data
// capability is only exposed when enabled.
func (h *Host) API() adapter.Host {
	if h.persistent && h.db != nil {
		return metaHost{h}
	}
	return h
}

func (h *Host) scan() error {
	ents, err := os.ReadDir(h.root)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(h.root, e.Name())
		b, err := os.ReadFile(filepath.Join(folder, levelFile))
		if err != nil {
			continue
		}
		var lv level
		if err := json.Unmarshal(b, &lv); err != nil || lv.Name != e.Name() {
			h.log.Printf("[host] skip world dir=%s err=%v", folder, err)
			continue
		}
		h.worlds[lv.Name] = hostWorld{name: lv.Name, folder: folder}
	}
	return nil
}

func (h *Host) loop() {
	defer h.loopWG.Done()
	for {
		select {
		case t := <-h.queue:
			t.done <- t.fn()
		case <-h.closing:
			return
		}
	}
}

func (h *Host) Name() string { return "localhost" }
func (h *Host) Root() string { return h.root }

// Main runs fn on the primary loop and waits for it to finish.
func (h *Host) Main(ctx context.Context, fn func() error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case h.queue <- t:
	case <-h.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.done:
		return err
	case <-h.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) World(name string) (adapter.HostWorld, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w, ok := h.worlds[name]
	if !ok {
		return nil, false
	}
	return w, true
}

func (h *Host) Worlds() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.worlds))
	for name := range h.worlds {
		out = append(out, name)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

func (h *Host) CreateWorldWithGenerator(name, generator string) (adapter.HostWorld, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid world name %q", name)
	}
	if w, ok := h.World(name); ok {
		return w, nil
	}
	folder := filepath.Join(h.root, name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(level{Name: name, Generator: generator, CreatedAt: time.Now().UnixMilli()}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(folder, levelFile), b, 0o644); err != nil {
		return nil, err
	}
	w := hostWorld{name: name, folder: folder}
	h.mu.Lock()
	h.worlds[name] = w
	h.mu.Unlock()
	h.log.Printf("[host] world created name=%s generator=%s", name, generator)
	return w, nil
}

func (h *Host) DeleteWorldFiles(name string) error {
	w, ok := h.World(name)
	if !ok {
		return nil
	}
	if err := h.CloseBlobMap(name); err != nil {
		return err
	}
	if h.db != nil {
		if err := h.db.DropWorld(name); err != nil {
			return fmt.Errorf("drop world rows: %w", err)
		}
	}
	if err := os.RemoveAll(w.Folder()); err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.worlds, name)
	h.mu.Unlock()
	h.log.Printf("[host] world deleted name=%s", name)
	return nil
}

func (h *Host) BlobsEnabled() bool { return h.engine != "none" }

func (h *Host) BlobMap(world string) (adapter.BlobMap, error) {
	w, ok := h.World(world)
	if !ok {
		return nil, fmt.Errorf("unknown world %q", world)
	}
	switch h.engine {
	case "sqlite":
		return h.db.Map(world), nil
	case "leveldb":
		h.mu.Lock()
		defer h.mu.Unlock()
		if l, ok := h.blobs[world]; ok {
			return l, nil
		}
		l, err := blobdb.OpenLevelDB(filepath.Join(w.Folder(), "blobs"))
		if err != nil {
			return nil, err
		}
		h.blobs[world] = l
		return l, nil
	}
	return nil, fmt.Errorf("blob engine disabled")
}

func (h *Host) CloseBlobMap(world string) error {
	h.mu.Lock()
	l, ok := h.blobs[world]
	delete(h.blobs, world)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Close()
}

func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		close(h.closing)
		h.loopWG.Wait()
	})
	return h.closeStores()
}

func (h *Host) closeStores() error {
	var firstErr error
	h.mu.Lock()
	for name, l := range h.blobs {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.blobs, name)
	}
	h.mu.Unlock()
	if h.db != nil {
		if err := h.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// metaHost adds the persistent-data capability backed by the host db.
type metaHost struct{ *Host }

func (m metaHost) GetMeta(world, key string) ([]byte, bool, error) {
	return m.db.GetMeta(world, key)
}

func (m metaHost) SetMeta(world, key string, value []byte) error {
	if _, ok := m.World(world); !ok {
		return fmt.Errorf("unknown world %q", world)
	}
	return m.db.SetMeta(world, key, value)
}

func (m metaHost) DeleteMeta(world, key string) error {
	return m.db.DeleteMeta(world, key)
}
