package blobdb

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/util"
)

// LevelDB is a blob map backed by one LevelDB directory per world. Values are
// stored uncompressed since chunk payloads are compressed already.
type LevelDB struct {
	dir  string
	db   *leveldb.DB
	once sync.Once
}

func OpenLevelDB(dir string) (*LevelDB, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty leveldb dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{
		Compression: opt.NoCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &LevelDB{dir: dir, db: db}, nil
}

func (l *LevelDB) Dir() string { return l.dir }

func (l *LevelDB) Get(key string) ([]byte, bool, error) {
	v, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return v, true, nil
}

func (l *LevelDB) Put(key string, value []byte) error {
	if err := l.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Delete(key string) error {
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Keys(prefix string) ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("leveldb keys %s: %w", prefix, err)
	}
	return out, nil
}

func (l *LevelDB) Close() error {
	var err error
	l.once.Do(func() { err = l.db.Close() })
	return err
}
