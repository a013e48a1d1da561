package blobdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite stores world metadata and, when used as the blob engine, per-world
// blob maps in a single database file.
type SQLite struct {
	db   *sql.DB
	once sync.Once
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS world_meta (
			world TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (world, key)
		);`,
		`CREATE TABLE IF NOT EXISTS blobs (
			world TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (world, key)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}

func (s *SQLite) GetMeta(world, key string) ([]byte, bool, error) {
	return s.get("world_meta", world, key)
}

func (s *SQLite) SetMeta(world, key string, value []byte) error {
	return s.put("world_meta", world, key, value)
}

func (s *SQLite) DeleteMeta(world, key string) error {
	return s.del("world_meta", world, key)
}

// DropWorld removes every metadata row and blob of world.
func (s *SQLite) DropWorld(world string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM world_meta WHERE world=?`, world); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM blobs WHERE world=?`, world); err != nil {
		return err
	}
	return tx.Commit()
}

// Map returns the blob map of one world.
func (s *SQLite) Map(world string) *SQLiteMap {
	return &SQLiteMap{s: s, world: world}
}

func (s *SQLite) get(table, world, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRow(`SELECT value FROM `+table+` WHERE world=? AND key=?`, world, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s/%s: %w", world, key, err)
	}
	return v, true, nil
}

func (s *SQLite) put(table, world, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(
		`INSERT INTO `+table+`(world, key, value) VALUES(?,?,?)
		 ON CONFLICT(world, key) DO UPDATE SET value=excluded.value`,
		world, key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite put %s/%s: %w", world, key, err)
	}
	return nil
}

func (s *SQLite) del(table, world, key string) error {
	if _, err := s.db.Exec(`DELETE FROM `+table+` WHERE world=? AND key=?`, world, key); err != nil {
		return fmt.Errorf("sqlite delete %s/%s: %w", world, key, err)
	}
	return nil
}

// SQLiteMap is a world-scoped view of the blobs table.
type SQLiteMap struct {
	s     *SQLite
	world string
}

func (m *SQLiteMap) Get(key string) ([]byte, bool, error) { return m.s.get("blobs", m.world, key) }
func (m *SQLiteMap) Put(key string, v []byte) error       { return m.s.put("blobs", m.world, key, v) }
func (m *SQLiteMap) Delete(key string) error              { return m.s.del("blobs", m.world, key) }

func (m *SQLiteMap) Keys(prefix string) ([]string, error) {
	rows, err := m.s.db.Query(
		`SELECT key FROM blobs WHERE world=? AND substr(key, 1, ?)=? ORDER BY key`,
		m.world, len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys %s/%s: %w", m.world, prefix, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, rows.Err()
}

// Close is a no-op; the database is shared and closed by its owner.
func (m *SQLiteMap) Close() error { return nil }
