// Package cache stores compiled bytecode modules in a SQLite database,
// keyed by a hash of the source text.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/rplus-lang/rplus/bytecode"
)

// ErrMiss indicates the requested module is not cached.
var ErrMiss = errors.New("module not cached")

// Cache is a compiled module store. Safe for concurrent use.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) a cache database at the given path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating modules table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Key returns the cache key for a piece of source text.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Put stores the compiled module for the given source text.
func (c *Cache) Put(source string, m *bytecode.Module) error {
	data, err := m.Serialize()
	if err != nil {
		return fmt.Errorf("serializing module: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO modules (hash, data) VALUES (?, ?)",
		Key(source), data,
	)
	if err != nil {
		return fmt.Errorf("storing module: %w", err)
	}
	return nil
}

// Get retrieves the compiled module for the given source text.
// Returns ErrMiss when the source has not been cached.
func (c *Cache) Get(source string) (*bytecode.Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM modules WHERE hash = ?", Key(source)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}

	m, err := bytecode.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("cached module corrupt: %w", err)
	}
	return m, nil
}

// Count reports the number of cached modules.
func (c *Cache) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM modules").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting modules: %w", err)
	}
	return n, nil
}

// Purge removes every cached module.
func (c *Cache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM modules"); err != nil {
		return fmt.Errorf("purging cache: %w", err)
	}
	return nil
}
