// Package cache keeps compiled artifacts in SQLite, keyed by the digest of
// the texts and options they were built from.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("cscript.cache")

// ErrNotFound indicates no artifact is stored for a digest.
var ErrNotFound = errors.New("artifact not found")

// Entry describes one cached artifact.
type Entry struct {
	ID      string
	Unit    string
	Digest  string
	Size    int
	Hits    int
	Created time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path. Parent directories
// are created. ":memory:" gives a private in-memory cache.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		id      TEXT PRIMARY KEY,
		unit    TEXT NOT NULL,
		digest  TEXT NOT NULL UNIQUE,
		data    BLOB NOT NULL,
		created INTEGER NOT NULL,
		hits    INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened %s", path)
	return &Cache{db: db, path: path}, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func key(digest [32]byte) string {
	return hex.EncodeToString(digest[:])
}

// Get returns the artifact bytes stored for digest and counts a hit.
func (c *Cache) Get(digest [32]byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM artifacts WHERE digest = ?", key(digest)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	if _, err := c.db.Exec("UPDATE artifacts SET hits = hits + 1 WHERE digest = ?", key(digest)); err != nil {
		return nil, fmt.Errorf("counting hit: %w", err)
	}
	return data, nil
}

// Put stores data for digest, replacing an older entry with the same
// digest, and returns the new entry's id.
func (c *Cache) Put(unit string, digest [32]byte, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO artifacts (id, unit, digest, data, created, hits) VALUES (?, ?, ?, ?, ?, 0)",
		id, unit, key(digest), data, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("saving artifact: %w", err)
	}
	log.Debugf("stored %s for %s (%d bytes)", id, unit, len(data))
	return id, nil
}

// Entries lists the cache contents, newest first.
func (c *Cache) Entries() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query("SELECT id, unit, digest, length(data), hits, created FROM artifacts ORDER BY created DESC, unit")
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Unit, &e.Digest, &e.Size, &e.Hits, &created); err != nil {
			return nil, fmt.Errorf("reading artifact row: %w", err)
		}
		e.Created = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune removes every entry created before cutoff and reports how many
// were removed.
func (c *Cache) Prune(cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM artifacts WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning artifacts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
