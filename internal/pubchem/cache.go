package pubchem

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultCacheTTL is how long a cached lookup stays fresh.
const DefaultCacheTTL = 30 * 24 * time.Hour

var _ Cache = (*SQLiteCache)(nil)

// SQLiteCache persists lookup results in a single SQLite table keyed by
// normalized query. Entries older than the TTL are treated as misses and
// overwritten on the next successful lookup.
type SQLiteCache struct {
	db    *sql.DB
	ttl   time.Duration
	nowFn func() time.Time
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string, ttl time.Duration) (*SQLiteCache, error) {
	if path == "" {
		path = "lookup_cache.db"
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS lookups (
		query TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create lookups table: %w", err)
	}
	return &SQLiteCache{
		db:    db,
		ttl:   ttl,
		nowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get returns the cached details for query if present and fresh.
func (c *SQLiteCache) Get(ctx context.Context, query string) (Details, bool) {
	var payload []byte
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM lookups WHERE query = ?`, query,
	).Scan(&payload, &fetchedAt)
	if err != nil {
		return Details{}, false
	}
	if c.nowFn().Sub(time.Unix(fetchedAt, 0)) > c.ttl {
		return Details{}, false
	}
	var d Details
	if err := json.Unmarshal(payload, &d); err != nil {
		return Details{}, false
	}
	return d, true
}

// Put upserts the details for query.
func (c *SQLiteCache) Put(ctx context.Context, query string, d Details) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO lookups(query, payload, fetched_at) VALUES(?,?,?)
		 ON CONFLICT(query) DO UPDATE SET payload=excluded.payload, fetched_at=excluded.fetched_at`,
		query, payload, c.nowFn().Unix())
	return err
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error { return c.db.Close() }
