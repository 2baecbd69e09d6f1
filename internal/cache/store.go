package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a small TTL key-value cache persisted in a local SQLite file.
// Expired entries are removed lazily on the next read.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the cache database under dataDir and prepares the schema.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}

	// WAL keeps reads cheap while background refreshes write.
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure cache db: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS kv_cache (
		key       TEXT PRIMARY KEY,
		value     BLOB NOT NULL,
		stored_at INTEGER NOT NULL,
		ttl_ms    INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value under key. A zero ttl means the entry never expires.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	_, err := s.db.Exec(
		`INSERT INTO kv_cache (key, value, stored_at, ttl_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		     stored_at = excluded.stored_at, ttl_ms = excluded.ttl_ms`,
		key, value, s.now().UnixMilli(), ttl.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or found=false when the key is missing or
// its TTL has elapsed. Elapsed entries are deleted before returning.
func (s *Store) Get(key string) (value []byte, found bool, err error) {
	var storedAt, ttlMillis int64
	row := s.db.QueryRow(`SELECT value, stored_at, ttl_ms FROM kv_cache WHERE key = ?`, key)
	if err := row.Scan(&value, &storedAt, &ttlMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}

	if ttlMillis > 0 && s.now().UnixMilli()-storedAt >= ttlMillis {
		if err := s.Delete(key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return value, true, nil
}

// Delete removes key; deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func (s *Store) SetJSON(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %q: %w", key, err)
	}
	return s.Set(key, data, ttl)
}

// GetJSON unmarshals the cached value for key into v. A value that no longer
// parses is treated as a miss and the offending entry is deleted.
func (s *Store) GetJSON(key string, v any) (found bool, err error) {
	data, found, err := s.Get(key)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		if delErr := s.Delete(key); delErr != nil {
			return false, delErr
		}
		return false, nil
	}
	return true, nil
}

// SetNow overrides the clock; tests use it to step through TTL windows.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}
