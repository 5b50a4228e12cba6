// Package sqlite provides the durable store backend used when messages must
// survive a server restart.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore opens (and initializes if needed) a SQLite-backed store. Failure
// to open the database is fatal at startup, matching the process-level error
// policy.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		logrus.Fatalf("failed to open sqlite database: %v", err)
	}

	tableStmt := `
	CREATE TABLE IF NOT EXISTS entries (
		key        TEXT PRIMARY KEY,
		fields     TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);`
	if _, err = db.Exec(tableStmt); err != nil {
		logrus.Fatalf("failed to create entries table: %v", err)
	}

	return &sqliteStore{db}
}

// Put inserts or overwrites the fields under key. A positive ttl is stored as
// an absolute unix expiry; zero means the entry never expires.
func (s *sqliteStore) Put(key string, fields map[string]string, ttl time.Duration) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s: %w", key, err)
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO entries (key, fields, expires_at) VALUES (?, ?, ?)",
		key, string(encoded), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("store entry %s: %w", key, err)
	}

	logrus.WithFields(logrus.Fields{"key": key, "ttl": ttl}).Debug("Entry stored")
	return nil
}

// GetAllWithPrefix returns every live entry whose key starts with prefix.
// Expired rows are purged first so they can never be returned.
func (s *sqliteStore) GetAllWithPrefix(prefix string) (map[string]map[string]string, error) {
	now := time.Now().Unix()
	if _, err := s.db.Exec("DELETE FROM entries WHERE expires_at > 0 AND expires_at <= ?", now); err != nil {
		return nil, fmt.Errorf("purge expired entries: %w", err)
	}

	pattern := escapeLike(prefix) + "%"
	rows, err := s.db.Query("SELECT key, fields FROM entries WHERE key LIKE ? ESCAPE '\\'", pattern)
	if err != nil {
		return nil, fmt.Errorf("query entries with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	result := make(map[string]map[string]string)
	for rows.Next() {
		var key, encoded string
		if err := rows.Scan(&key, &encoded); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		fields := make(map[string]string)
		if err := json.Unmarshal([]byte(encoded), &fields); err != nil {
			logrus.WithField("key", key).WithError(err).Warn("Skipping undecodable entry")
			continue
		}
		result[key] = fields
	}

	return result, rows.Err()
}

// Delete removes the entry under key. No-op if absent.
func (s *sqliteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// escapeLike neutralizes LIKE metacharacters so prefixes containing % or _
// match literally.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
