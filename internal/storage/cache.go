package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetResponse retrieves a cached response for the key at the given
// workspace version. Expired entries are deleted on lookup.
func (db *DB) GetResponse(key string, version uint64) ([]byte, bool, error) {
	var value []byte
	var expiresAt string

	err := db.conn.QueryRow(`
		SELECT value, expires_at
		FROM response_cache
		WHERE key = ? AND version = ?
	`, key, int64(version)).Scan(&value, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("response cache lookup: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, false, fmt.Errorf("bad expires_at %q: %w", expiresAt, err)
	}
	if time.Now().After(expiry) {
		db.conn.Exec("DELETE FROM response_cache WHERE key = ? AND version = ?", key, int64(version))
		return nil, false, nil
	}

	return value, true, nil
}

// PutResponse stores a response under the key and workspace version.
func (db *DB) PutResponse(key string, version uint64, value []byte, ttl time.Duration) error {
	now := time.Now()
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO response_cache (key, version, value, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, int64(version), value,
		now.Add(ttl).Format(time.RFC3339),
		now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing response: %w", err)
	}
	return nil
}

// SweepExpired deletes entries past their expiry plus everything keyed to
// versions older than minVersion. Run from the maintenance loop.
func (db *DB) SweepExpired(minVersion uint64) (int64, error) {
	res, err := db.conn.Exec(`
		DELETE FROM response_cache
		WHERE expires_at < ? OR version < ?
	`, time.Now().Format(time.RFC3339), int64(minVersion))
	if err != nil {
		return 0, fmt.Errorf("sweeping response cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.log.Debug("cache sweep", "deleted", n)
	}
	return n, nil
}
