package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveCounter persists one named counter's current value.
func (db *DB) SaveCounter(name string, value uint64) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO metrics (name, value, updated_at)
		VALUES (?, ?, ?)
	`, name, int64(value), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving counter %s: %w", name, err)
	}
	return nil
}

// LoadCounter returns a persisted counter, zero if never saved.
func (db *DB) LoadCounter(name string) (uint64, error) {
	var value int64
	err := db.conn.QueryRow("SELECT value FROM metrics WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading counter %s: %w", name, err)
	}
	return uint64(value), nil
}

// LoadCounters returns every persisted counter.
func (db *DB) LoadCounters() (map[string]uint64, error) {
	rows, err := db.conn.Query("SELECT name, value FROM metrics")
	if err != nil {
		return nil, fmt.Errorf("loading counters: %w", err)
	}
	defer rows.Close()

	out := map[string]uint64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning counter: %w", err)
		}
		out[name] = uint64(value)
	}
	return out, rows.Err()
}
