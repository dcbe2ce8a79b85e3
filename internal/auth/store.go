package auth

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Key is one issued token's stored record. The secret itself is never
// persisted.
type Key struct {
	ID           string
	Name         string
	TokenHash    string
	LookupPrefix string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	Revoked      bool
}

// KeyStore persists issued keys in the daemon database.
type KeyStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewKeyStore creates a KeyStore and ensures its table exists.
func NewKeyStore(db *sql.DB, log *slog.Logger) (*KeyStore, error) {
	s := &KeyStore{db: db, log: log}
	schema := `
		CREATE TABLE IF NOT EXISTS auth_keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			lookup_prefix TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			revoked INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_auth_keys_prefix ON auth_keys(lookup_prefix);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating auth schema: %w", err)
	}
	return s, nil
}

// Issue mints a new token under the given name. Returns the stored key and
// the raw token, which is never recoverable afterwards.
func (s *KeyStore) Issue(name string) (*Key, string, error) {
	raw, prefix, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashToken(raw)
	if err != nil {
		return nil, "", err
	}

	key := &Key{
		ID:           uuid.NewString(),
		Name:         name,
		TokenHash:    hash,
		LookupPrefix: prefix,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.Exec(`
		INSERT INTO auth_keys (id, name, token_hash, lookup_prefix, created_at, revoked)
		VALUES (?, ?, ?, ?, ?, 0)
	`, key.ID, key.Name, key.TokenHash, key.LookupPrefix, key.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, "", fmt.Errorf("saving key: %w", err)
	}

	s.log.Info("token issued", "id", key.ID, "name", name)
	return key, raw, nil
}

// Verify checks a presented token against the stored keys. Lookup goes by
// clear prefix first so bcrypt runs against a handful of candidates at most.
func (s *KeyStore) Verify(token string) (*Key, bool) {
	if !ValidFormat(token) {
		return nil, false
	}

	rows, err := s.db.Query(`
		SELECT id, name, token_hash, lookup_prefix, created_at
		FROM auth_keys
		WHERE lookup_prefix = ? AND revoked = 0
	`, LookupPrefix(token))
	if err != nil {
		s.log.Error("key lookup failed", "error", err)
		return nil, false
	}
	defer rows.Close()

	for rows.Next() {
		var key Key
		var createdAt string
		if err := rows.Scan(&key.ID, &key.Name, &key.TokenHash, &key.LookupPrefix, &createdAt); err != nil {
			continue
		}
		if VerifyToken(token, key.TokenHash) {
			key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
			s.touch(key.ID)
			return &key, true
		}
	}
	return nil, false
}

func (s *KeyStore) touch(id string) {
	s.db.Exec("UPDATE auth_keys SET last_used_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
}

// Revoke marks a key unusable.
func (s *KeyStore) Revoke(id string) error {
	res, err := s.db.Exec("UPDATE auth_keys SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no key with id %s", id)
	}
	s.log.Info("token revoked", "id", id)
	return nil
}

// List returns every stored key, newest first.
func (s *KeyStore) List() ([]*Key, error) {
	rows, err := s.db.Query(`
		SELECT id, name, lookup_prefix, created_at, last_used_at, revoked
		FROM auth_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var out []*Key
	for rows.Next() {
		var key Key
		var createdAt string
		var lastUsed sql.NullString
		var revoked int
		if err := rows.Scan(&key.ID, &key.Name, &key.LookupPrefix, &createdAt, &lastUsed, &revoked); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if lastUsed.Valid {
			if t, err := time.Parse(time.RFC3339, lastUsed.String); err == nil {
				key.LastUsedAt = &t
			}
		}
		key.Revoked = revoked != 0
		out = append(out, &key)
	}
	return out, rows.Err()
}
