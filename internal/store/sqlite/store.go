package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
)

// Store implements credential.Store on the credentials table.
type Store struct {
	db *DB
}

// NewStore wraps an open DB.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Get returns the record for key.
func (s *Store) Get(ctx context.Context, key string) (credential.Record, error) {
	const query = `SELECT key, secret_hash, domain, zone_id, last_set_address FROM credentials WHERE key = ?`

	var r credential.Record
	err := s.db.Reader.QueryRowContext(ctx, query, key).
		Scan(&r.Key, &r.SecretHash, &r.Domain, &r.ZoneID, &r.LastSetAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.Record{}, credential.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("get credential %q: %w", key, err)
	}
	return r, nil
}

// Put overwrites the record stored under r.Key.
func (s *Store) Put(ctx context.Context, r credential.Record) error {
	const query = `INSERT OR REPLACE INTO credentials
		(key, secret_hash, domain, zone_id, last_set_address, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

	_, err := s.db.Writer.ExecContext(ctx, query, r.Key, r.SecretHash, r.Domain, r.ZoneID, r.LastSetAddress)
	if err != nil {
		return fmt.Errorf("put credential %q: %w", r.Key, err)
	}
	return nil
}

// Ping checks the reader pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Reader.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ credential.Store = (*Store)(nil)
