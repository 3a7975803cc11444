package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore resolves keys from the api_keys and applications tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps a shared connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Lookup resolves keyHash to the owning application. Inactive keys are
// still returned; rejecting them is the caller's decision.
func (s *PostgresStore) Lookup(ctx context.Context, keyHash string) (*Credential, error) {
	const query = `
		SELECT k.id, k.key_prefix, k.is_active, a.id, a.name
		FROM api_keys k
		JOIN applications a ON a.id = k.application_id
		WHERE k.key_hash = $1`

	var cred Credential
	err := s.db.QueryRowContext(ctx, query, keyHash).Scan(
		&cred.KeyID, &cred.KeyPrefix, &cred.Active, &cred.AppID, &cred.AppName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return &cred, nil
}
