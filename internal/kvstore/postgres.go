package kvstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of Store. Rows are scoped by
// namespace so that several installs (kiosks, QA harnesses) can share a database.
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool, namespace string) *PostgresStore {
	if namespace == "" {
		namespace = "default"
	}
	return &PostgresStore{pool: pool, namespace: namespace}
}

// Migrate creates the cache table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS kv_cache (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		)
	`
	_, err := s.pool.Exec(ctx, query)
	return err
}

// Get retrieves a value by key.
func (s *PostgresStore) Get(ctx context.Context, key Key) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	query := `SELECT value FROM kv_cache WHERE namespace = $1 AND key = $2`

	var value string
	err := s.pool.QueryRow(ctx, query, s.namespace, string(key)).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set creates or overwrites a value.
func (s *PostgresStore) Set(ctx context.Context, key Key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	query := `
		INSERT INTO kv_cache (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query, s.namespace, string(key), value)
	return err
}

// Delete removes a value.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if err := checkKey(key); err != nil {
		return err
	}
	query := `DELETE FROM kv_cache WHERE namespace = $1 AND key = $2`
	_, err := s.pool.Exec(ctx, query, s.namespace, string(key))
	return err
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)
