package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/lib/pq"
)

// serializationFailure is the SQLSTATE returned when a serializable transaction must be retried.
const serializationFailure = "40001"

const maxTxAttempts = 5

// PostgresStore keeps every key as a JSONB row of the kv_store table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool. EnsureSchema must have created kv_store.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &PostgresStore{db: db}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func get(ctx context.Context, q queryer, key string) ([]byte, bool, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func scanRange(ctx context.Context, q queryer, prefix string) ([]KV, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM kv_store WHERE starts_with(key, $1) ORDER BY key COLLATE "C"`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to range %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", prefix, err)
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return get(ctx, s.db, key)
}

func (s *PostgresStore) Range(ctx context.Context, prefix string) ([]KV, error) {
	return scanRange(ctx, s.db, prefix)
}

// Atomic runs fn in a SERIALIZABLE transaction, retrying on serialization failures.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	log := logger.GetForComponent("postgres_store")

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.atomicOnce(ctx, fn)
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) || pqErr.Code != serializationFailure {
			return err
		}
		log.Warn().Int("attempt", attempt).Err(err).Msg("Serialization failure, retrying transaction")
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, err)
}

func (s *PostgresStore) atomicOnce(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller (see CloseDB).
func (s *PostgresStore) Close() error {
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return get(ctx, t.tx, key)
}

func (t *postgresTx) Range(ctx context.Context, prefix string) ([]KV, error) {
	return scanRange(ctx, t.tx, prefix)
}

func (t *postgresTx) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (t *postgresTx) Delete(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
