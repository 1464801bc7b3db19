package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS records (
		namespace  TEXT        NOT NULL,
		key        TEXT        NOT NULL,
		value      BYTEA       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (namespace, key)
	)
`

// PostgresStore keeps every namespace in one table, partitioned by the
// namespace column.
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace Namespace
}

// MigratePostgres creates the records table if it does not exist.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return pgErr("migrate", err)
	}
	return nil
}

func NewPostgresStore(pool *pgxpool.Pool, namespace Namespace) *PostgresStore {
	return &PostgresStore{pool: pool, namespace: namespace}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM records WHERE namespace = $1 AND key = $2`,
		string(s.namespace), key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgErr("get "+key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO records (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, string(s.namespace), key, value)
	if err != nil {
		return pgErr("set "+key, err)
	}
	return nil
}

func (s *PostgresStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO records (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO NOTHING
	`, string(s.namespace), key, value)
	if err != nil {
		return false, pgErr("setnx "+key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update holds a row lock between the read and the write.
func (s *PostgresStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pgErr("begin", err)
	}
	defer tx.Rollback(ctx)

	var current []byte
	err = tx.QueryRow(ctx,
		`SELECT value FROM records WHERE namespace = $1 AND key = $2 FOR UPDATE`,
		string(s.namespace), key,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return pgErr("select for update "+key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE records SET value = $3, updated_at = NOW() WHERE namespace = $1 AND key = $2`,
		string(s.namespace), key, next,
	); err != nil {
		return pgErr("update "+key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return pgErr("commit", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE namespace = $1 AND key = ANY($2)`,
		string(s.namespace), keys,
	)
	if err != nil {
		return pgErr("delete", err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM records WHERE namespace = $1 AND starts_with(key, $2)`,
		string(s.namespace), prefix,
	)
	if err != nil {
		return nil, pgErr("keys", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, pgErr("keys", err)
	}
	return keys, nil
}

// Close is a no-op; the pool is shared between namespaces and closed by its owner.
func (s *PostgresStore) Close() error {
	return nil
}

// pgErr treats anything the server did not answer itself as unavailability.
func pgErr(op string, err error) error {
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}
