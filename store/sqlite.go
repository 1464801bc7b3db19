package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDB is a single-file database shared by all namespaces.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

func (d *SQLiteDB) Namespace(ns Namespace) *SQLiteStore {
	return &SQLiteStore{db: d.db, namespace: ns}
}

func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

type SQLiteStore struct {
	db        *sql.DB
	namespace Namespace
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE namespace = ? AND key = ?`,
		string(s.namespace), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get "+key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, string(s.namespace), key, value)
	if err != nil {
		return unavailable("set "+key, err)
	}
	return nil
}

func (s *SQLiteStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (namespace, key, value) VALUES (?, ?, ?)`,
		string(s.namespace), key, value,
	)
	if err != nil {
		return false, unavailable("setnx "+key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("setnx "+key, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM records WHERE namespace = ? AND key = ?`,
		string(s.namespace), key,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("select "+key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE namespace = ? AND key = ?`,
		next, string(s.namespace), key,
	); err != nil {
		return unavailable("update "+key, err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	args = append(args, string(s.namespace))
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND key IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Keys matches the prefix as a byte range, which the default BINARY
// collation compares the same way Go does.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM records WHERE namespace = ? AND key >= ?`
	args := []any{string(s.namespace), prefix}
	if upper, ok := prefixUpperBound(prefix); ok {
		query += ` AND key < ?`
		args = append(args, upper)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("keys", err)
	}
	return keys, nil
}

// prefixUpperBound returns the smallest string greater than every string
// starting with prefix. It reports false when no such bound exists.
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// Close is a no-op; the SQLiteDB owns the connection.
func (s *SQLiteStore) Close() error {
	return nil
}
