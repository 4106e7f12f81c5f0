package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgellow/authgate/internal/log"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists entries in a single SQLite table. It suits
// single-instance deployments that need sessions to survive a restart.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies the embedded migrations.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.LogInfoWithFields("sqlite", "Opened SQLite store", map[string]any{
		"path": path,
	})
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	var exp int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`,
		key.Encode(),
	).Scan(&value, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if expired(s.now(), fromMillis(exp)) {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set implements Store
func (s *SQLiteStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, namespace, value, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		key.Encode(),
		key.Namespace(),
		value,
		toMillis(expiresAt(now, ttl)),
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Take implements Store. DELETE ... RETURNING makes the read and the delete
// a single statement.
func (s *SQLiteStore) Take(ctx context.Context, key Key) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	var exp int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM kv_entries WHERE key = ? RETURNING value, expires_at`,
		key.Encode(),
	).Scan(&value, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take %s: %w", key, err)
	}
	if expired(s.now(), fromMillis(exp)) {
		return nil, ErrNotFound
	}
	return value, nil
}

// Delete implements Store
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key.Encode()); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List implements Store
func (s *SQLiteStore) List(ctx context.Context, prefix Key) ([]Entry, error) {
	query := `SELECT key, value, expires_at FROM kv_entries`
	var args []any
	if len(prefix) > 0 {
		query += ` WHERE namespace = ?`
		args = append(args, prefix.Namespace())
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	now := s.now()
	var entries []Entry
	for rows.Next() {
		var encoded string
		var value []byte
		var exp int64
		if err := rows.Scan(&encoded, &value, &exp); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		key, err := DecodeKey(encoded)
		if err != nil {
			log.LogError("Skipping undecodable key %q: %v", encoded, err)
			continue
		}
		if !key.HasPrefix(prefix) || expired(now, fromMillis(exp)) {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: value, ExpiresAt: fromMillis(exp)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// CleanupExpired implements Store
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE expires_at > 0 AND expires_at <= ?`,
		toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup expired entries: %w", err)
	}
	return int(n), nil
}

// Close closes the SQLite handle
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
