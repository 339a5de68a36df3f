package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/longkey1/chatc/internal/credential"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the state database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets a second chatc process read while another writes.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	// Tokens are secrets.
	if err := os.Chmod(dbPath, 0600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadCredential returns the stored credential, or an empty one.
func (s *SQLiteStore) LoadCredential(ctx context.Context) (credential.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT access_token, refresh_token FROM credentials WHERE id = 1`)

	var c credential.Credential
	err := row.Scan(&c.AccessToken, &c.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.Credential{}, nil
	}
	if err != nil {
		return credential.Credential{}, fmt.Errorf("scan credential row: %w", err)
	}
	c.IsAuthenticated = c.AccessToken != ""
	return c, nil
}

// SaveCredential creates or replaces the stored credential.
func (s *SQLiteStore) SaveCredential(ctx context.Context, c credential.Credential) error {
	query := `
	INSERT INTO credentials (id, access_token, refresh_token, updated_at)
	VALUES (1, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, query, c.AccessToken, c.RefreshToken, time.Now().Unix()); err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		return nil
	})
}

// ClearCredential removes the stored credential.
func (s *SQLiteStore) ClearCredential(ctx context.Context) error {
	return withBusyRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
			return fmt.Errorf("clear credential: %w", err)
		}
		return nil
	})
}

// Preference returns the value stored under key.
func (s *SQLiteStore) Preference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan preference %q: %w", key, err)
	}
	return value, true, nil
}

// SetPreference creates or replaces the value stored under key.
func (s *SQLiteStore) SetPreference(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO preferences (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
			return fmt.Errorf("set preference %q: %w", key, err)
		}
		return nil
	})
}

// DeletePreference removes key.
func (s *SQLiteStore) DeletePreference(ctx context.Context, key string) error {
	return withBusyRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete preference %q: %w", key, err)
		}
		return nil
	})
}

// PreferenceID reads an integer preference such as a conversation or model
// configuration ID.
func PreferenceID(ctx context.Context, r Repository, key string) (int64, bool, error) {
	v, ok, err := r.Preference(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("preference %q is not an id: %w", key, err)
	}
	return id, true, nil
}

// SetPreferenceID stores an integer preference.
func SetPreferenceID(ctx context.Context, r Repository, key string, id int64) error {
	return r.SetPreference(ctx, key, strconv.FormatInt(id, 10))
}

// IsConflictError reports whether err is a SQLite busy or locked error,
// which warrants a retry.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func withBusyRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !IsConflictError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	return err
}
