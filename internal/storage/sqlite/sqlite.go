// Package sqlite provides a single-file Account Store on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/pong/internal/storage"
)

const dbTimeLayout = "2006-01-02 15:04:05"

const accountColumns = `id, username, password_hash, wins, losses, games, created_at`

// Store is the SQLite storage.AccountStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path, applies pragmas, and runs
// schema migrations.
//
// Precondition: path must be a writable file path or ":memory:".
// Postcondition: Returns a ready Store or a non-nil error; on error no handle is leaked.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

var migrations = []struct {
	version    int
	statements []string
}{
	{
		version: 1,
		statements: []string{`
		CREATE TABLE IF NOT EXISTS accounts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 64),
			password_hash TEXT    NOT NULL,
			wins          INTEGER NOT NULL DEFAULT 0 CHECK(wins >= 0),
			losses        INTEGER NOT NULL DEFAULT 0 CHECK(losses >= 0),
			games         INTEGER NOT NULL DEFAULT 0 CHECK(games >= 0),
			created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		)`},
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("init schema_migrations: %w", err)
		}
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("version %d: %w", m.version, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (storage.Account, error) {
	var (
		acct    storage.Account
		created string
	)
	if err := row.Scan(
		&acct.ID, &acct.Username, &acct.PasswordHash,
		&acct.Stats.Wins, &acct.Stats.Losses, &acct.Stats.Games,
		&created,
	); err != nil {
		return storage.Account{}, err
	}
	t, err := time.ParseInLocation(dbTimeLayout, created, time.UTC)
	if err != nil {
		return storage.Account{}, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	acct.CreatedAt = t
	return acct, nil
}

// Create implements storage.AccountStore.
func (s *Store) Create(ctx context.Context, username, password string) (storage.Account, error) {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return storage.Account{}, fmt.Errorf("hashing password: %w", err)
	}
	acct, err := scanAccount(s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (username, password_hash, created_at)
		 VALUES (?, ?, ?)
		 RETURNING `+accountColumns,
		username, hash, s.now().Format(dbTimeLayout),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Account{}, storage.ErrAccountExists
		}
		return storage.Account{}, fmt.Errorf("sqlite: insert account: %w", err)
	}
	return acct, nil
}

// FindByUsername implements storage.AccountStore.
func (s *Store) FindByUsername(ctx context.Context, username string) (storage.Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrAccountNotFound
		}
		return storage.Account{}, fmt.Errorf("sqlite: query account: %w", err)
	}
	return acct, nil
}

// IncrementStats implements storage.AccountStore.
func (s *Store) IncrementStats(ctx context.Context, username string, delta storage.StatsDelta) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET games = games + ?, wins = wins + ?, losses = losses + ? WHERE username = ?`,
		delta.Games, delta.Wins, delta.Losses, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// ListAccounts implements storage.AccountStore.
func (s *Store) ListAccounts(ctx context.Context) ([]storage.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts: %w", err)
	}
	defer rows.Close()

	var out []storage.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan account: %w", err)
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	code := sqlErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqlErr.Error(), "UNIQUE")
}
