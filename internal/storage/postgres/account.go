package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/pong/internal/storage"
)

const accountColumns = `id, username, password_hash, wins, losses, games, created_at`

// AccountRepository is the PostgreSQL storage.AccountStore.
type AccountRepository struct {
	pool *Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
// Close on the repository closes the pool.
//
// Precondition: pool must be a valid, open connection pool.
func NewAccountRepository(pool *Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (storage.Account, error) {
	var acct storage.Account
	err := row.Scan(
		&acct.ID, &acct.Username, &acct.PasswordHash,
		&acct.Stats.Wins, &acct.Stats.Losses, &acct.Stats.Games,
		&acct.CreatedAt,
	)
	return acct, err
}

// Create inserts a new account with a bcrypt-hashed password and zeroed stats.
//
// Precondition: username and password must be non-empty.
// Postcondition: Returns the created Account with ID and CreatedAt set,
// or storage.ErrAccountExists if the username is taken.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (storage.Account, error) {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return storage.Account{}, fmt.Errorf("hashing password: %w", err)
	}

	acct, err := scanAccount(r.pool.DB().QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING `+accountColumns,
		username, hash,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.Account{}, storage.ErrAccountExists
		}
		return storage.Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return acct, nil
}

// FindByUsername retrieves an account by username.
//
// Postcondition: Returns the Account or storage.ErrAccountNotFound.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (storage.Account, error) {
	acct, err := scanAccount(r.pool.DB().QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`,
		username,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Account{}, storage.ErrAccountNotFound
		}
		return storage.Account{}, fmt.Errorf("querying account: %w", err)
	}
	return acct, nil
}

// IncrementStats adds delta to the account's counters in a single UPDATE.
//
// Postcondition: The stats are incremented, or storage.ErrAccountNotFound is returned.
func (r *AccountRepository) IncrementStats(ctx context.Context, username string, delta storage.StatsDelta) error {
	tag, err := r.pool.DB().Exec(ctx,
		`UPDATE accounts
		 SET games = games + $1, wins = wins + $2, losses = losses + $3
		 WHERE username = $4`,
		delta.Games, delta.Wins, delta.Losses, username,
	)
	if err != nil {
		return fmt.Errorf("updating stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// ListAccounts returns every account ordered by username.
func (r *AccountRepository) ListAccounts(ctx context.Context) ([]storage.Account, error) {
	rows, err := r.pool.DB().Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []storage.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return out, nil
}

// Close closes the underlying pool.
func (r *AccountRepository) Close() error {
	r.pool.Close()
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// SQLSTATE 23505 is unique_violation
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
