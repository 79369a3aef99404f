// Package storage defines the Account Store contract shared by every backend:
// account lookup, creation with a bcrypt-hashed password, and stats increments.
package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate username.
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when a password does not match the stored hash.
var ErrInvalidCredentials = errors.New("invalid credentials")

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned when a password exceeds MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Stats is an account's lifetime match record.
type Stats struct {
	Wins   int `json:"wins" yaml:"wins"`
	Losses int `json:"losses" yaml:"losses"`
	Games  int `json:"games" yaml:"games"`
}

// StatsDelta is an increment applied atomically to an account's Stats.
type StatsDelta struct {
	Games  int
	Wins   int
	Losses int
}

// Apply returns s with d added.
func (s Stats) Apply(d StatsDelta) Stats {
	return Stats{
		Wins:   s.Wins + d.Wins,
		Losses: s.Losses + d.Losses,
		Games:  s.Games + d.Games,
	}
}

// Account is a persisted player account.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Stats        Stats
	CreatedAt    time.Time
}

// AccountStore persists accounts and their stats.
//
// Implementations must be safe for concurrent use.
type AccountStore interface {
	// FindByUsername returns the account or ErrAccountNotFound.
	FindByUsername(ctx context.Context, username string) (Account, error)
	// Create stores a new account with zeroed stats, hashing password with bcrypt.
	// Returns ErrAccountExists when the username is taken.
	Create(ctx context.Context, username, password string) (Account, error)
	// IncrementStats adds delta to the account's stats in one atomic update.
	// Returns ErrAccountNotFound when the username does not exist.
	IncrementStats(ctx context.Context, username string, delta StatsDelta) error
	// ListAccounts returns all accounts ordered by username.
	ListAccounts(ctx context.Context) ([]Account, error)
	// Close releases backend resources.
	Close() error
}

// Authenticate looks up username and verifies password against its hash.
//
// Postcondition: Returns the Account, ErrAccountNotFound, ErrInvalidCredentials,
// or a wrapped backend error.
func Authenticate(ctx context.Context, store AccountStore, username, password string) (Account, error) {
	acct, err := store.FindByUsername(ctx, username)
	if err != nil {
		return Account{}, err
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, bcrypt.DefaultCost)
}

// HashPasswordCost is HashPassword with an explicit bcrypt cost.
// Costs outside [bcrypt.MinCost, bcrypt.MaxCost] are rejected by bcrypt.
func HashPasswordCost(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
