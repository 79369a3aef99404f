// Package memory provides a process-local AccountStore used as the fallback
// backend and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/pong/internal/storage"
)

// Store is an in-memory storage.AccountStore. Accounts are lost on restart.
type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	cost   int
	nextID int64
	byName map[string]*storage.Account
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the CreatedAt clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBcryptCost overrides the bcrypt cost used for new passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// New creates an empty Store.
//
// Postcondition: Returns a Store with no accounts.
func New(opts ...Option) *Store {
	s := &Store{
		now:    func() time.Time { return time.Now().UTC() },
		cost:   bcrypt.DefaultCost,
		nextID: 1,
		byName: make(map[string]*storage.Account),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByUsername implements storage.AccountStore.
func (s *Store) FindByUsername(_ context.Context, username string) (storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.byName[username]
	if !ok {
		return storage.Account{}, storage.ErrAccountNotFound
	}
	return *acct, nil
}

// Create implements storage.AccountStore.
func (s *Store) Create(ctx context.Context, username, password string) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	hash, err := storage.HashPasswordCost(password, s.cost)
	if err != nil {
		return storage.Account{}, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[username]; exists {
		return storage.Account{}, storage.ErrAccountExists
	}
	acct := &storage.Account{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	s.nextID++
	s.byName[username] = acct
	return *acct, nil
}

// IncrementStats implements storage.AccountStore.
func (s *Store) IncrementStats(_ context.Context, username string, delta storage.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byName[username]
	if !ok {
		return storage.ErrAccountNotFound
	}
	acct.Stats = acct.Stats.Apply(delta)
	return nil
}

// ListAccounts implements storage.AccountStore.
func (s *Store) ListAccounts(_ context.Context) ([]storage.Account, error) {
	s.mu.RLock()
	out := make([]storage.Account, 0, len(s.byName))
	for _, acct := range s.byName {
		out = append(out, *acct)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Close is a no-op for Store.
func (s *Store) Close() error {
	return nil
}
