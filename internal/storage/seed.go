package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedAccount is one account entry of a seed file.
type SeedAccount struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Stats    Stats  `yaml:"stats"`
}

// Seed is the YAML document applied to a store at startup or by pongstats.
type Seed struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// DemoSeed returns the built-in demo accounts loaded into the in-memory fallback store.
func DemoSeed() Seed {
	return Seed{Accounts: []SeedAccount{
		{Username: "guest1", Password: "password", Stats: Stats{Wins: 5, Losses: 3, Games: 8}},
		{Username: "guest2", Password: "password", Stats: Stats{Wins: 2, Losses: 6, Games: 8}},
		{Username: "admin", Password: "admin123", Stats: Stats{Wins: 10, Losses: 2, Games: 12}},
	}}
}

// LoadSeed reads and parses a YAML seed file.
//
// Postcondition: Returns the parsed Seed or a non-nil error. Entries with an
// empty username or password are rejected.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed parses a YAML seed document.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed: %w", err)
	}
	for i, a := range seed.Accounts {
		if a.Username == "" || a.Password == "" {
			return Seed{}, fmt.Errorf("seed account %d: username and password are required", i)
		}
	}
	return seed, nil
}

// ApplySeed creates every seed account missing from store and applies its stats.
// Accounts that already exist are left untouched.
//
// Postcondition: Returns the number of accounts created, or the first backend error.
func ApplySeed(ctx context.Context, store AccountStore, seed Seed, logger *zap.Logger) (int, error) {
	created := 0
	for _, a := range seed.Accounts {
		if _, err := store.Create(ctx, a.Username, a.Password); err != nil {
			if errors.Is(err, ErrAccountExists) {
				logger.Debug("seed account exists, skipping", zap.String("username", a.Username))
				continue
			}
			return created, fmt.Errorf("creating seed account %s: %w", a.Username, err)
		}
		created++
		if a.Stats == (Stats{}) {
			continue
		}
		delta := StatsDelta{Games: a.Stats.Games, Wins: a.Stats.Wins, Losses: a.Stats.Losses}
		if err := store.IncrementStats(ctx, a.Username, delta); err != nil {
			return created, fmt.Errorf("applying seed stats for %s: %w", a.Username, err)
		}
	}
	logger.Info("seed applied", zap.Int("created", created), zap.Int("total", len(seed.Accounts)))
	return created, nil
}

type exportEntry struct {
	Username string `yaml:"username"`
	Stats    Stats  `yaml:"stats"`
}

type exportDoc struct {
	Accounts []exportEntry `yaml:"accounts"`
}

// ExportAccounts renders usernames and stats as YAML. Password hashes are never included.
func ExportAccounts(accounts []Account) ([]byte, error) {
	doc := exportDoc{Accounts: make([]exportEntry, 0, len(accounts))}
	for _, a := range accounts {
		doc.Accounts = append(doc.Accounts, exportEntry{Username: a.Username, Stats: a.Stats})
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshalling accounts: %w", err)
	}
	return out, nil
}
