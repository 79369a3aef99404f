// Package main applies the PostgreSQL account schema migrations.
//
// Usage:
//
//	migrate -config configs/dev.yaml [-command up|down|version|force] [-steps N] [-version V]
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/cory-johannsen/pong/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	source := flag.String("source", "file://migrations", "migration source URL")
	command := flag.String("command", "up", "one of: up, down, version, force")
	steps := flag.Int("steps", 0, "number of steps for up/down (0 = all)")
	forceVersion := flag.Int("version", -1, "schema version recorded by force")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		log.Fatalf("database config: %v", err)
	}

	m, err := migrate.New(*source, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	if err := run(m, *command, *steps, *forceVersion); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			report("no changes", m, start)
			return
		}
		log.Fatalf("%s failed: %v", *command, err)
	}
	report(*command, m, start)
}

func run(m *migrate.Migrate, command string, steps, forceVersion int) error {
	switch command {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	case "version":
		return nil
	case "force":
		if forceVersion < 0 {
			return errors.New("force requires -version")
		}
		return m.Force(forceVersion)
	}
	return fmt.Errorf("unknown command %q", command)
}

func report(what string, m *migrate.Migrate, start time.Time) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintf(os.Stdout, "%s: no migrations applied [%s]\n", what, time.Since(start))
		return
	}
	fmt.Fprintf(os.Stdout, "%s: version=%d dirty=%v [%s]\n", what, version, dirty, time.Since(start))
}
