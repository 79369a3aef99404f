// Package main provides a CLI tool for inspecting and seeding player accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/config"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/storage"
	"github.com/cory-johannsen/pong/internal/storage/backend"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	username := flag.String("username", "", "print the stats of this account")
	export := flag.String("export", "", "write every account's stats as YAML to this path (- for stdout)")
	seedPath := flag.String("seed", "", "apply this seed file before anything else")
	flag.Parse()

	if *username == "" && *export == "" && *seedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	// a silent memory store would hide a misconfigured database
	cfg.Store.FallbackToMemory = false
	cfg.Logging.Format = "console"

	logger, err := observability.NewLogger(cfg.Logging, "pongstats")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("opening account store: %v", err)
	}
	defer store.Close()

	if *seedPath != "" {
		seed, err := storage.LoadSeed(*seedPath)
		if err != nil {
			log.Fatalf("loading seed: %v", err)
		}
		n, err := storage.ApplySeed(ctx, store, seed, logger)
		if err != nil {
			log.Fatalf("applying seed: %v", err)
		}
		logger.Info("seed applied", zap.String("path", *seedPath), zap.Int("created", n))
	}

	if *username != "" {
		acct, err := store.FindByUsername(ctx, *username)
		if err != nil {
			log.Fatalf("looking up account %q: %v", *username, err)
		}
		fmt.Fprintf(os.Stdout, "%s (#%d): wins=%d losses=%d games=%d\n",
			acct.Username, acct.ID, acct.Stats.Wins, acct.Stats.Losses, acct.Stats.Games)
	}

	if *export != "" {
		accounts, err := store.ListAccounts(ctx)
		if err != nil {
			log.Fatalf("listing accounts: %v", err)
		}
		data, err := storage.ExportAccounts(accounts)
		if err != nil {
			log.Fatalf("exporting accounts: %v", err)
		}
		if *export == "-" {
			_, err = os.Stdout.Write(data)
		} else {
			err = os.WriteFile(*export, data, 0o644)
		}
		if err != nil {
			log.Fatalf("writing export: %v", err)
		}
		logger.Info("accounts exported", zap.Int("count", len(accounts)), zap.String("path", *export))
	}

	logger.Debug("done", zap.Duration("elapsed", time.Since(start)))
}
