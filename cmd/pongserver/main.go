// Package main provides the pong server binary: the WebSocket game endpoint,
// the session router, and the ops health endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/config"
	"github.com/cory-johannsen/pong/internal/events"
	"github.com/cory-johannsen/pong/internal/frontend/ws"
	"github.com/cory-johannsen/pong/internal/gameserver"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/ops"
	"github.com/cory-johannsen/pong/internal/server"
	"github.com/cory-johannsen/pong/internal/storage/backend"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting pong server",
		zap.String("server", cfg.Server.Name),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.String("store_backend", cfg.Store.Backend),
	)

	storeStart := time.Now()
	openCtx, cancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
	store, err := backend.Open(openCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("opening account store", zap.Error(err))
	}
	defer store.Close()
	logger.Info("account store ready", zap.Duration("elapsed", time.Since(storeStart)))

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled() {
		p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject, cfg.Server.Name, logger)
		if err != nil {
			logger.Warn("match results will not be published", zap.Error(err))
		} else {
			publisher = p
			logger.Info("publishing match results",
				zap.String("url", cfg.Events.NATSURL),
				zap.String("subject", cfg.Events.Subject),
			)
		}
	}
	defer publisher.Close()

	router := gameserver.New(gameserver.SettingsFromConfig(cfg), store, logger,
		gameserver.WithPublisher(publisher),
	)
	acceptor := ws.NewAcceptor(cfg.WebSocket, router, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("router", &server.FuncService{
		StartFn: func() error { return router.Run(context.Background()) },
		StopFn:  router.Stop,
	})
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn: func() {
			logger.Info("closing websocket connections", zap.Int("connections", acceptor.Connections()))
			acceptor.Stop()
		},
	})
	if cfg.Ops.Enabled() {
		opsServer := ops.New(readiness{router: router, acceptor: acceptor}, logger)
		lifecycle.Add("ops", &server.FuncService{
			StartFn: func() error { return opsServer.ListenAndServe(cfg.Ops.Addr()) },
			StopFn:  opsServer.Stop,
		})
	}

	logger.Info("pong server ready", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// readiness reports serving once the router loop runs and the WebSocket
// listener accepts connections.
type readiness struct {
	router   *gameserver.Router
	acceptor *ws.Acceptor
}

func (r readiness) Serving() bool {
	return r.router.Serving() && r.acceptor.IsRunning()
}
