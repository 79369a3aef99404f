// Package server runs the pong process's long-lived services and shuts them
// down in reverse start order on signal, context cancellation, or failure.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultStopTimeout bounds how long a single service may take to stop.
const DefaultStopTimeout = 10 * time.Second

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start begins the service. It blocks until the service is stopped
	// or an error occurs. A clean stop returns nil.
	Start() error
	// Stop gracefully stops the service.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration
	services    []namedService
	mu          sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager using DefaultStopTimeout.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout overrides the per-service stop bound.
//
// Precondition: d > 0.
func (l *Lifecycle) SetStopTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimeout = d
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts all services and blocks until SIGINT/SIGTERM, ctx cancellation,
// or the first service failure. Services are then stopped in reverse order.
//
// Postcondition: All services have been asked to stop when this method returns.
// Returns the first service failure, or nil on a signal or cancellation.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.shutdown(services)

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService) {
	l.mu.Lock()
	timeout := l.stopTimeout
	l.mu.Unlock()

	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))

		done := make(chan struct{})
		go func() {
			ns.service.Stop()
			close(done)
		}()
		select {
		case <-done:
			l.logger.Info("service stopped",
				zap.String("service", ns.name),
				zap.Duration("elapsed", time.Since(svcStart)),
			)
		case <-time.After(timeout):
			l.logger.Warn("service stop timed out",
				zap.String("service", ns.name),
				zap.Duration("timeout", timeout),
			)
		}
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}
