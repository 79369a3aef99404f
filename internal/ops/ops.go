// Package ops serves the gRPC health and reflection endpoint used by
// orchestrators to probe the game server.
package ops

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reporting the game loop.
const ServiceName = "pong.Game"

// DefaultPollInterval is how often the probe is sampled.
const DefaultPollInterval = 500 * time.Millisecond

// Probe reports whether the game loop is serving.
type Probe interface {
	Serving() bool
}

// Option configures a Server.
type Option func(*Server)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.poll = d }
}

// Server is the ops gRPC server.
type Server struct {
	logger *zap.Logger
	probe  Probe
	poll   time.Duration

	grpc   *grpc.Server
	health *health.Server

	mu       sync.Mutex
	stopped  bool
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server with the health and reflection services registered.
//
// Precondition: probe and logger must be non-nil.
func New(probe Probe, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		logger: logger.Named("ops"),
		probe:  probe,
		poll:   DefaultPollInterval,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// ListenAndServe listens on addr and serves until Stop is called.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop is called.
//
// Postcondition: The listener is closed when this method returns.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("ops endpoint listening", zap.String("addr", lis.Addr().String()))
	s.update()
	go s.watch()
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serving ops: %w", err)
	}
	return nil
}

func (s *Server) watch() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.update()
		case <-s.quit:
			return
		}
	}
}

func (s *Server) update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.probe.Serving() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Stop reports NOT_SERVING for every service and stops the gRPC server gracefully.
// Stop is idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.quit)
		s.wg.Wait()
		s.health.Shutdown()
		s.grpc.GracefulStop()
		s.logger.Info("ops endpoint stopped")
	})
}
