// Package ws is the WebSocket transport: it upgrades HTTP requests, decodes
// inbound JSON frames, and hands them to the session router.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/config"
	"github.com/cory-johannsen/pong/internal/game/session"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/protocol"
)

// Hub receives connection lifecycle events and decoded messages.
type Hub interface {
	Connect(c session.Conn)
	Disconnect(c session.Conn)
	Deliver(c session.Conn, msg protocol.Inbound)
}

// Acceptor serves the WebSocket endpoint and owns every live Conn.
type Acceptor struct {
	cfg      config.WebSocketConfig
	hub      Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
	conns    map[string]*Conn
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	stopped  bool
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: cfg must be valid; hub and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, hub Hub, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:    cfg,
		hub:    hub,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browser clients are served from any origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
		quit:  make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving the WebSocket path and a health check.
func (a *Acceptor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe listens on the configured address and blocks until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		listener.Close()
		return nil
	}
	a.listener = listener
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.ReadTimeout,
	}
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.quit:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	conn := newConn(raw, a.cfg.SendBuffer, a.cfg.WriteTimeout, a.cfg.PingInterval)

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conns[conn.ID()] = conn
	a.wg.Add(1)
	a.mu.Unlock()

	a.handleConn(conn, r.RemoteAddr)
}

// handleConn runs one connection until the client leaves or the acceptor stops.
func (a *Acceptor) handleConn(conn *Conn, addr string) {
	defer a.wg.Done()
	start := time.Now()
	logger := a.logger.With(append(observability.ConnFields(conn.ID(), ""), zap.String("remote_addr", addr))...)
	logger.Info("client connected")

	a.hub.Connect(conn)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.writeLoop()
	}()

	err := a.readLoop(conn, logger)
	conn.Close()
	<-writerDone

	a.mu.Lock()
	delete(a.conns, conn.ID())
	a.mu.Unlock()

	a.hub.Disconnect(conn)

	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		logger.Debug("client disconnected", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Info("client disconnected", zap.Duration("duration", time.Since(start)))
}

// readLoop decodes frames until the socket fails. Malformed frames are dropped.
func (a *Acceptor) readLoop(conn *Conn, logger *zap.Logger) error {
	raw := conn.ws
	raw.SetReadLimit(a.cfg.MaxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	})

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return err
		}
		_ = raw.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			logger.Debug("dropping frame", zap.Error(err))
			continue
		}
		a.hub.Deliver(conn, msg)
	}
}

// Stop closes the listener and every live connection, then waits for all
// connection goroutines to exit.
//
// Postcondition: Every Conn was disconnected from the hub.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.running = false
	close(a.quit)
	server := a.server
	conns := make([]*Conn, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
	}
	// hijacked connections are not tracked by the http server
	for _, c := range conns {
		c.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Connections returns the number of live connections.
func (a *Acceptor) Connections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}
