// Package gameserver hosts the Session Router: a single event loop that owns
// the session registry, the lobby, and the match engine, and serialises every
// connection event, store result, timer, and simulation tick through one
// goroutine.
package gameserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/config"
	"github.com/cory-johannsen/pong/internal/events"
	"github.com/cory-johannsen/pong/internal/game/lobby"
	"github.com/cory-johannsen/pong/internal/game/match"
	"github.com/cory-johannsen/pong/internal/game/session"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/protocol"
	"github.com/cory-johannsen/pong/internal/storage"
)

// ErrStopped is returned by Run when called on a stopped Router.
var ErrStopped = errors.New("router stopped")

// Settings holds the Router's timing and scoring parameters.
type Settings struct {
	ServerName   string
	TickInterval time.Duration
	StartDelay   time.Duration
	EndDelay     time.Duration
	StoreTimeout time.Duration
	WinningScore int
	// EventBuffer is the capacity of the loop's inbound event queue.
	EventBuffer int
}

// SettingsFromConfig derives Settings from the application configuration.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		ServerName:   cfg.Server.Name,
		TickInterval: cfg.Game.TickInterval(),
		StartDelay:   cfg.Game.StartDelay,
		EndDelay:     cfg.Game.EndDelay,
		StoreTimeout: cfg.Store.Timeout,
		WinningScore: cfg.Game.WinningScore,
		EventBuffer:  1024,
	}
}

// RouterStats is a point-in-time view of the Router, safe to read from any goroutine.
type RouterStats struct {
	Connections  int
	Sessions     int
	Seated       int
	MatchRunning bool
}

// Option configures a Router.
type Option func(*Router)

// WithSource overrides the serve randomness of the match engine.
func WithSource(src match.Source) Option {
	return func(r *Router) { r.src = src }
}

// WithPublisher sets the match result publisher. The default discards results.
func WithPublisher(p events.Publisher) Option {
	return func(r *Router) { r.publisher = p }
}

// event runs on the loop goroutine.
type event func()

// Router dispatches client messages and owns all game state.
//
// Invariant: registry, lobby, engine, and conns are mutated only on the loop goroutine.
type Router struct {
	logger    *zap.Logger
	settings  Settings
	store     storage.AccountStore
	publisher events.Publisher
	src       match.Source

	registry *session.Registry
	lobby    *lobby.Lobby
	engine   *match.Engine
	conns    map[string]session.Conn
	handlers map[string]HandlerFunc

	clock      *MatchClock
	stopTicker func()
	// startSeq identifies the most recently scheduled start
	startSeq uint64

	events   chan event
	quit     chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	bg       sync.WaitGroup

	statConns   atomic.Int64
	statSession atomic.Int64
	statSeated  atomic.Int64
	statRunning atomic.Bool
}

// New creates a Router. Run must be called to start processing.
//
// Precondition: logger and store must be non-nil; settings must hold positive
// TickInterval, StoreTimeout, and WinningScore.
func New(settings Settings, store storage.AccountStore, logger *zap.Logger, opts ...Option) *Router {
	if settings.EventBuffer <= 0 {
		settings.EventBuffer = 1024
	}
	r := &Router{
		logger:    logger.Named("router"),
		settings:  settings,
		store:     store,
		publisher: events.Nop{},
		src:       match.NewSource(),
		registry:  session.NewRegistry(),
		lobby:     lobby.New(),
		conns:     make(map[string]session.Conn),
		events:    make(chan event, settings.EventBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = match.NewEngine(settings.WinningScore, r.src)
	r.handlers = r.dispatchTable()
	return r
}

// Run processes events until ctx is cancelled or Stop is called.
//
// Postcondition: The simulation ticker is stopped and background store calls
// have finished when Run returns.
func (r *Router) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrStopped
	}
	r.logger.Info("router started",
		zap.Duration("tick_interval", r.settings.TickInterval),
		zap.Int("winning_score", r.settings.WinningScore),
	)
	defer func() {
		r.shutdown()
		close(r.done)
		r.bg.Wait()
		close(r.exited)
		r.logger.Info("router stopped")
	}()

	for {
		select {
		case ev := <-r.events:
			ev()
			r.refreshStats()
		case <-r.quit:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends Run and waits for it to return. Stop is idempotent and safe to
// call when Run was never started.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	if r.started.Load() {
		<-r.exited
	}
}

// Done is closed once the loop and its background store calls have finished.
func (r *Router) Done() <-chan struct{} {
	return r.exited
}

// Serving reports whether the loop is running.
func (r *Router) Serving() bool {
	if !r.started.Load() {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Stats returns the current counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Connections:  int(r.statConns.Load()),
		Sessions:     int(r.statSession.Load()),
		Seated:       int(r.statSeated.Load()),
		MatchRunning: r.statRunning.Load(),
	}
}

// Connect registers a new transport connection.
func (r *Router) Connect(c session.Conn) {
	r.post(func() { r.onConnect(c) })
}

// Disconnect reports that a connection closed. It must be called exactly once per connection.
func (r *Router) Disconnect(c session.Conn) {
	r.post(func() { r.onDisconnect(c) })
}

// Deliver hands a decoded client message to the loop.
func (r *Router) Deliver(c session.Conn, msg protocol.Inbound) {
	r.post(func() { r.dispatch(c, msg) })
}

// post enqueues ev, blocking while the queue is full. It reports false once the loop has exited.
func (r *Router) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	case <-r.quit:
		return false
	}
}

// tryPost enqueues ev only if there is room.
func (r *Router) tryPost(ev event) bool {
	select {
	case r.events <- ev:
		return true
	default:
		return false
	}
}

// after posts ev to the loop once d has elapsed.
func (r *Router) after(d time.Duration, ev event) {
	time.AfterFunc(d, func() { r.post(ev) })
}

// async runs fn off the loop with a store deadline and posts its follow-up back.
func (r *Router) async(fn func(ctx context.Context) event) {
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.settings.StoreTimeout)
		defer cancel()
		if next := fn(ctx); next != nil {
			r.post(next)
		}
	}()
}

func (r *Router) onConnect(c session.Conn) {
	r.conns[c.ID()] = c
	r.logger.Debug("connection opened", zap.String(observability.FieldConn, c.ID()))
}

func (r *Router) onDisconnect(c session.Conn) {
	if _, ok := r.conns[c.ID()]; !ok {
		return
	}
	delete(r.conns, c.ID())
	r.dropSession(c)
	r.logger.Debug("connection closed", zap.String(observability.FieldConn, c.ID()))
}

// connected reports whether c is still open from the loop's point of view.
func (r *Router) connected(c session.Conn) bool {
	_, ok := r.conns[c.ID()]
	return ok
}

func (r *Router) refreshStats() {
	r.statConns.Store(int64(len(r.conns)))
	r.statSession.Store(int64(r.registry.Count()))
	r.statSeated.Store(int64(r.lobby.Count()))
	r.statRunning.Store(r.engine.Running())
}

func (r *Router) shutdown() {
	r.stopMatchTicker()
	r.engine.Stop()
	r.refreshStats()
}
