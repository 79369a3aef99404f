package gameserver

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/game/session"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/protocol"
	"github.com/cory-johannsen/pong/internal/storage"
)

// MinCredentialLength is the minimum username and password length, in characters.
const MinCredentialLength = 3

// ErrInvalidInput is returned when a username or password is too short.
var ErrInvalidInput = errors.New("username and password must be at least 3 characters")

// HandlerFunc handles one inbound message on the loop goroutine.
type HandlerFunc func(c session.Conn, msg protocol.Inbound)

func (r *Router) dispatchTable() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		protocol.TypeLogin:       r.handleLogin,
		protocol.TypeRegister:    r.handleRegister,
		protocol.TypeGetStats:    r.handleGetStats,
		protocol.TypeJoinLobby:   r.handleJoinLobby,
		protocol.TypePlayerReady: r.handlePlayerReady,
		protocol.TypeInput:       r.handleInput,
		protocol.TypeInputStop:   r.handleInputStop,
		protocol.TypeMouseInput:  r.handleMouseInput,
	}
}

func (r *Router) dispatch(c session.Conn, msg protocol.Inbound) {
	if !r.connected(c) {
		return
	}
	h, ok := r.handlers[msg.Type()]
	if !ok {
		r.logger.Debug("no handler for message", zap.String(observability.FieldConn, c.ID()), zap.String("type", msg.Type()))
		return
	}
	h(c, msg)
}

// ValidateCredentials checks the register input rules. Lengths are counted in
// characters; the password is also bounded in bytes by bcrypt.
func ValidateCredentials(username, password string) error {
	if utf8.RuneCountInString(username) < MinCredentialLength || utf8.RuneCountInString(password) < MinCredentialLength {
		return ErrInvalidInput
	}
	if len(password) > storage.MaxPasswordBytes {
		return storage.ErrPasswordTooLong
	}
	return nil
}

func (r *Router) handleLogin(c session.Conn, msg protocol.Inbound) {
	m := msg.(protocol.Login)
	if _, ok := r.registry.Get(c); ok {
		r.reply(c, protocol.LoginFailed(protocol.MsgAlreadyLoggedIn))
		return
	}
	r.async(func(ctx context.Context) event {
		acct, err := storage.Authenticate(ctx, r.store, m.Username, m.Password)
		return func() { r.finishLogin(c, m.Username, acct, err) }
	})
}

func (r *Router) finishLogin(c session.Conn, username string, acct storage.Account, err error) {
	if !r.connected(c) {
		r.logger.Debug("dropping login result for closed connection", zap.String(observability.FieldConn, c.ID()))
		return
	}
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		r.reply(c, protocol.LoginFailed(protocol.MsgUserNotFound))
		return
	case errors.Is(err, storage.ErrInvalidCredentials):
		r.reply(c, protocol.LoginFailed(protocol.MsgWrongPassword))
		return
	case err != nil:
		r.logger.Error("login lookup failed", zap.String(observability.FieldUsername, username), zap.Error(err))
		r.reply(c, protocol.LoginFailed(protocol.MsgServerError))
		return
	}

	// a holder whose connection is no longer alive is evicted
	if holder, ok := r.registry.ByUsername(username); ok && !holder.Conn.Alive() {
		r.logger.Info("evicting stale session", zap.String(observability.FieldUsername, username), zap.String(observability.FieldConn, holder.Conn.ID()))
		r.dropSession(holder.Conn)
	}

	sess, err := r.registry.Login(c, username)
	switch {
	case errors.Is(err, session.ErrAlreadyConnected):
		r.reply(c, protocol.LoginFailed(protocol.MsgAlreadyConnected))
		return
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		r.reply(c, protocol.LoginFailed(protocol.MsgAlreadyLoggedIn))
		return
	case err != nil:
		r.logger.Error("creating session", zap.String(observability.FieldUsername, username), zap.Error(err))
		r.reply(c, protocol.LoginFailed(protocol.MsgServerError))
		return
	}
	r.logger.Info("player logged in",
		append(observability.ConnFields(c.ID(), username), zap.String(observability.FieldSession, sess.ID))...,
	)
	r.reply(c, protocol.LoginSucceeded(username, acct.Stats))
}

func (r *Router) handleRegister(c session.Conn, msg protocol.Inbound) {
	m := msg.(protocol.Register)
	if err := ValidateCredentials(m.Username, m.Password); err != nil {
		r.reply(c, protocol.NewRegisterResult(false, registerFailure(err)))
		return
	}
	r.async(func(ctx context.Context) event {
		_, err := r.store.Create(ctx, m.Username, m.Password)
		return func() { r.finishRegister(c, m.Username, err) }
	})
}

func (r *Router) finishRegister(c session.Conn, username string, err error) {
	if !r.connected(c) {
		return
	}
	switch {
	case errors.Is(err, storage.ErrAccountExists), errors.Is(err, storage.ErrPasswordTooLong):
		r.reply(c, protocol.NewRegisterResult(false, registerFailure(err)))
	case err != nil:
		r.logger.Error("creating account", zap.String(observability.FieldUsername, username), zap.Error(err))
		r.reply(c, protocol.NewRegisterResult(false, protocol.MsgServerError))
	default:
		r.logger.Info("account registered", zap.String(observability.FieldUsername, username))
		r.reply(c, protocol.NewRegisterResult(true, protocol.MsgRegistered))
	}
}

func registerFailure(err error) string {
	switch {
	case errors.Is(err, storage.ErrPasswordTooLong):
		return protocol.MsgPasswordTooLong
	case errors.Is(err, storage.ErrAccountExists):
		return protocol.MsgUsernameTaken
	}
	return protocol.MsgInvalidInput
}

func (r *Router) handleGetStats(c session.Conn, _ protocol.Inbound) {
	sess, ok := r.registry.Get(c)
	if !ok {
		return
	}
	username := sess.Username
	r.async(func(ctx context.Context) event {
		acct, err := r.store.FindByUsername(ctx, username)
		if err != nil {
			if !errors.Is(err, storage.ErrAccountNotFound) {
				r.logger.Warn("stats lookup failed", zap.String(observability.FieldUsername, username), zap.Error(err))
			}
			return nil
		}
		return func() {
			if r.connected(c) {
				r.reply(c, protocol.NewUserStats(username, acct.Stats))
			}
		}
	})
}

// reply sends msg to a single connection.
func (r *Router) reply(c session.Conn, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("encoding reply", zap.Error(err))
		return
	}
	r.send(c, data)
}

// broadcast sends msg to every seated, live connection.
func (r *Router) broadcast(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("encoding broadcast", zap.Error(err))
		return
	}
	for _, s := range r.registry.All() {
		if s.Seat == 0 {
			continue
		}
		r.send(s.Conn, data)
	}
}

func (r *Router) send(c session.Conn, data []byte) {
	if !c.Alive() {
		return
	}
	if err := c.Send(data); err != nil {
		r.logger.Warn("send failed", zap.String(observability.FieldConn, c.ID()), zap.Error(err))
	}
}
