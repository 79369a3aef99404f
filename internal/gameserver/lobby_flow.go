package gameserver

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/game/lobby"
	"github.com/cory-johannsen/pong/internal/game/session"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/protocol"
)

func (r *Router) handleJoinLobby(c session.Conn, _ protocol.Inbound) {
	sess, ok := r.registry.Get(c)
	if !ok {
		r.reply(c, protocol.NewError(protocol.MsgLoginRequired))
		return
	}
	seat, err := r.lobby.Join(sess.ID, sess.Username)
	switch {
	case errors.Is(err, lobby.ErrAlreadySeated):
		r.reply(c, protocol.NewError(protocol.MsgAlreadyInLobby))
		return
	case errors.Is(err, lobby.ErrLobbyFull):
		r.reply(c, protocol.NewError(protocol.MsgLobbyFull))
		return
	case err != nil:
		r.logger.Error("joining lobby", zap.String(observability.FieldUsername, sess.Username), zap.Error(err))
		r.reply(c, protocol.NewError(protocol.MsgServerError))
		return
	}
	sess.Seat = seat
	sess.Ready = false
	r.logger.Info("player seated", zap.String(observability.FieldUsername, sess.Username), zap.Int(observability.FieldSeat, seat))
	r.reply(c, protocol.NewPlayerID(seat))
	r.broadcastLobby()
}

func (r *Router) handlePlayerReady(c session.Conn, msg protocol.Inbound) {
	m := msg.(protocol.PlayerReady)
	sess, ok := r.registry.Get(c)
	if !ok || sess.Seat == 0 {
		return
	}
	// readiness is frozen while a match state exists
	if r.engine.Active() {
		return
	}
	if _, err := r.lobby.SetReady(sess.ID, m.Ready); err != nil {
		r.logger.Warn("seat lost before ready", zap.String(observability.FieldUsername, sess.Username), zap.Error(err))
		return
	}
	sess.Ready = m.Ready
	r.logger.Debug("ready changed",
		zap.String(observability.FieldUsername, sess.Username),
		zap.Int(observability.FieldSeat, sess.Seat),
		zap.Bool("ready", m.Ready),
	)
	r.broadcastLobby()
	if r.lobby.BothReady() {
		r.scheduleStart()
	}
}

// scheduleStart arms a one-shot start. The start re-checks its preconditions
// when it fires, so a cancelled ready or a changed seat simply makes it a no-op.
// Only the latest scheduled start may fire.
func (r *Router) scheduleStart() {
	r.startSeq++
	seq := r.startSeq
	occupants := r.lobby.Occupants()
	r.logger.Debug("match start scheduled", zap.Duration("delay", r.settings.StartDelay), zap.Uint64("seq", seq))
	r.after(r.settings.StartDelay, func() { r.tryStart(seq, occupants) })
}

func (r *Router) tryStart(seq uint64, occupants [2]string) {
	if seq != r.startSeq {
		r.logger.Debug("superseded start ignored", zap.Uint64("seq", seq))
		return
	}
	if r.engine.Active() {
		return
	}
	if r.lobby.Occupants() != occupants || !r.lobby.BothReady() {
		r.logger.Debug("scheduled start abandoned")
		return
	}
	r.startMatch()
}

// dropSession removes the connection's session and frees its seat. A running
// match is stopped at once.
func (r *Router) dropSession(c session.Conn) {
	sess, ok := r.registry.Remove(c)
	if !ok {
		return
	}
	r.logger.Info("session ended", zap.String(observability.FieldUsername, sess.Username), zap.String(observability.FieldSession, sess.ID))
	seat, seated := r.lobby.Leave(sess.ID)
	if !seated {
		return
	}
	if r.engine.Running() {
		r.logger.Info("stopping match, player left",
			zap.String(observability.FieldMatch, r.engine.MatchID()),
			zap.Int(observability.FieldSeat, seat),
		)
		r.stopMatch()
	}
	r.broadcastLobby()
	r.broadcast(protocol.NewPlayerLeft())
}

func (r *Router) broadcastLobby() {
	r.broadcast(protocol.NewLobbyUpdate(r.lobby.Snapshot()))
}
