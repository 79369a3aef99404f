package gameserver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/events"
	"github.com/cory-johannsen/pong/internal/game/match"
	"github.com/cory-johannsen/pong/internal/game/session"
	"github.com/cory-johannsen/pong/internal/observability"
	"github.com/cory-johannsen/pong/internal/protocol"
	"github.com/cory-johannsen/pong/internal/storage"
)

// startMatch begins a fresh match for the two seated players and starts the clock.
//
// Precondition: both seats are occupied and ready; the engine is inactive.
func (r *Router) startMatch() {
	matchID := uuid.NewString()
	r.engine.Start(matchID)
	names := r.lobby.Usernames()
	r.logger.Info("match started",
		zap.String(observability.FieldMatch, matchID),
		zap.String("player1", names[0]),
		zap.String("player2", names[1]),
	)
	r.broadcast(protocol.NewGameStart())

	r.clock = NewMatchClock(r.settings.TickInterval)
	r.stopTicker = r.clock.Start(func() {
		// a tick is dropped rather than queued behind a backlog
		r.tryPost(func() { r.tick(matchID) })
	})
}

func (r *Router) stopMatchTicker() {
	if r.stopTicker != nil {
		r.stopTicker()
		r.stopTicker = nil
	}
}

// stopMatch cancels the clock and discards the match state.
func (r *Router) stopMatch() {
	r.stopMatchTicker()
	r.engine.Stop()
}

func (r *Router) tick(matchID string) {
	if r.engine.MatchID() != matchID {
		return
	}
	res, st, err := r.engine.Step()
	if errors.Is(err, match.ErrNotRunning) {
		return
	}
	if res.Scorer != 0 {
		r.logger.Debug("goal",
			zap.String(observability.FieldMatch, matchID),
			zap.Int("scorer", res.Scorer),
			zap.Int("score1", st.Score1),
			zap.Int("score2", st.Score2),
		)
		r.broadcast(protocol.NewGoal(res.Scorer))
	}
	if res.Finished {
		r.finishMatch(matchID, res.Winner, st)
	}
	r.broadcast(protocol.NewGameState(st))
}

// finishMatch announces the result, records it, and schedules the lobby reset.
func (r *Router) finishMatch(matchID string, winner int, st match.State) {
	ticks := r.clock.Ticks()
	r.stopMatchTicker()
	names := r.lobby.Usernames()
	r.logger.Info("match finished",
		zap.String(observability.FieldMatch, matchID),
		zap.Int("winner", winner),
		zap.Int("score1", st.Score1),
		zap.Int("score2", st.Score2),
		zap.Uint64("ticks", ticks),
	)
	r.broadcast(protocol.NewGameEnd(winner, st.Score1, st.Score2))

	result := events.MatchResult{
		MatchID: matchID,
		Server:  r.settings.ServerName,
		Winner:  winner,
		Player1: names[0],
		Player2: names[1],
		Score1:  st.Score1,
		Score2:  st.Score2,
		EndedAt: time.Now().UTC(),
	}
	r.async(func(ctx context.Context) event {
		r.recordResult(ctx, result)
		return nil
	})

	r.after(r.settings.EndDelay, func() { r.resetAfterMatch(matchID) })
}

// recordResult applies stat increments and publishes the result. Failures are
// logged and never reach the players.
func (r *Router) recordResult(ctx context.Context, result events.MatchResult) {
	for seat, username := range []string{result.Player1, result.Player2} {
		if username == "" {
			continue
		}
		delta := storage.StatsDelta{Games: 1, Losses: 1}
		if seat+1 == result.Winner {
			delta = storage.StatsDelta{Games: 1, Wins: 1}
		}
		if err := r.store.IncrementStats(ctx, username, delta); err != nil {
			r.logger.Warn("updating stats",
				zap.String(observability.FieldMatch, result.MatchID),
				zap.String(observability.FieldUsername, username),
				zap.Error(err),
			)
		}
	}
	if err := r.publisher.PublishMatchResult(ctx, result); err != nil {
		r.logger.Warn("publishing match result", zap.String(observability.FieldMatch, result.MatchID), zap.Error(err))
	}
}

// resetAfterMatch discards the finished match and clears readiness so the
// seated players can ready up for a rematch.
func (r *Router) resetAfterMatch(matchID string) {
	if r.engine.MatchID() != matchID {
		return
	}
	r.engine.Stop()
	r.lobby.ResetReadiness()
	for _, s := range r.registry.All() {
		s.Ready = false
	}
	r.logger.Debug("lobby reset after match", zap.String(observability.FieldMatch, matchID))
	r.broadcastLobby()
}

func (r *Router) handleInput(c session.Conn, msg protocol.Inbound) {
	m := msg.(protocol.Input)
	seat, ok := r.playingSeat(c)
	if !ok {
		return
	}
	dir := match.Up
	if m.Input == protocol.DirectionDown {
		dir = match.Down
	}
	r.logPaddleErr(c, r.engine.SetDirection(seat, dir))
}

func (r *Router) handleInputStop(c session.Conn, _ protocol.Inbound) {
	seat, ok := r.playingSeat(c)
	if !ok {
		return
	}
	r.logPaddleErr(c, r.engine.StopPaddle(seat))
}

func (r *Router) handleMouseInput(c session.Conn, msg protocol.Inbound) {
	m := msg.(protocol.MouseInput)
	seat, ok := r.playingSeat(c)
	if !ok {
		return
	}
	r.logPaddleErr(c, r.engine.SetPaddleY(seat, m.PaddleY))
}

// playingSeat returns the seat of c's session when a match is running.
func (r *Router) playingSeat(c session.Conn) (int, bool) {
	sess, ok := r.registry.Get(c)
	if !ok || sess.Seat == 0 || !r.engine.Running() {
		return 0, false
	}
	return sess.Seat, true
}

func (r *Router) logPaddleErr(c session.Conn, err error) {
	if err != nil {
		r.logger.Debug("paddle command ignored", zap.String(observability.FieldConn, c.ID()), zap.Error(err))
	}
}
