package protocol

import (
	"encoding/json"

	"github.com/cory-johannsen/pong/internal/game/lobby"
	"github.com/cory-johannsen/pong/internal/game/match"
	"github.com/cory-johannsen/pong/internal/storage"
)

// Outbound message types.
const (
	TypeLoginResult    = "loginResult"
	TypeRegisterResult = "registerResult"
	TypePlayerID       = "playerId"
	TypeError          = "error"
	TypeLobbyUpdate    = "lobbyUpdate"
	TypeGameStart      = "gameStart"
	TypeGameState      = "gameState"
	TypeGoal           = "goal"
	TypeGameEnd        = "gameEnd"
	TypePlayerLeft     = "playerLeft"
	TypeUserStats      = "userStats"
)

// Reply texts sent to clients.
const (
	MsgUserNotFound     = "user not found"
	MsgWrongPassword    = "wrong password"
	MsgAlreadyConnected = "already connected"
	MsgAlreadyLoggedIn  = "already logged in"
	MsgServerError      = "server error"
	MsgInvalidInput     = "username and password must be at least 3 characters"
	MsgPasswordTooLong  = "password must be at most 72 bytes"
	MsgUsernameTaken    = "username already taken"
	MsgRegistered       = "registration successful, you can now log in"
	MsgLobbyFull        = "Lobby full!"
	MsgLoginRequired    = "login required"
	MsgAlreadyInLobby   = "already in lobby"
)

// LoginResult answers a login.
type LoginResult struct {
	Type     string         `json:"type"`
	Success  bool           `json:"success"`
	Username string         `json:"username,omitempty"`
	Stats    *storage.Stats `json:"stats,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// LoginSucceeded builds a successful LoginResult.
func LoginSucceeded(username string, stats storage.Stats) LoginResult {
	return LoginResult{Type: TypeLoginResult, Success: true, Username: username, Stats: &stats}
}

// LoginFailed builds a failed LoginResult.
func LoginFailed(message string) LoginResult {
	return LoginResult{Type: TypeLoginResult, Message: message}
}

// RegisterResult answers a register.
type RegisterResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewRegisterResult builds a RegisterResult.
func NewRegisterResult(success bool, message string) RegisterResult {
	return RegisterResult{Type: TypeRegisterResult, Success: success, Message: message}
}

// PlayerID tells a joiner its seat.
type PlayerID struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

// NewPlayerID builds a PlayerID.
func NewPlayerID(seat int) PlayerID {
	return PlayerID{Type: TypePlayerID, ID: seat}
}

// Error is a point-to-point failure notice.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an Error.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// LobbyUpdate carries the lobby snapshot.
type LobbyUpdate struct {
	Type string `json:"type"`
	lobby.State
}

// NewLobbyUpdate builds a LobbyUpdate.
func NewLobbyUpdate(s lobby.State) LobbyUpdate {
	return LobbyUpdate{Type: TypeLobbyUpdate, State: s}
}

// GameStart announces kickoff.
type GameStart struct {
	Type string `json:"type"`
}

// NewGameStart builds a GameStart.
func NewGameStart() GameStart { return GameStart{Type: TypeGameStart} }

// GameState carries the full MatchState.
type GameState struct {
	Type  string      `json:"type"`
	State match.State `json:"state"`
}

// NewGameState builds a GameState.
func NewGameState(s match.State) GameState {
	return GameState{Type: TypeGameState, State: s}
}

// Goal announces a goal by seat 1 or 2.
type Goal struct {
	Type   string `json:"type"`
	Scorer int    `json:"scorer"`
}

// NewGoal builds a Goal.
func NewGoal(scorer int) Goal { return Goal{Type: TypeGoal, Scorer: scorer} }

// FinalScore is the score carried by GameEnd.
type FinalScore struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

// GameEnd announces the winner.
type GameEnd struct {
	Type       string     `json:"type"`
	Winner     int        `json:"winner"`
	FinalScore FinalScore `json:"finalScore"`
}

// NewGameEnd builds a GameEnd.
func NewGameEnd(winner, score1, score2 int) GameEnd {
	return GameEnd{Type: TypeGameEnd, Winner: winner, FinalScore: FinalScore{Player1: score1, Player2: score2}}
}

// PlayerLeft announces that a seated player disconnected.
type PlayerLeft struct {
	Type string `json:"type"`
}

// NewPlayerLeft builds a PlayerLeft.
func NewPlayerLeft() PlayerLeft { return PlayerLeft{Type: TypePlayerLeft} }

// UserStats answers getStats.
type UserStats struct {
	Type     string        `json:"type"`
	Username string        `json:"username"`
	Stats    storage.Stats `json:"stats"`
}

// NewUserStats builds a UserStats.
func NewUserStats(username string, stats storage.Stats) UserStats {
	return UserStats{Type: TypeUserStats, Username: username, Stats: stats}
}

// Encode serialises an outbound message.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
