// Package protocol defines the JSON messages exchanged with game clients.
// Every message is an object whose "type" field selects its kind.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for frames that are not a valid message.
var ErrMalformed = errors.New("malformed message")

// ErrUnknownType is returned for a well-formed message of an unknown kind.
var ErrUnknownType = errors.New("unknown message type")

// Inbound message types.
const (
	TypeLogin       = "login"
	TypeRegister    = "register"
	TypeJoinLobby   = "joinLobby"
	TypePlayerReady = "playerReady"
	TypeInput       = "input"
	TypeInputStop   = "inputStop"
	TypeMouseInput  = "mouseInput"
	TypeGetStats    = "getStats"
)

// Directions carried by Input.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Inbound is a decoded client message.
type Inbound interface {
	// Type returns the message's "type" value.
	Type() string
}

// Login requests authentication.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register requests account creation.
type Register struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// JoinLobby requests a seat.
type JoinLobby struct{}

// PlayerReady toggles the sender's readiness.
type PlayerReady struct {
	Ready bool `json:"ready"`
}

// Input starts moving the sender's paddle.
type Input struct {
	Input string `json:"input"`
}

// InputStop stops the sender's paddle.
type InputStop struct{}

// MouseInput moves the sender's paddle to an absolute position.
type MouseInput struct {
	PaddleY float64 `json:"paddleY"`
}

// GetStats requests the sender's account stats.
type GetStats struct{}

func (Login) Type() string       { return TypeLogin }
func (Register) Type() string    { return TypeRegister }
func (JoinLobby) Type() string   { return TypeJoinLobby }
func (PlayerReady) Type() string { return TypePlayerReady }
func (Input) Type() string       { return TypeInput }
func (InputStop) Type() string   { return TypeInputStop }
func (MouseInput) Type() string  { return TypeMouseInput }
func (GetStats) Type() string    { return TypeGetStats }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame.
//
// Postcondition: Returns a typed Inbound value, or an error wrapping
// ErrMalformed or ErrUnknownType.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Inbound
	switch env.Type {
	case TypeLogin:
		msg = &Login{}
	case TypeRegister:
		msg = &Register{}
	case TypeJoinLobby:
		return JoinLobby{}, nil
	case TypePlayerReady:
		msg = &PlayerReady{}
	case TypeInput:
		msg = &Input{}
	case TypeInputStop:
		return InputStop{}, nil
	case TypeMouseInput:
		msg = &MouseInput{}
	case TypeGetStats:
		return GetStats{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	switch m := msg.(type) {
	case *Login:
		return *m, nil
	case *Register:
		return *m, nil
	case *PlayerReady:
		return *m, nil
	case *Input:
		if m.Input != DirectionUp && m.Input != DirectionDown {
			return nil, fmt.Errorf("%w: input %q", ErrMalformed, m.Input)
		}
		return *m, nil
	case *MouseInput:
		return *m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}
