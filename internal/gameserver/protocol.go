// Package gameserver exposes lobby sessions over HTTP and websockets. Each game
// owns one lobby.Manager; every websocket connection is one lobby client.
package gameserver

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/cory-johannsen/gamelobby/internal/lobby"
)

// Outbound message types.
const (
	MsgWelcome   = "welcome"
	MsgPositions = "positions"
	MsgError     = "error"
)

// FunctionCall is the only inbound message: a remote call request.
type FunctionCall struct {
	FunctionName string         `json:"function_name"`
	Parameters   map[string]any `json:"parameters"`
}

// ServerMessage is every outbound message.
type ServerMessage struct {
	Type       string `json:"type"`
	Parameters any    `json:"parameters"`
}

// WelcomeParameters is sent once to a client after it joins.
type WelcomeParameters struct {
	ClientID string   `json:"client_id"`
	GameID   string   `json:"game_id"`
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	Calls    []string `json:"calls"`
}

// PositionsParameters carries a snapshot of every seat in index order.
type PositionsParameters struct {
	Positions []lobby.Occupant `json:"positions"`
}

func welcomeMessage(p WelcomeParameters) ServerMessage {
	return ServerMessage{Type: MsgWelcome, Parameters: p}
}

func positionsMessage(positions []lobby.Occupant) ServerMessage {
	return ServerMessage{Type: MsgPositions, Parameters: PositionsParameters{Positions: positions}}
}

func errorMessage(resp *lobby.ErrorResponse) ServerMessage {
	return ServerMessage{Type: MsgError, Parameters: resp.Parameters}
}

// decodeFunctionCall parses one inbound frame. Numbers stay json.Number so the
// lobby can tell integers from fractions.
//
// Postcondition: Returns a call with a non-empty FunctionName, or an error.
func decodeFunctionCall(data []byte) (FunctionCall, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var call FunctionCall
	if err := dec.Decode(&call); err != nil {
		return FunctionCall{}, errors.Wrap(err, "malformed message")
	}
	if dec.More() {
		return FunctionCall{}, errors.New("malformed message: trailing data")
	}
	if call.FunctionName == "" {
		return FunctionCall{}, errors.New("malformed message: function_name is required")
	}
	return call, nil
}
