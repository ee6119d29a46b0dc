package session

import (
	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// Frame types exchanged over an agent or spectator connection.
const (
	FrameAction    = "action"
	FrameSnapshot  = "snapshot"
	FrameYourTurn  = "yourTurn"
	FrameEvents    = "events"
	FrameGameEnded = "gameEnded"
	FrameSettled   = "settled"
	FrameError     = "error"
)

// Frame is one outbound message. Payload is encoded as JSON by the transport.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// YourTurnPayload prompts the acting agent.
type YourTurnPayload struct {
	Snapshot     engine.Snapshot     `json:"snapshot"`
	LegalActions []engine.ActionType `json:"legalActions"`
}

// EventsPayload carries the events of one accepted action or auto-play.
type EventsPayload struct {
	Events []engine.Event `json:"events"`
}

// GameEndedPayload announces the final state.
type GameEndedPayload struct {
	Snapshot      engine.Snapshot `json:"snapshot"`
	Winner        int             `json:"winner"`
	WinnerAddress string          `json:"winnerAddress,omitempty"`
}

// SettledPayload carries the settlement transaction reference.
type SettledPayload struct {
	TxRef ledger.TxRef `json:"txRef"`
}

// ErrorPayload reports a rejected action or a failed settlement.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ActionPayload is the body of an inbound action frame.
type ActionPayload struct {
	Action engine.Action `json:"action"`
}

func snapshotFrame(s engine.Snapshot) Frame {
	return Frame{Type: FrameSnapshot, Payload: s}
}

// ErrorFrame reports err to a single connection, carrying its domain code
// when it has one.
func ErrorFrame(err error) Frame {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		return errorFrame(err.Error(), "")
	}
	return errorFrame(err.Error(), string(code))
}

func errorFrame(message string, code string) Frame {
	return Frame{Type: FrameError, Payload: ErrorPayload{Message: message, Code: code}}
}
