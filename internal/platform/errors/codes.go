package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Engine action errors
	CodeGameEnded        Code = "GAME_ENDED"
	CodeNotYourTurn      Code = "NOT_YOUR_TURN"
	CodeWrongPhase       Code = "WRONG_PHASE"
	CodeUnknownAction    Code = "UNKNOWN_ACTION"
	CodeInvalidProperty  Code = "INVALID_PROPERTY"
	CodeNotOwner         Code = "NOT_OWNER"
	CodePropertyOwned    Code = "PROPERTY_OWNED"
	CodeInsufficientCash Code = "INSUFFICIENT_CASH"
	CodeBidTooLow        Code = "BID_TOO_LOW"
	CodeBidUnaffordable  Code = "BID_UNAFFORDABLE"
	CodeNotJailed        Code = "NOT_JAILED"
	CodeMortgaged        Code = "MORTGAGED"
	CodeNotMortgaged     Code = "NOT_MORTGAGED"
	CodeHasHouses        Code = "HAS_HOUSES"
	CodeBuildRule        Code = "BUILD_RULE"
	CodeAuctionActive    Code = "AUCTION_ACTIVE"

	// Seed and checkpoint errors
	CodeInvalidSeed     Code = "INVALID_SEED"
	CodeInvalidAddress  Code = "INVALID_ADDRESS"
	CodeFieldOverflow   Code = "CHECKPOINT_FIELD_OVERFLOW"
	CodeCorruptSnapshot Code = "CHECKPOINT_CORRUPT"

	// Ledger errors
	CodeNotFound       Code = "NOT_FOUND"
	CodeAlreadyExists  Code = "ALREADY_EXISTS"
	CodeGameNotOpen    Code = "GAME_NOT_OPEN"
	CodeGameNotStarted Code = "GAME_NOT_STARTED"
	CodeAlreadySettled Code = "ALREADY_SETTLED"
	CodeStaleRound     Code = "STALE_CHECKPOINT_ROUND"

	// Session and lobby errors
	CodeUnknownPlayer Code = "UNKNOWN_PLAYER"
	CodeNotStarted    Code = "NOT_STARTED"
	CodeSeatTaken     Code = "SEAT_TAKEN"
	CodeLobbyFull     Code = "LOBBY_FULL"
	CodeUnsupported   Code = "UNSUPPORTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeUnknownAction,
		CodeInvalidProperty,
		CodeInvalidSeed,
		CodeInvalidAddress,
		CodeFieldOverflow,
		CodeCorruptSnapshot:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeGameEnded,
		CodeNotYourTurn,
		CodeWrongPhase,
		CodeNotOwner,
		CodePropertyOwned,
		CodeInsufficientCash,
		CodeBidTooLow,
		CodeBidUnaffordable,
		CodeNotJailed,
		CodeMortgaged,
		CodeNotMortgaged,
		CodeHasHouses,
		CodeBuildRule,
		CodeAuctionActive,
		CodeGameNotOpen,
		CodeGameNotStarted,
		CodeAlreadySettled,
		CodeStaleRound,
		CodeNotStarted,
		CodeLobbyFull:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound, CodeUnknownPlayer:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeAlreadyExists, CodeSeatTaken:
		return codes.AlreadyExists

	case CodeUnsupported:
		return codes.Unimplemented

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes for the REST surface.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
