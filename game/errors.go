package game

import "errors"

var (
	ErrInvalidTournamentSize  = errors.New("invalid-tournament-size")
	ErrInvalidOptions         = errors.New("invalid-match-options")
	ErrUnknownMessageType     = errors.New("unknown-message-type")
	ErrMalformedPayload       = errors.New("malformed-payload")
	ErrSimulationFault        = errors.New("simulation-fault")
	ErrTournamentAborted      = errors.New("tournament-aborted")
	ErrConnectionReplaced     = errors.New("connection-replaced")
	ErrBracketInvariantBroken = errors.New("bracket-invariant-broken")
)
