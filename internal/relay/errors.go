package relay

import "errors"

var (
	ErrTooManySessions = errors.New("too many sessions")
	// ErrSessionClosed is returned when a deregistered session tries to
	// propagate. Nothing is delivered.
	ErrSessionClosed = errors.New("session closed")
)
