package session

import "errors"

var (
	// ErrBusy is returned when a session is already in progress.
	ErrBusy = errors.New("call session already in progress")
	// ErrNoSession is returned for actions that need a non-idle session.
	ErrNoSession = errors.New("no call session")
	// ErrInvalidPhase is returned when an action does not apply to the current phase.
	ErrInvalidPhase = errors.New("action not allowed in current phase")
	// ErrInvalidDescriptor is returned for seeds missing required fields.
	ErrInvalidDescriptor = errors.New("invalid session descriptor")
	// ErrCallMismatch is returned when a termination names another call.
	ErrCallMismatch = errors.New("call id does not match current session")
	// ErrStopped is returned when the coordinator loop is not running anymore.
	ErrStopped = errors.New("coordinator stopped")
	// ErrNoCreator is returned by Start when no call creator is configured.
	ErrNoCreator = errors.New("call creation is not configured")
)

// joinFailureMessage is the user-visible text for a failed transport join.
const joinFailureMessage = "Could not connect the call. Check your microphone permission and network, then try again."
