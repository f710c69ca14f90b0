// Package callengine abstracts the real-time audio room a call runs in.
package callengine

import (
	"context"
	"errors"
)

// State is a connectivity state reported by the transport.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
	StateReconnecting State = "RECONNECTING"
)

// EventKind describes what a transport event is about.
type EventKind int

const (
	// EventStateChanged reports a connectivity transition in Event.State.
	EventStateChanged EventKind = iota
	// EventRemoteJoined reports that a remote participant attached to the room.
	EventRemoteJoined
	// EventRemoteLeft reports that a remote participant left the room.
	EventRemoteLeft
)

// Event is emitted by a transport client while joined.
type Event struct {
	Kind        EventKind
	State       State
	Participant string
}

// Sink receives transport events. It should return quickly.
type Sink func(Event)

// JoinParams identifies the room and the local participant.
type JoinParams struct {
	URL      string
	Channel  string
	Token    string
	Identity int64
}

var (
	// ErrMicPermission is returned when the microphone cannot be acquired.
	ErrMicPermission = errors.New("microphone permission denied")
	// ErrJoinRejected is returned when the room refuses the join.
	ErrJoinRejected = errors.New("room join rejected")
	// ErrTokenExpired is returned when the room credential is already expired.
	ErrTokenExpired = errors.New("room token expired")
	// ErrAlreadyJoined is returned by Join while a room is still connected.
	ErrAlreadyJoined = errors.New("already joined a room")
)

// Client connects to a room and publishes the local microphone.
type Client interface {
	// Join connects to the room, acquires the microphone and publishes it.
	Join(ctx context.Context, params JoinParams, sink Sink) error
	// Leave releases the microphone and disconnects. Safe to call when not joined.
	Leave() error
	// SetMicEnabled toggles the published audio track without republishing.
	SetMicEnabled(enabled bool) error
}
