// Package callenginetest provides an in-memory callengine.Client for tests.
package callenginetest

import (
	"context"
	"sync"

	"github.com/vovakirdan/repaircall/internal/callengine"
)

// Fake records calls and lets tests script join outcomes and emit events.
type Fake struct {
	mu       sync.Mutex
	joinErr  error
	gate     chan struct{}
	joined   bool
	sink     callengine.Sink
	joins    []callengine.JoinParams
	leaves   int
	mic      []bool
	leaveErr error
}

// NewFake returns a fake whose joins succeed immediately.
func NewFake() *Fake {
	return &Fake{}
}

// FailJoins makes subsequent joins fail with err (nil restores success).
func (f *Fake) FailJoins(err error) {
	f.mu.Lock()
	f.joinErr = err
	f.mu.Unlock()
}

// FailLeaves makes Leave return err while still disconnecting.
func (f *Fake) FailLeaves(err error) {
	f.mu.Lock()
	f.leaveErr = err
	f.mu.Unlock()
}

// HoldJoins blocks subsequent joins until the returned release func is called.
func (f *Fake) HoldJoins() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Join implements callengine.Client.
func (f *Fake) Join(ctx context.Context, params callengine.JoinParams, sink callengine.Sink) error {
	f.mu.Lock()
	if f.joined {
		f.mu.Unlock()
		return callengine.ErrAlreadyJoined
	}
	f.joins = append(f.joins, params)
	gate := f.gate
	err := f.joinErr
	f.mu.Unlock()

	sink(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateConnecting})

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		sink(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateDisconnected})
		return err
	}

	f.mu.Lock()
	f.joined = true
	f.sink = sink
	f.mu.Unlock()

	sink(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateConnected})
	return nil
}

// Leave implements callengine.Client.
func (f *Fake) Leave() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.joined {
		return nil
	}
	f.joined = false
	f.sink = nil
	f.leaves++
	return f.leaveErr
}

// SetMicEnabled implements callengine.Client.
func (f *Fake) SetMicEnabled(enabled bool) error {
	f.mu.Lock()
	f.mic = append(f.mic, enabled)
	f.mu.Unlock()
	return nil
}

// Emit delivers ev to the sink of the current join. It reports false when
// nothing is joined.
func (f *Fake) Emit(ev callengine.Event) bool {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(ev)
	return true
}

// RemoteJoined is a shortcut for emitting a remote participant join.
func (f *Fake) RemoteJoined(identity string) bool {
	return f.Emit(callengine.Event{Kind: callengine.EventRemoteJoined, Participant: identity})
}

// Joined reports whether a room is currently connected.
func (f *Fake) Joined() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined
}

// Joins returns the parameters of every join attempt.
func (f *Fake) Joins() []callengine.JoinParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]callengine.JoinParams(nil), f.joins...)
}

// Leaves returns how many times a connected room was left.
func (f *Fake) Leaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves
}

// MicCalls returns the arguments of every SetMicEnabled call.
func (f *Fake) MicCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.mic...)
}

var _ callengine.Client = (*Fake)(nil)
