package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/vovakirdan/repaircall/internal/callengine"
)

const transportLostMessage = "The call connection was lost."

func (c *Coordinator) seed(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if c.snap.Phase != PhaseIdle {
		return ErrBusy
	}
	c.open(desc, RoleCaller, PhaseOutgoing)
	c.join()
	return nil
}

func (c *Coordinator) invite(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if c.snap.Phase != PhaseIdle {
		c.log.Warn().
			Str("call_id", desc.CallID).
			Str("current_call_id", c.snap.CallID).
			Str("phase", string(c.snap.Phase)).
			Msg("incoming call ignored, session busy")
		return ErrBusy
	}
	c.open(desc, RoleCallee, PhaseIncoming)
	return nil
}

func (c *Coordinator) accept() error {
	switch c.snap.Phase {
	case PhaseIncoming:
	case PhaseIdle:
		return ErrNoSession
	default:
		return ErrInvalidPhase
	}
	c.snap.Phase = PhaseConnecting
	c.join()
	return nil
}

func (c *Coordinator) end(reason EndReason) error {
	switch c.snap.Phase {
	case PhaseIdle:
		return ErrNoSession
	case PhaseEnded:
		return nil
	}
	c.finish(reason, "")
	return nil
}

func (c *Coordinator) terminate(callID string) error {
	switch c.snap.Phase {
	case PhaseIdle:
		c.log.Debug().Str("call_id", callID).Msg("termination without session")
		return ErrNoSession
	case PhaseEnded:
		return nil
	}
	if callID != "" && callID != c.snap.CallID {
		c.log.Warn().
			Str("call_id", callID).
			Str("current_call_id", c.snap.CallID).
			Msg("termination for another call dropped")
		return ErrCallMismatch
	}
	c.finish(EndReasonRemoteHangup, "")
	return nil
}

func (c *Coordinator) toggleMute() error {
	if c.snap.Phase == PhaseIdle {
		return ErrNoSession
	}
	c.snap.Muted = !c.snap.Muted
	if !c.held {
		c.setMic(!c.snap.Muted)
	}
	return nil
}

func (c *Coordinator) hold() error {
	switch c.snap.Phase {
	case PhaseActive:
	case PhaseIdle:
		return ErrNoSession
	default:
		return ErrInvalidPhase
	}
	c.held = true
	c.snap.Phase = PhaseOnHold
	c.setMic(false)
	return nil
}

func (c *Coordinator) resume() error {
	switch c.snap.Phase {
	case PhaseOnHold:
	case PhaseIdle:
		return ErrNoSession
	default:
		return ErrInvalidPhase
	}
	c.held = false
	c.snap.Phase = PhaseActive
	c.setMic(!c.snap.Muted)
	return nil
}

// joinResult applies the outcome of the join issued for generation gen.
// Results of an older generation are dropped: the leave queued when that
// generation ended runs after the join on the engine worker.
func (c *Coordinator) joinResult(gen uint64, err error) {
	if gen != c.gen {
		c.log.Debug().Err(err).Uint64("gen", gen).Msg("stale join result dropped")
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Str("call_id", c.snap.CallID).Msg("failed to join call room")
		c.finish(EndReasonJoinFailed, joinFailureMessage)
		return
	}
	c.snap.Muted = false
	// A mic op queued behind the join would leave the fresh track muted.
	if c.micSinceJoin {
		c.setMic(!c.held)
	}
	switch c.snap.Phase {
	case PhaseOutgoing, PhaseConnecting, PhaseReconnecting:
		c.snap.Phase = c.livePhase()
	}
}

func (c *Coordinator) engineEvent(gen uint64, ev callengine.Event) {
	if gen != c.gen || !c.snap.Phase.InProgress() {
		return
	}
	switch ev.Kind {
	case callengine.EventRemoteJoined:
		c.remotePresent = true
	case callengine.EventRemoteLeft:
		c.remotePresent = false
	case callengine.EventStateChanged:
		c.applyState(ev.State)
	}
}

// applyState maps a connectivity state onto the phase. Only the listed
// prior phases react; anything else is a late event for a session that
// moved on.
func (c *Coordinator) applyState(state callengine.State) {
	prev := c.snap.Phase
	switch state {
	case callengine.StateConnecting:
		if prev == PhaseOutgoing || prev == PhaseConnecting {
			c.snap.Phase = PhaseConnecting
		}
	case callengine.StateReconnecting:
		switch prev {
		case PhaseConnecting, PhaseActive, PhaseOnHold, PhaseReconnecting:
			c.snap.Phase = PhaseReconnecting
		}
	case callengine.StateConnected:
		if prev == PhaseConnecting || prev == PhaseReconnecting {
			c.snap.Phase = c.livePhase()
		}
	case callengine.StateDisconnected:
		// Before the join completes the join result decides the outcome.
		switch prev {
		case PhaseActive, PhaseOnHold, PhaseReconnecting:
			c.finish(EndReasonTransportLost, transportLostMessage)
		}
	}
}

func (c *Coordinator) livePhase() Phase {
	if c.held {
		return PhaseOnHold
	}
	return PhaseActive
}

func (c *Coordinator) reset(gen uint64) {
	if gen != c.gen || c.snap.Phase != PhaseEnded {
		return
	}
	c.resetTimer = nil
	c.token = ""
	c.remotePresent = false
	c.held = false
	c.snap = idleSnapshot()
}

// open seeds every session field at once.
func (c *Coordinator) open(desc Descriptor, role Role, phase Phase) {
	c.stopResetTimer()
	c.gen++
	c.token = desc.AuthToken
	c.remotePresent = false
	c.held = false

	name := desc.RemoteName
	if name == "" {
		name = UnknownRemoteName
	}
	c.snap = Snapshot{
		Phase:         phase,
		Role:          role,
		Attempt:       uuid.NewString(),
		CallID:        desc.CallID,
		Channel:       desc.Channel,
		LocalIdentity: desc.LocalIdentity,
		RemoteName:    name,
		RemoteImage:   desc.RemoteImage,
		StartedAt:     c.clock.Now(),
	}
}

// finish moves the session to ended, leaves the room and schedules the
// return to idle. Bumping the generation makes every in-flight engine
// result and event stale.
func (c *Coordinator) finish(reason EndReason, failure string) {
	c.gen++
	c.remotePresent = false
	c.held = false
	c.snap.Phase = PhaseEnded
	c.snap.EndReason = reason
	c.snap.Failure = failure

	callID := c.snap.CallID
	c.enqueue(func(context.Context) {
		if err := c.engine.Leave(); err != nil {
			c.log.Warn().Err(err).Str("call_id", callID).Msg("failed to leave call room")
		}
	})

	gen := c.gen
	c.stopResetTimer()
	c.resetTimer = c.clock.AfterFunc(c.grace, func() {
		c.post(&command{kind: cmdReset, gen: gen})
	})
}

func (c *Coordinator) join() {
	gen := c.gen
	c.micSinceJoin = false
	params := callengine.JoinParams{
		URL:      c.url,
		Channel:  c.snap.Channel,
		Token:    c.token,
		Identity: c.snap.LocalIdentity,
	}
	sink := func(ev callengine.Event) {
		c.post(&command{kind: cmdEngineEvent, gen: gen, event: ev})
	}
	c.enqueue(func(ctx context.Context) {
		err := c.engine.Join(ctx, params, sink)
		c.post(&command{kind: cmdJoinResult, gen: gen, err: err})
	})
}

func (c *Coordinator) setMic(enabled bool) {
	c.micSinceJoin = true
	callID := c.snap.CallID
	c.enqueue(func(context.Context) {
		if err := c.engine.SetMicEnabled(enabled); err != nil {
			c.log.Warn().Err(err).Str("call_id", callID).Bool("enabled", enabled).Msg("failed to toggle microphone")
		}
	})
}

func (c *Coordinator) stopResetTimer() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

// publish stores the current state for readers and fans it out to
// subscribers when it changed.
func (c *Coordinator) publish() Snapshot {
	c.snap.RemoteJoined = c.remotePresent && c.snap.Phase == PhaseActive
	snap := c.snap

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current
	if prev == snap {
		return snap
	}
	c.current = snap

	if prev.Phase != snap.Phase {
		c.log.Info().
			Str("call_id", snap.CallID).
			Str("role", string(snap.Role)).
			Str("from", string(prev.Phase)).
			Str("phase", string(snap.Phase)).
			Msg("call phase changed")
	}

	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return snap
}

func (c *Coordinator) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
