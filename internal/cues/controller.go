package cues

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/session"
)

// WantRingback reports whether the caller-side cue should play: the caller
// is dialing, connecting, or active while the callee has not joined yet.
func WantRingback(s session.Snapshot) bool {
	if s.Role != session.RoleCaller || s.BothJoined() {
		return false
	}
	switch s.Phase {
	case session.PhaseOutgoing, session.PhaseConnecting, session.PhaseActive:
		return true
	}
	return false
}

// WantRingtone reports whether the callee-side cue should play.
func WantRingtone(s session.Snapshot) bool {
	if s.Role != session.RoleCallee && s.Phase != session.PhaseIncoming {
		return false
	}
	if s.BothJoined() {
		return false
	}
	switch s.Phase {
	case session.PhaseIncoming, session.PhaseConnecting, session.PhaseActive:
		return true
	}
	return false
}

// Status is what the shell shows about the cues.
type Status struct {
	Ringback     bool `json:"ringback"`
	Ringtone     bool `json:"ringtone"`
	SoundBlocked bool `json:"sound_blocked"`
}

// Options configure a Controller. Unlocked tells whether the user already
// allowed audio output; until then wanted cues only raise SoundBlocked.
type Options struct {
	Ringback Player
	Ringtone Player
	Unlocked bool
	Logger   *zerolog.Logger
}

// Controller starts and stops the two cues from session snapshots.
type Controller struct {
	ringback Player
	ringtone Player
	log      *zerolog.Logger

	mu         sync.Mutex
	unlocked   bool
	blocked    bool
	ringbackOn bool
	ringtoneOn bool
	last       session.Snapshot
}

// NewController creates a controller. A nil player disables that cue.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Controller{
		ringback: opts.Ringback,
		ringtone: opts.Ringtone,
		unlocked: opts.Unlocked,
		log:      logger,
	}
}

// Apply reconciles the cues with snap.
func (c *Controller) Apply(snap session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = snap
	c.reconcile()
}

// Unlock records the user gesture that allows audio and starts any cue
// that was waiting for it.
func (c *Controller) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlocked = true
	c.blocked = false
	c.reconcile()
}

// SoundBlocked reports whether a wanted cue could not play.
func (c *Controller) SoundBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// Status returns the current cue state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh(c.ringback, &c.ringbackOn)
	c.refresh(c.ringtone, &c.ringtoneOn)
	return Status{Ringback: c.ringbackOn, Ringtone: c.ringtoneOn, SoundBlocked: c.blocked}
}

// Close stops and releases both players.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, p := range []Player{c.ringback, c.ringtone} {
		if p == nil {
			continue
		}
		p.Stop()
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.ringbackOn, c.ringtoneOn = false, false
	return errors.Join(errs...)
}

func (c *Controller) reconcile() {
	if c.last.BothJoined() {
		c.forceStop(c.ringback, &c.ringbackOn)
		c.forceStop(c.ringtone, &c.ringtoneOn)
		c.blocked = false
		return
	}

	wantRingback := WantRingback(c.last)
	wantRingtone := WantRingtone(c.last)
	if !wantRingback && !wantRingtone {
		c.blocked = false
	}
	c.set("ringback", c.ringback, wantRingback, &c.ringbackOn)
	c.set("ringtone", c.ringtone, wantRingtone, &c.ringtoneOn)
}

func (c *Controller) forceStop(p Player, on *bool) {
	if p != nil {
		p.Stop()
	}
	*on = false
}

// refresh clears a flag whose player has stopped by itself.
func (c *Controller) refresh(p Player, on *bool) {
	if *on && p != nil && !p.Playing() {
		*on = false
	}
}

func (c *Controller) set(name string, p Player, want bool, on *bool) {
	if p == nil {
		return
	}
	if !want {
		if *on {
			p.Stop()
			*on = false
		}
		return
	}
	c.refresh(p, on)
	if *on {
		return
	}
	if !c.unlocked {
		c.blocked = true
		return
	}
	if err := p.Play(); err != nil {
		if errors.Is(err, ErrPlaybackBlocked) {
			c.blocked = true
		}
		c.log.Warn().Err(err).Str("cue", name).Str("call_id", c.last.CallID).Msg("cue playback failed")
		return
	}
	*on = true
}
