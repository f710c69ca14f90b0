// Package elapsed keeps the call duration counter shown while both parties
// are in the call.
package elapsed

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/repaircall/internal/session"
)

// Ticker accumulates talk time across reconnects and holds. It is either
// running (runStart set, interval active) or paused.
type Ticker struct {
	clock  clock.Clock
	onTick func(label string)

	mu          sync.Mutex
	accumulated time.Duration
	runStart    time.Time
	running     bool
	attempt     string
	stop        chan struct{}
}

// New creates a ticker. onTick, if set, receives the label once a second
// while running.
func New(clk clock.Clock, onTick func(label string)) *Ticker {
	if clk == nil {
		clk = clock.New()
	}
	return &Ticker{clock: clk, onTick: onTick}
}

// Apply updates the counter for a new snapshot.
func (t *Ticker) Apply(snap session.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Attempt != t.attempt {
		t.pauseLocked()
		t.accumulated = 0
		t.attempt = snap.Attempt
	}

	switch snap.Phase {
	case session.PhaseIdle, session.PhaseOutgoing, session.PhaseIncoming, session.PhaseConnecting:
		t.pauseLocked()
		t.accumulated = 0
		return
	}

	run := snap.RemoteJoined && snap.Phase == session.PhaseActive
	switch {
	case run && !t.running:
		t.startLocked()
	case !run && t.running:
		t.pauseLocked()
	}
}

func (t *Ticker) startLocked() {
	t.running = true
	t.runStart = t.clock.Now()

	stop := make(chan struct{})
	t.stop = stop
	tk := t.clock.Ticker(time.Second)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				if t.onTick != nil {
					t.onTick(t.Label())
				}
			}
		}
	}()
}

// pauseLocked folds the current run into the accumulator.
func (t *Ticker) pauseLocked() {
	if !t.running {
		return
	}
	t.accumulated += t.clock.Since(t.runStart).Truncate(time.Second)
	t.running = false
	t.runStart = time.Time{}
	close(t.stop)
	t.stop = nil
}

// Elapsed returns the whole seconds of talk time so far.
func (t *Ticker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.accumulated
	if t.running {
		d += t.clock.Since(t.runStart)
	}
	return d.Truncate(time.Second)
}

// Label returns Elapsed as MM:SS.
func (t *Ticker) Label() string {
	return Format(t.Elapsed())
}

// Running reports whether the counter is advancing.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Close stops the interval.
func (t *Ticker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseLocked()
}

// Format renders d as MM:SS; minutes keep counting past an hour.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
