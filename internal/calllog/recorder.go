// Package calllog writes finished calls to the local history.
package calllog

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/session"
	"github.com/vovakirdan/repaircall/internal/store"
)

// Recorder saves one record per session attempt when it reaches ended.
type Recorder struct {
	store store.CallLogStore
	clock clock.Clock
	log   *zerolog.Logger

	mu    sync.Mutex
	saved string
}

// NewRecorder creates a recorder writing to s.
func NewRecorder(s store.CallLogStore, clk clock.Clock, logger *zerolog.Logger) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{store: s, clock: clk, log: logger}
}

// Apply records snap if it is the first ended snapshot of its attempt.
// talk is the elapsed talk time at that moment.
func (r *Recorder) Apply(ctx context.Context, snap session.Snapshot, talk time.Duration) {
	if snap.Phase != session.PhaseEnded || snap.Attempt == "" {
		return
	}

	r.mu.Lock()
	if r.saved == snap.Attempt {
		r.mu.Unlock()
		return
	}
	r.saved = snap.Attempt
	r.mu.Unlock()

	rec := &store.CallRecord{
		Attempt:    snap.Attempt,
		CallID:     snap.CallID,
		Role:       string(snap.Role),
		RemoteName: snap.RemoteName,
		EndReason:  string(snap.EndReason),
		Failure:    snap.Failure,
		Duration:   talk,
		StartedAt:  snap.StartedAt,
		EndedAt:    r.clock.Now(),
	}
	if err := r.store.SaveCall(ctx, rec); err != nil {
		r.log.Error().Err(err).Str("call_id", snap.CallID).Msg("failed to save call log entry")
		return
	}
	r.log.Debug().
		Int64("id", rec.ID).
		Str("call_id", rec.CallID).
		Dur("duration", talk).
		Str("end_reason", rec.EndReason).
		Msg("call logged")
}
