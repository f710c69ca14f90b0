// Package cues plays the ringback and ringtone loops that accompany an
// unanswered call.
package cues

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Audio format of every cue: 16-bit little-endian PCM, 8 kHz mono.
const (
	SampleRate    = 8000
	FrameDuration = 20 * time.Millisecond
	frameBytes    = SampleRate * 2 * int(FrameDuration/time.Millisecond) / 1000
)

var (
	// ErrPlaybackBlocked is returned when the output refuses playback until
	// the user unlocks audio.
	ErrPlaybackBlocked = errors.New("audio playback blocked")
	// ErrPlayerClosed is returned by Play after Close.
	ErrPlayerClosed = errors.New("player closed")
	// ErrEmptyCue is returned when a player has no audio to loop.
	ErrEmptyCue = errors.New("cue has no audio")
)

// Player loops a single cue.
type Player interface {
	// Play starts the loop. Calling it while playing is a no-op.
	Play() error
	// Stop halts the loop. Safe to call when not playing.
	Stop()
	// Playing reports whether the loop is still running. A loop can end on
	// its own when the output fails.
	Playing() bool
	// Close stops and releases the player.
	Close() error
}

// LoopPlayer writes a PCM cue to a sink in real time, one frame per tick,
// wrapping around at the end.
type LoopPlayer struct {
	name  string
	pcm   []byte
	sink  io.Writer
	clock clock.Clock
	log   *zerolog.Logger

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewLoopPlayer creates a player for pcm.
func NewLoopPlayer(name string, pcm []byte, sink io.Writer, clk clock.Clock, logger *zerolog.Logger) *LoopPlayer {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LoopPlayer{name: name, pcm: pcm, sink: sink, clock: clk, log: logger}
}

// Play writes the first frame right away so an unavailable output surfaces
// as ErrPlaybackBlocked, then keeps looping in the background.
func (p *LoopPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.runningLocked() {
		return nil
	}
	if len(p.pcm) < frameBytes {
		return ErrEmptyCue
	}

	if _, err := p.sink.Write(p.pcm[:frameBytes]); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPlaybackBlocked, p.name, err)
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(p.clock.Ticker(FrameDuration), p.stop, p.done, frameBytes)
	return nil
}

func (p *LoopPlayer) loop(ticker *clock.Ticker, stop <-chan struct{}, done chan<- struct{}, offset int) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if offset+frameBytes > len(p.pcm) {
			offset = 0
		}
		if _, err := p.sink.Write(p.pcm[offset : offset+frameBytes]); err != nil {
			p.log.Warn().Err(err).Str("cue", p.name).Msg("cue output failed, stopping loop")
			return
		}
		offset += frameBytes
	}
}

// Stop halts the loop and waits for the writer goroutine.
func (p *LoopPlayer) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Playing reports whether the loop is running.
func (p *LoopPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *LoopPlayer) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Close stops the loop; later Play calls fail.
func (p *LoopPlayer) Close() error {
	p.Stop()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

var _ Player = (*LoopPlayer)(nil)
