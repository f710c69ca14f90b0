package livekit

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	opusClockRate = 48000
	frameDuration = 20 * time.Millisecond
)

// opusSilence is a single Opus frame carrying 20 ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Microphone opens an audio capture. Open fails when the device is missing
// or access is denied.
type Microphone interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture yields encoded Opus frames until closed.
type Capture interface {
	NextSample(ctx context.Context) (media.Sample, error)
	Close() error
}

// SilenceMicrophone is a capture source for headless clients: it keeps the
// track alive with Opus silence.
type SilenceMicrophone struct{}

// Open implements Microphone.
func (SilenceMicrophone) Open(context.Context) (Capture, error) {
	return &silenceCapture{closed: make(chan struct{})}, nil
}

type silenceCapture struct {
	once   sync.Once
	closed chan struct{}
}

func (s *silenceCapture) NextSample(ctx context.Context) (media.Sample, error) {
	select {
	case <-s.closed:
		return media.Sample{}, io.EOF
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	default:
	}
	return media.Sample{Data: opusSilence, Duration: frameDuration}, nil
}

func (s *silenceCapture) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// captureProvider adapts a Capture to the SDK's sample provider. The SDK may
// close it on unpublish as well, so Close is idempotent.
type captureProvider struct {
	capture Capture
	once    sync.Once
	err     error
}

func newCaptureProvider(capture Capture) *captureProvider {
	return &captureProvider{capture: capture}
}

func (p *captureProvider) NextSample(ctx context.Context) (media.Sample, error) {
	return p.capture.NextSample(ctx)
}

func (p *captureProvider) OnBind() error   { return nil }
func (p *captureProvider) OnUnbind() error { return nil }

func (p *captureProvider) Close() error {
	p.once.Do(func() { p.err = p.capture.Close() })
	return p.err
}
