// Package livekit joins LiveKit rooms as the local call participant and
// publishes the microphone as an Opus track.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/callengine"
)

const micTrackName = "microphone"

// Options configure a Client.
type Options struct {
	Microphone Microphone
	Clock      clock.Clock
	Logger     *zerolog.Logger
}

// Client implements callengine.Client on top of the LiveKit Go SDK.
type Client struct {
	mic   Microphone
	clock clock.Clock
	log   *zerolog.Logger

	mu         sync.Mutex
	room       *lksdk.Room
	pub        *lksdk.LocalTrackPublication
	provider   *captureProvider
	micEnabled bool
}

// New creates a LiveKit client. Without a microphone it publishes silence.
func New(opts Options) *Client {
	mic := opts.Microphone
	if mic == nil {
		mic = SilenceMicrophone{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{mic: mic, clock: clk, log: logger, micEnabled: true}
}

// Join connects to params.Channel, opens the microphone and publishes it.
// Connectivity and participant changes are reported through sink until
// Leave is called.
func (c *Client) Join(ctx context.Context, params callengine.JoinParams, sink callengine.Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room != nil {
		return callengine.ErrAlreadyJoined
	}

	info, err := InspectToken(params.Token, c.clock.Now())
	if err != nil {
		return err
	}
	if info.Room != "" && info.Room != params.Channel {
		return fmt.Errorf("%w: token is for room %q", callengine.ErrJoinRejected, info.Room)
	}
	if want := strconv.FormatInt(params.Identity, 10); info.Identity != "" && info.Identity != want {
		c.log.Warn().Str("token_identity", info.Identity).Str("identity", want).Msg("room token identity differs from signaled uid")
	}

	sink(stateEvent(callengine.StateConnecting))

	room, err := lksdk.ConnectToRoomWithToken(params.URL, params.Token, roomCallback(sink), lksdk.WithAutoSubscribe(true))
	if err != nil {
		sink(stateEvent(callengine.StateDisconnected))
		return fmt.Errorf("%w: %w", callengine.ErrJoinRejected, err)
	}
	if err := ctx.Err(); err != nil {
		room.Disconnect()
		return err
	}

	provider, pub, err := c.publishMicrophone(ctx, room)
	if err != nil {
		room.Disconnect()
		sink(stateEvent(callengine.StateDisconnected))
		return err
	}

	c.room = room
	c.pub = pub
	c.provider = provider
	c.micEnabled = true

	c.log.Info().
		Str("room", params.Channel).
		Str("identity", room.LocalParticipant.Identity()).
		Msg("joined call room")

	for _, p := range room.GetRemoteParticipants() {
		sink(callengine.Event{Kind: callengine.EventRemoteJoined, Participant: p.Identity()})
	}
	sink(stateEvent(callengine.StateConnected))
	return nil
}

func (c *Client) publishMicrophone(ctx context.Context, room *lksdk.Room) (*captureProvider, *lksdk.LocalTrackPublication, error) {
	capture, err := c.mic.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", callengine.ErrMicPermission, err)
	}
	provider := newCaptureProvider(capture)

	track, err := lksdk.NewLocalTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: opusClockRate,
		Channels:  1,
	})
	if err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("create microphone track: %w", err)
	}
	if err := track.StartWrite(provider, nil); err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("start microphone track: %w", err)
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   micTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("publish microphone: %w", err)
	}
	return provider, pub, nil
}

// Leave unpublishes the microphone, releases the capture and disconnects.
func (c *Client) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == nil {
		return nil
	}

	var errs []error
	if c.pub != nil {
		if err := c.room.LocalParticipant.UnpublishTrack(c.pub.SID()); err != nil {
			errs = append(errs, fmt.Errorf("unpublish microphone: %w", err))
		}
	}
	if c.provider != nil {
		if err := c.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close microphone: %w", err))
		}
	}
	c.room.Disconnect()

	c.room = nil
	c.pub = nil
	c.provider = nil
	c.micEnabled = true
	return errors.Join(errs...)
}

// SetMicEnabled mutes or unmutes the published track. Before a join it only
// records the wish; a fresh join always starts unmuted.
func (c *Client) SetMicEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.micEnabled = enabled
	if c.pub == nil {
		return nil
	}
	c.pub.SetMuted(!enabled)
	return nil
}

func roomCallback(sink callengine.Sink) *lksdk.RoomCallback {
	cb := lksdk.NewRoomCallback()
	cb.OnParticipantConnected = func(p *lksdk.RemoteParticipant) {
		sink(callengine.Event{Kind: callengine.EventRemoteJoined, Participant: p.Identity()})
	}
	cb.OnParticipantDisconnected = func(p *lksdk.RemoteParticipant) {
		sink(callengine.Event{Kind: callengine.EventRemoteLeft, Participant: p.Identity()})
	}
	cb.OnReconnecting = func() {
		sink(stateEvent(callengine.StateReconnecting))
	}
	cb.OnReconnected = func() {
		sink(stateEvent(callengine.StateConnected))
	}
	cb.OnDisconnected = func() {
		sink(stateEvent(callengine.StateDisconnected))
	}
	return cb
}

func stateEvent(state callengine.State) callengine.Event {
	return callengine.Event{Kind: callengine.EventStateChanged, State: state}
}

// Ensure Client implements callengine.Client
var _ callengine.Client = (*Client)(nil)
