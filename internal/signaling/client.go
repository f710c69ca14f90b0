package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/session"
)

// Handler receives normalized signaling events.
type Handler interface {
	Invite(ctx context.Context, desc session.Descriptor) error
	Terminate(ctx context.Context, callID string) error
}

// Options configure a Client.
type Options struct {
	URL     string
	Token   string
	Handler Handler
	Logger  *zerolog.Logger
	// ReadLimit caps a single frame; zero keeps the library default.
	ReadLimit int64
}

// Diagnostics counts what the client did with received frames.
type Diagnostics struct {
	Received   uint64 `json:"received"`
	Invites    uint64 `json:"invites"`
	Terminates uint64 `json:"terminates"`
	Malformed  uint64 `json:"malformed"`
	Ignored    uint64 `json:"ignored"`
	Rejected   uint64 `json:"rejected"`
}

// Client is a websocket subscriber of the backend signaling channel. It
// does not reconnect; Run returns when the connection ends.
type Client struct {
	url       string
	token     string
	handler   Handler
	log       *zerolog.Logger
	readLimit int64

	received   atomic.Uint64
	invites    atomic.Uint64
	terminates atomic.Uint64
	malformed  atomic.Uint64
	ignored    atomic.Uint64
	rejected   atomic.Uint64
}

// NewClient builds a signaling client.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		url:       opts.URL,
		token:     opts.Token,
		handler:   opts.Handler,
		log:       logger,
		readLimit: opts.ReadLimit,
	}
}

// Run dials the channel and dispatches frames until ctx ends or the
// connection closes.
func (c *Client) Run(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}

	c.log.Info().Str("url", c.url).Msg("signaling connected")

	err = c.readLoop(ctx, conn)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		conn.Close(websocket.StatusNormalClosure, "closing")
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.log.Info().Msg("signaling closed by server")
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame json.RawMessage
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read signaling frame: %w", err)
		}
		c.Dispatch(ctx, frame)
	}
}

// Dispatch parses one frame and forwards it to the handler. Frames that do
// not parse are counted and dropped.
func (c *Client) Dispatch(ctx context.Context, frame []byte) {
	c.received.Add(1)

	ev, err := Parse(frame)
	if err != nil {
		c.malformed.Add(1)
		var bad *MalformedError
		if errors.As(err, &bad) {
			c.log.Warn().
				Str("event", bad.Event).
				Strs("missing", bad.Missing).
				Strs("invalid", bad.Invalid).
				Msg("dropping malformed call payload")
			return
		}
		c.log.Warn().Err(err).Msg("dropping signaling frame")
		return
	}

	switch ev.Kind {
	case KindInvite:
		c.invites.Add(1)
		if err := c.handler.Invite(ctx, ev.Invite); err != nil {
			c.rejected.Add(1)
			c.log.Warn().Err(err).Str("call_id", ev.CallID).Msg("incoming call not accepted by session")
		}
	case KindTerminate:
		c.terminates.Add(1)
		if err := c.handler.Terminate(ctx, ev.CallID); err != nil {
			c.rejected.Add(1)
			c.log.Debug().Err(err).Str("call_id", ev.CallID).Msg("termination not applied")
		}
	default:
		c.ignored.Add(1)
		c.log.Debug().Str("event", ev.Name).Msg("ignoring signaling event")
	}
}

// Diagnostics returns the frame counters.
func (c *Client) Diagnostics() Diagnostics {
	return Diagnostics{
		Received:   c.received.Load(),
		Invites:    c.invites.Load(),
		Terminates: c.terminates.Load(),
		Malformed:  c.malformed.Load(),
		Ignored:    c.ignored.Load(),
		Rejected:   c.rejected.Load(),
	}
}
