// Package session owns the single call session of the client: its phase,
// role and identifiers, and the transitions driven by signaling, local
// actions and the call engine.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/repaircall/internal/callengine"
)

// DefaultEndGrace is how long an ended session stays visible before it
// returns to idle.
const DefaultEndGrace = 500 * time.Millisecond

// Options configure a Coordinator.
type Options struct {
	Engine    callengine.Client
	Creator   CallCreator
	EngineURL string
	EndGrace  time.Duration
	Clock     clock.Clock
	Logger    *zerolog.Logger
}

// Coordinator is the single owner of the call session. Every mutation is a
// command applied by Run in receipt order; engine calls run on a separate
// worker in the order the loop issued them, so the loop never waits on the
// network.
type Coordinator struct {
	engine  callengine.Client
	creator CallCreator
	url     string
	grace   time.Duration
	clock   clock.Clock
	log     *zerolog.Logger

	commands chan *command
	ops      *opQueue
	stopping chan struct{}
	done     chan struct{}

	// Owned by the Run goroutine.
	snap          Snapshot
	token         string
	gen           uint64
	remotePresent bool
	held          bool
	micSinceJoin  bool
	resetTimer    *clock.Timer

	mu      sync.RWMutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

// New creates a coordinator. Call Run to start processing actions.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	grace := opts.EndGrace
	if grace <= 0 {
		grace = DefaultEndGrace
	}
	idle := idleSnapshot()
	return &Coordinator{
		engine:   opts.Engine,
		creator:  opts.Creator,
		url:      opts.EngineURL,
		grace:    grace,
		clock:    clk,
		log:      logger,
		commands: make(chan *command, 32),
		ops:      newOpQueue(),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		snap:     idle,
		current:  idle,
		subs:     make(map[int]chan Snapshot),
	}
}

// Run processes commands until ctx is cancelled. A session still in
// progress at that point is ended and its room left.
func (c *Coordinator) Run(ctx context.Context) {
	workerDone := make(chan struct{})
	go c.engineWorker(ctx, workerDone)

	defer func() {
		close(c.stopping)
		c.stopResetTimer()
		c.ops.close()
		<-workerDone
		close(c.done)
		c.closeSubscribers()
	}()

	for {
		select {
		case <-ctx.Done():
			if c.snap.Phase.InProgress() {
				c.finish(EndReasonShutdown, "")
				c.publish()
			}
			return
		case cmd := <-c.commands:
			c.handle(cmd)
		}
	}
}

// Start creates an outbound call to target through the configured creator
// and seeds the session with the response. A creation failure is logged and
// returned; no session is started.
func (c *Coordinator) Start(ctx context.Context, target string) (Snapshot, error) {
	if c.creator == nil {
		return Snapshot{}, ErrNoCreator
	}
	if snap := c.Snapshot(); snap.Phase != PhaseIdle {
		return snap, ErrBusy
	}
	desc, err := c.creator.CreateCall(ctx, target)
	if err != nil {
		c.log.Error().Err(err).Str("target", target).Msg("failed to create call")
		return Snapshot{}, fmt.Errorf("create call: %w", err)
	}
	return c.Seed(ctx, desc)
}

// Seed starts an outbound session from a call-creation response and joins
// the room with the caller credential.
func (c *Coordinator) Seed(ctx context.Context, desc Descriptor) (Snapshot, error) {
	return c.do(ctx, &command{kind: cmdSeed, desc: desc})
}

// Invite starts an inbound session from a normalized invitation.
func (c *Coordinator) Invite(ctx context.Context, desc Descriptor) error {
	_, err := c.do(ctx, &command{kind: cmdInvite, desc: desc})
	return err
}

// Accept answers the inbound session. The join runs in the background;
// its outcome shows up in later snapshots.
func (c *Coordinator) Accept(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, &command{kind: cmdAccept})
}

// End hangs up the current session.
func (c *Coordinator) End(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, &command{kind: cmdEnd, reason: EndReasonLocalHangup})
}

// Terminate applies a signaling termination. An empty callID matches any
// session.
func (c *Coordinator) Terminate(ctx context.Context, callID string) error {
	_, err := c.do(ctx, &command{kind: cmdTerminate, callID: callID})
	return err
}

// ToggleMute flips the local microphone mute state.
func (c *Coordinator) ToggleMute(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, &command{kind: cmdToggleMute})
}

// Hold puts an active session on hold and silences the microphone.
func (c *Coordinator) Hold(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, &command{kind: cmdHold})
}

// Resume takes a held session back to active.
func (c *Coordinator) Resume(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, &command{kind: cmdResume})
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Subscribe returns a stream of snapshots starting with the current one.
// A slow reader only sees the latest snapshot. The channel is closed by
// cancel or when Run returns.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	select {
	case <-c.done:
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	default:
	}
	c.subs[id] = ch
	ch <- c.current
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
			c.mu.Unlock()
		})
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) do(ctx context.Context, cmd *command) (Snapshot, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case c.commands <- cmd:
	case <-c.stopping:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.snap, r.err
	case <-c.stopping:
		select {
		case r := <-cmd.reply:
			return r.snap, r.err
		default:
			return Snapshot{}, ErrStopped
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// post delivers an internal command; it gives up once Run is stopping.
func (c *Coordinator) post(cmd *command) {
	select {
	case c.commands <- cmd:
	case <-c.stopping:
	}
}

func (c *Coordinator) engineWorker(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		op, ok := c.ops.pop()
		if !ok {
			return
		}
		op(ctx)
	}
}

// enqueue never blocks, so the loop keeps draining commands while the
// worker waits on the engine.
func (c *Coordinator) enqueue(op func(context.Context)) {
	c.ops.push(op)
}

func (c *Coordinator) handle(cmd *command) {
	var err error
	switch cmd.kind {
	case cmdSeed:
		err = c.seed(cmd.desc)
	case cmdInvite:
		err = c.invite(cmd.desc)
	case cmdAccept:
		err = c.accept()
	case cmdEnd:
		err = c.end(cmd.reason)
	case cmdTerminate:
		err = c.terminate(cmd.callID)
	case cmdToggleMute:
		err = c.toggleMute()
	case cmdHold:
		err = c.hold()
	case cmdResume:
		err = c.resume()
	case cmdJoinResult:
		c.joinResult(cmd.gen, cmd.err)
	case cmdEngineEvent:
		c.engineEvent(cmd.gen, cmd.event)
	case cmdReset:
		c.reset(cmd.gen)
	}

	snap := c.publish()
	if cmd.reply != nil {
		cmd.reply <- reply{snap: snap, err: err}
	}
}
