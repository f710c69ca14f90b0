package session

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/repaircall/internal/callengine/callenginetest"
)

type harness struct {
	coord  *Coordinator
	engine *callenginetest.Fake
	clock  *clock.Mock
	ctx    context.Context
	cancel context.CancelFunc
}

func newHarness(t *testing.T, creator CallCreator) *harness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	engine := callenginetest.NewFake()
	mock := clock.NewMock()
	coord := New(Options{
		Engine:    engine,
		Creator:   creator,
		EngineURL: "wss://rtc.example.test",
		Clock:     mock,
	})
	go coord.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})
	return &harness{coord: coord, engine: engine, clock: mock, ctx: ctx, cancel: cancel}
}

func testDescriptor(callID string) Descriptor {
	return Descriptor{
		CallID:        callID,
		Channel:       "room-" + callID,
		AuthToken:     "token-" + callID,
		LocalIdentity: 42,
		RemoteName:    "Dana from Repairs",
		RemoteImage:   "https://cdn.example.test/dana.png",
	}
}

func mustSnapshot(t *testing.T, c *Coordinator, what string, match func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := c.Snapshot(); match(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %s, last snapshot %+v", what, c.Snapshot())
	return Snapshot{}
}

func mustPhase(t *testing.T, c *Coordinator, phase Phase) Snapshot {
	t.Helper()
	return mustSnapshot(t, c, "phase "+string(phase), func(s Snapshot) bool { return s.Phase == phase })
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}
