package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/repaircall/internal/callengine"
)

type stubCreator struct {
	desc    Descriptor
	err     error
	targets []string
}

func (s *stubCreator) CreateCall(_ context.Context, target string) (Descriptor, error) {
	s.targets = append(s.targets, target)
	return s.desc, s.err
}

func TestInviteMovesIdleToIncoming(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	snap := h.coord.Snapshot()
	if snap.Phase != PhaseIncoming || snap.Role != RoleCallee {
		t.Fatalf("expected incoming callee, got %+v", snap)
	}
	if snap.CallID != "c1" || snap.Channel != "room-c1" || snap.LocalIdentity != 42 {
		t.Fatalf("session identifiers not seeded: %+v", snap)
	}
	if snap.RemoteName != "Dana from Repairs" || snap.Attempt == "" {
		t.Fatalf("unexpected remote display: %+v", snap)
	}
	if len(h.engine.Joins()) != 0 {
		t.Fatalf("callee must not join before accepting")
	}
}

func TestInviteRejectsIncompleteDescriptor(t *testing.T) {
	cases := map[string]func(*Descriptor){
		"call id":  func(d *Descriptor) { d.CallID = "" },
		"channel":  func(d *Descriptor) { d.Channel = "" },
		"token":    func(d *Descriptor) { d.AuthToken = "" },
		"identity": func(d *Descriptor) { d.LocalIdentity = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			desc := testDescriptor("c1")
			mutate(&desc)

			err := h.coord.Invite(h.ctx, desc)
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
			}
			if snap := h.coord.Snapshot(); snap != idleSnapshot() {
				t.Fatalf("session changed on invalid invite: %+v", snap)
			}
		})
	}
}

func TestInviteWhileBusyIsRejected(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := h.coord.Invite(h.ctx, testDescriptor("c2")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if snap := h.coord.Snapshot(); snap.CallID != "c1" {
		t.Fatalf("busy invite replaced the session: %+v", snap)
	}
}

func TestUnknownRemoteNameDefault(t *testing.T) {
	h := newHarness(t, nil)

	desc := testDescriptor("c1")
	desc.RemoteName = ""
	if err := h.coord.Invite(h.ctx, desc); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if snap := h.coord.Snapshot(); snap.RemoteName != UnknownRemoteName {
		t.Fatalf("expected %q, got %q", UnknownRemoteName, snap.RemoteName)
	}
}

func TestSeedStartsOutgoingAndJoinsAsCaller(t *testing.T) {
	h := newHarness(t, nil)

	snap, err := h.coord.Seed(h.ctx, testDescriptor("c1"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if snap.Phase != PhaseOutgoing || snap.Role != RoleCaller {
		t.Fatalf("expected outgoing caller, got %+v", snap)
	}

	active := mustPhase(t, h.coord, PhaseActive)
	if active.Role != RoleCaller || active.Muted {
		t.Fatalf("unexpected active snapshot: %+v", active)
	}
	joins := h.engine.Joins()
	if len(joins) != 1 {
		t.Fatalf("expected one join, got %d", len(joins))
	}
	want := callengine.JoinParams{URL: "wss://rtc.example.test", Channel: "room-c1", Token: "token-c1", Identity: 42}
	if joins[0] != want {
		t.Fatalf("join params mismatch: got %+v want %+v", joins[0], want)
	}
}

func TestStartUsesCallCreator(t *testing.T) {
	creator := &stubCreator{desc: testDescriptor("out-1")}
	h := newHarness(t, creator)

	snap, err := h.coord.Start(h.ctx, "technician-7")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Phase != PhaseOutgoing || snap.CallID != "out-1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(creator.targets) != 1 || creator.targets[0] != "technician-7" {
		t.Fatalf("creator called with %v", creator.targets)
	}
}

func TestStartFailureLeavesSessionIdle(t *testing.T) {
	creator := &stubCreator{err: errors.New("backend unavailable")}
	h := newHarness(t, creator)

	if _, err := h.coord.Start(h.ctx, "technician-7"); err == nil {
		t.Fatalf("expected error")
	}
	if snap := h.coord.Snapshot(); snap.Phase != PhaseIdle {
		t.Fatalf("expected idle after failed start, got %s", snap.Phase)
	}
	if len(h.engine.Joins()) != 0 {
		t.Fatalf("no join expected after failed start")
	}
}

func TestStartWithoutCreator(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.coord.Start(h.ctx, "x"); !errors.Is(err, ErrNoCreator) {
		t.Fatalf("expected ErrNoCreator, got %v", err)
	}
}

func TestAcceptJoinsAndUnmutes(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if snap, _ := h.coord.ToggleMute(h.ctx); !snap.Muted {
		t.Fatalf("expected muted before accept")
	}

	release := h.engine.HoldJoins()
	snap, err := h.coord.Accept(h.ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if snap.Phase != PhaseConnecting {
		t.Fatalf("expected connecting, got %s", snap.Phase)
	}
	release()

	active := mustPhase(t, h.coord, PhaseActive)
	if active.Muted {
		t.Fatalf("a fresh join must reset mute")
	}
}

func TestAcceptOutsideIncoming(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Accept(h.ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := h.coord.Accept(h.ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
}

func TestEndResetsToIdleAfterGrace(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustPhase(t, h.coord, PhaseActive)
	h.engine.RemoteJoined("7")
	mustSnapshot(t, h.coord, "remote joined", func(s Snapshot) bool { return s.RemoteJoined })

	snap, err := h.coord.End(h.ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if snap.Phase != PhaseEnded || snap.EndReason != EndReasonLocalHangup || snap.RemoteJoined {
		t.Fatalf("unexpected ended snapshot: %+v", snap)
	}
	eventually(t, "room left", func() bool { return h.engine.Leaves() == 1 })

	h.clock.Add(DefaultEndGrace - time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if got := h.coord.Snapshot().Phase; got != PhaseEnded {
		t.Fatalf("reset before grace elapsed: %s", got)
	}

	h.clock.Add(time.Millisecond)
	idle := mustPhase(t, h.coord, PhaseIdle)
	if idle != idleSnapshot() {
		t.Fatalf("expected idle defaults, got %+v", idle)
	}
}

func TestEndWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.coord.End(h.ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestInviteDuringGraceIsBusy(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := h.coord.End(h.ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	// Ended is not idle, so a new invitation waits for the reset.
	if err := h.coord.Invite(h.ctx, testDescriptor("c2")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy during grace, got %v", err)
	}
	h.clock.Add(DefaultEndGrace)
	mustPhase(t, h.coord, PhaseIdle)
	if err := h.coord.Invite(h.ctx, testDescriptor("c2")); err != nil {
		t.Fatalf("invite after reset: %v", err)
	}
}

func TestToggleMuteTwice(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustPhase(t, h.coord, PhaseActive)

	first, err := h.coord.ToggleMute(h.ctx)
	if err != nil || !first.Muted {
		t.Fatalf("first toggle: muted=%v err=%v", first.Muted, err)
	}
	second, err := h.coord.ToggleMute(h.ctx)
	if err != nil || second.Muted {
		t.Fatalf("second toggle: muted=%v err=%v", second.Muted, err)
	}

	eventually(t, "two mic calls", func() bool { return len(h.engine.MicCalls()) == 2 })
	calls := h.engine.MicCalls()
	if calls[0] != false || calls[1] != true {
		t.Fatalf("expected [false true], got %v", calls)
	}
}

func TestToggleMuteWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.coord.ToggleMute(h.ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if len(h.engine.MicCalls()) != 0 {
		t.Fatalf("no mic call expected")
	}
}

func TestMuteDuringJoinResyncsMic(t *testing.T) {
	h := newHarness(t, nil)

	release := h.engine.HoldJoins()
	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if snap, err := h.coord.ToggleMute(h.ctx); err != nil || !snap.Muted {
		t.Fatalf("toggle mute: muted=%v err=%v", snap.Muted, err)
	}
	release()

	active := mustPhase(t, h.coord, PhaseActive)
	if active.Muted {
		t.Fatalf("a fresh join must reset mute")
	}
	eventually(t, "mic resync", func() bool { return len(h.engine.MicCalls()) == 2 })
	calls := h.engine.MicCalls()
	if calls[len(calls)-1] != !active.Muted {
		t.Fatalf("mic state %v does not match muted=%v", calls, active.Muted)
	}
}

func TestToggleBurstDuringJoinDoesNotBlock(t *testing.T) {
	h := newHarness(t, nil)

	release := h.engine.HoldJoins()
	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	const toggles = 201
	for i := 0; i < toggles; i++ {
		ctx, cancel := context.WithTimeout(h.ctx, time.Second)
		_, err := h.coord.ToggleMute(ctx)
		cancel()
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
	}
	release()

	active := mustPhase(t, h.coord, PhaseActive)
	eventually(t, "all mic calls", func() bool { return len(h.engine.MicCalls()) == toggles+1 })
	calls := h.engine.MicCalls()
	if calls[len(calls)-1] != !active.Muted {
		t.Fatalf("last mic call %v does not match muted=%v", calls[len(calls)-1], active.Muted)
	}
}

func TestHoldAndResume(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustPhase(t, h.coord, PhaseActive)
	h.engine.RemoteJoined("7")
	mustSnapshot(t, h.coord, "remote joined", func(s Snapshot) bool { return s.RemoteJoined })

	held, err := h.coord.Hold(h.ctx)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if held.Phase != PhaseOnHold || held.RemoteJoined {
		t.Fatalf("unexpected held snapshot: %+v", held)
	}

	// Muting while held does not re-enable the microphone.
	if _, err := h.coord.ToggleMute(h.ctx); err != nil {
		t.Fatalf("toggle mute: %v", err)
	}

	resumed, err := h.coord.Resume(h.ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Phase != PhaseActive || !resumed.RemoteJoined || !resumed.Muted {
		t.Fatalf("unexpected resumed snapshot: %+v", resumed)
	}

	eventually(t, "mic calls", func() bool { return len(h.engine.MicCalls()) == 2 })
	calls := h.engine.MicCalls()
	if calls[0] != false || calls[1] != false {
		t.Fatalf("expected [false false], got %v", calls)
	}
}

func TestHoldOutsideActive(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := h.coord.Hold(h.ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	if _, err := h.coord.Resume(h.ctx); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
}

func TestTerminationWinsOverAccept(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	release := h.engine.HoldJoins()
	if _, err := h.coord.Accept(h.ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := h.coord.Terminate(h.ctx, "c1"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if snap := h.coord.Snapshot(); snap.Phase != PhaseEnded || snap.EndReason != EndReasonRemoteHangup {
		t.Fatalf("expected ended by remote, got %+v", snap)
	}

	// The join completes late and is torn down by the queued leave.
	release()
	eventually(t, "late join torn down", func() bool {
		return h.engine.Leaves() == 1 && !h.engine.Joined()
	})
	if snap := h.coord.Snapshot(); snap.Phase != PhaseEnded {
		t.Fatalf("late join result revived the session: %+v", snap)
	}
}

func TestTerminateForAnotherCallIsDropped(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := h.coord.Terminate(h.ctx, "c2"); !errors.Is(err, ErrCallMismatch) {
		t.Fatalf("expected ErrCallMismatch, got %v", err)
	}
	if snap := h.coord.Snapshot(); snap.Phase != PhaseIncoming {
		t.Fatalf("session changed: %+v", snap)
	}
	if err := h.coord.Terminate(h.ctx, ""); err != nil {
		t.Fatalf("terminate without id: %v", err)
	}
	if snap := h.coord.Snapshot(); snap.Phase != PhaseEnded {
		t.Fatalf("expected ended, got %s", snap.Phase)
	}
}

func TestJoinFailureEndsSessionWithMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.FailJoins(callengine.ErrMicPermission)

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := h.coord.Accept(h.ctx); err != nil {
		t.Fatalf("accept: %v", err)
	}

	snap := mustPhase(t, h.coord, PhaseEnded)
	if snap.EndReason != EndReasonJoinFailed || snap.Failure == "" {
		t.Fatalf("expected join failure, got %+v", snap)
	}
	h.clock.Add(DefaultEndGrace)
	mustPhase(t, h.coord, PhaseIdle)
}

func TestReconnectingHidesRemoteUntilConnected(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustPhase(t, h.coord, PhaseActive)
	h.engine.RemoteJoined("7")
	mustSnapshot(t, h.coord, "remote joined", func(s Snapshot) bool { return s.RemoteJoined })

	h.engine.Emit(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateReconnecting})
	snap := mustPhase(t, h.coord, PhaseReconnecting)
	if snap.RemoteJoined {
		t.Fatalf("remote joined must be false outside active")
	}

	h.engine.Emit(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateConnected})
	mustSnapshot(t, h.coord, "active with remote", func(s Snapshot) bool {
		return s.Phase == PhaseActive && s.RemoteJoined
	})
}

func TestTransportLossEndsSession(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustPhase(t, h.coord, PhaseActive)

	h.engine.Emit(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateDisconnected})
	snap := mustPhase(t, h.coord, PhaseEnded)
	if snap.EndReason != EndReasonTransportLost {
		t.Fatalf("expected transport_lost, got %s", snap.EndReason)
	}
}

func TestStaleEventsAfterEndAreIgnored(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.coord.Seed(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mustPhase(t, h.coord, PhaseActive)

	if _, err := h.coord.End(h.ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	h.clock.Add(DefaultEndGrace)
	mustPhase(t, h.coord, PhaseIdle)

	// Nothing is joined anymore, so emitting reaches no sink.
	if h.engine.Emit(callengine.Event{Kind: callengine.EventStateChanged, State: callengine.StateConnected}) {
		t.Fatalf("sink still attached after leave")
	}
	if snap := h.coord.Snapshot(); snap.Phase != PhaseIdle {
		t.Fatalf("stale event changed the session: %+v", snap)
	}
}

func TestSubscribeReceivesLatestAndShutdown(t *testing.T) {
	h := newHarness(t, nil)

	updates, cancel := h.coord.Subscribe()
	defer cancel()

	first := <-updates
	if first.Phase != PhaseIdle {
		t.Fatalf("expected idle first, got %s", first.Phase)
	}

	if err := h.coord.Invite(h.ctx, testDescriptor("c1")); err != nil {
		t.Fatalf("invite: %v", err)
	}
	h.cancel()

	var last Snapshot
	for snap := range updates {
		last = snap
	}
	if last.Phase != PhaseEnded || last.EndReason != EndReasonShutdown {
		t.Fatalf("expected shutdown end, got %+v", last)
	}
	if _, err := h.coord.Accept(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
