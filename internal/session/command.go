package session

import "github.com/vovakirdan/repaircall/internal/callengine"

// commandKind describes what the coordinator loop is asked to do.
type commandKind int

const (
	// cmdSeed starts an outbound session from a call-creation response.
	cmdSeed commandKind = iota
	// cmdInvite starts an inbound session from a signaling invitation.
	cmdInvite
	// cmdAccept answers the inbound session.
	cmdAccept
	// cmdEnd hangs up locally.
	cmdEnd
	// cmdTerminate applies a signaling termination.
	cmdTerminate
	// cmdToggleMute flips the local microphone.
	cmdToggleMute
	// cmdHold puts an active session on hold.
	cmdHold
	// cmdResume takes a held session back to active.
	cmdResume
	// cmdJoinResult delivers the outcome of an engine join.
	cmdJoinResult
	// cmdEngineEvent delivers a connectivity or participant event.
	cmdEngineEvent
	// cmdReset returns an ended session to idle after the grace delay.
	cmdReset
)

// command is a unit of work applied by the coordinator loop in receipt order.
type command struct {
	kind   commandKind
	desc   Descriptor
	reason EndReason
	callID string
	gen    uint64
	event  callengine.Event
	err    error
	reply  chan reply
}

type reply struct {
	snap Snapshot
	err  error
}
