package session

import "time"

// Phase is the stage of the call session lifecycle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseIncoming     Phase = "incoming"
	PhaseOutgoing     Phase = "outgoing"
	PhaseConnecting   Phase = "connecting"
	PhaseActive       Phase = "active"
	PhaseOnHold       Phase = "on-hold"
	PhaseReconnecting Phase = "reconnecting"
	PhaseEnded        Phase = "ended"
)

// InProgress reports whether the phase belongs to a live session,
// i.e. anything but idle and ended.
func (p Phase) InProgress() bool {
	return p != PhaseIdle && p != PhaseEnded && p != ""
}

// Role tells whether the local participant placed or received the call.
type Role string

const (
	RoleNone   Role = ""
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// EndReason explains why a session reached the ended phase.
type EndReason string

const (
	EndReasonNone          EndReason = ""
	EndReasonLocalHangup   EndReason = "local_hangup"
	EndReasonRemoteHangup  EndReason = "remote_hangup"
	EndReasonJoinFailed    EndReason = "join_failed"
	EndReasonTransportLost EndReason = "transport_lost"
	EndReasonShutdown      EndReason = "shutdown"
)

// UnknownRemoteName is shown when the other party did not send a name.
const UnknownRemoteName = "Unknown"

// Snapshot is a read-only copy of the session state handed to consumers.
// It never carries the transport credential.
type Snapshot struct {
	Phase         Phase     `json:"phase"`
	Role          Role      `json:"role,omitempty"`
	Attempt       string    `json:"attempt,omitempty"`
	CallID        string    `json:"call_id,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	LocalIdentity int64     `json:"local_identity,omitempty"`
	RemoteName    string    `json:"remote_name"`
	RemoteImage   string    `json:"remote_image,omitempty"`
	Muted         bool      `json:"muted"`
	RemoteJoined  bool      `json:"remote_joined"`
	EndReason     EndReason `json:"end_reason,omitempty"`
	Failure       string    `json:"failure,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// BothJoined reports whether the local and remote parties are both in an
// active session.
func (s Snapshot) BothJoined() bool {
	return s.Phase == PhaseActive && s.RemoteJoined
}

func idleSnapshot() Snapshot {
	return Snapshot{
		Phase:      PhaseIdle,
		RemoteName: UnknownRemoteName,
	}
}
