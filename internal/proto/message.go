package proto

import "encoding/json"

// Envelope is a frame received on the backend signaling channel. Older
// backends name the event in "type" instead of "event".
type Envelope struct {
	Event string          `json:"event,omitempty"`
	Type  string          `json:"type,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	EventNewIncomingCall = "NEW_INCOMING_CALL"
	EventConversation    = "Conversation"
	EventCallEnded       = "CALL_ENDED"
)

// Name returns the event name of the frame.
func (e Envelope) Name() string {
	if e.Event != "" {
		return e.Event
	}
	return e.Type
}

// CallPayload lists the field names of an invitation as the backend sends
// them. Parsers also accept the aliases used by older payloads.
type CallPayload struct {
	CallID  string          `json:"callId"`
	Channel string          `json:"channel"`
	Token   string          `json:"token"`
	UID     json.RawMessage `json:"uid"`
	Name    string          `json:"name,omitempty"`
	Image   string          `json:"image,omitempty"`
}
