// Package signaling reads call invitations and terminations from the
// backend event channel and hands them to the call session.
package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vovakirdan/repaircall/internal/proto"
	"github.com/vovakirdan/repaircall/internal/session"
)

// Kind is the category of a parsed signaling event.
type Kind int

const (
	// KindIgnored is any event this client does not act on.
	KindIgnored Kind = iota
	// KindInvite is an inbound call invitation.
	KindInvite
	// KindTerminate ends the current call.
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindInvite:
		return "invite"
	case KindTerminate:
		return "terminate"
	default:
		return "ignored"
	}
}

// Event is a normalized signaling event.
type Event struct {
	Kind   Kind
	Name   string
	Invite session.Descriptor
	CallID string
}

// ErrInvalidFrame is returned for frames that are not JSON objects.
var ErrInvalidFrame = errors.New("invalid signaling frame")

// MalformedError reports an invitation that lacks required fields.
type MalformedError struct {
	Event   string
	Missing []string
	Invalid []string
}

func (e *MalformedError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("malformed %s payload: %s", e.Event, strings.Join(parts, "; "))
}

// Payloads arrive flat or nested under one of these keys depending on the
// event that carried them.
var wrapperKeys = []string{"data", "call", "payload", "conversation", "callData"}

var (
	callIDKeys  = []string{"callId", "call_id", "_id", "id"}
	channelKeys = []string{"channel", "channelName"}
	tokenKeys   = []string{"token", "authToken"}
	uidKeys     = []string{"uid", "localIdentity"}
	nameKeys    = []string{"name", "callerName"}
	imageKeys   = []string{"image", "callerImage", "avatar"}
)

// Parse decodes one signaling frame.
func Parse(frame []byte) (Event, error) {
	var env proto.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}

	name := env.Name()
	ev := Event{Name: name}

	switch name {
	case proto.EventNewIncomingCall, proto.EventConversation:
		ev.Kind = KindInvite
	case proto.EventCallEnded:
		ev.Kind = KindTerminate
	default:
		return ev, nil
	}

	root := env.Data
	if len(bytes.TrimSpace(root)) == 0 || bytes.Equal(bytes.TrimSpace(root), []byte("null")) {
		root = frame
	}
	fields, err := unwrap(root)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %w", ErrInvalidFrame, name, err)
	}

	if ev.Kind == KindTerminate {
		ev.CallID = fields.str(callIDKeys)
		return ev, nil
	}

	desc, err := descriptorFrom(name, fields)
	if err != nil {
		return Event{}, err
	}
	ev.Invite = desc
	ev.CallID = desc.CallID
	return ev, nil
}

func descriptorFrom(name string, fields layers) (session.Descriptor, error) {
	bad := &MalformedError{Event: name}

	desc := session.Descriptor{
		CallID:      fields.str(callIDKeys),
		Channel:     fields.str(channelKeys),
		AuthToken:   fields.str(tokenKeys),
		RemoteName:  fields.str(nameKeys),
		RemoteImage: fields.str(imageKeys),
	}
	if desc.CallID == "" {
		bad.Missing = append(bad.Missing, "callId")
	}
	if desc.Channel == "" {
		bad.Missing = append(bad.Missing, "channel")
	}
	if desc.AuthToken == "" {
		bad.Missing = append(bad.Missing, "token")
	}

	raw, ok := fields.raw(uidKeys)
	switch {
	case !ok:
		bad.Missing = append(bad.Missing, "uid")
	default:
		uid, err := parseUID(raw)
		if err != nil {
			bad.Invalid = append(bad.Invalid, "uid")
		}
		desc.LocalIdentity = uid
	}

	if len(bad.Missing) > 0 || len(bad.Invalid) > 0 {
		return session.Descriptor{}, bad
	}
	return desc, nil
}

// parseUID accepts a JSON number or a string holding a number.
func parseUID(raw json.RawMessage) (int64, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("uid is %T", v)
	}
	uid, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		// Some backends serialize ids as floats, e.g. 42.0 or 4.2e1.
		f, ferr := strconv.ParseFloat(n.String(), 64)
		if ferr != nil || math.Trunc(f) != f || f >= 1<<63 || f < -(1<<63) {
			return 0, err
		}
		uid = int64(f)
	}
	if uid < 0 {
		return 0, fmt.Errorf("negative uid %d", uid)
	}
	return uid, nil
}

// layers holds the payload objects from innermost to outermost. Lookups try
// the innermost object first.
type layers []map[string]json.RawMessage

func unwrap(root json.RawMessage) (layers, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(root, &obj); err != nil {
		return nil, err
	}
	out := layers{obj}
	for depth := 0; depth < len(wrapperKeys); depth++ {
		inner, ok := nestedObject(obj)
		if !ok {
			break
		}
		out = append(layers{inner}, out...)
		obj = inner
	}
	return out, nil
}

func nestedObject(obj map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	for _, key := range wrapperKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err == nil && inner != nil {
			return inner, true
		}
	}
	return nil, false
}

func (l layers) raw(keys []string) (json.RawMessage, bool) {
	for _, obj := range l {
		for _, key := range keys {
			raw, ok := obj[key]
			if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				continue
			}
			return raw, true
		}
	}
	return nil, false
}

func (l layers) str(keys []string) string {
	for _, obj := range l {
		for _, key := range keys {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			var n json.Number
			if err := json.Unmarshal(raw, &n); err == nil && n != "" {
				return n.String()
			}
		}
	}
	return ""
}
