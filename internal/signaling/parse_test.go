package signaling

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/vovakirdan/repaircall/internal/proto"
	"github.com/vovakirdan/repaircall/internal/session"
)

func TestParseInvitationShapes(t *testing.T) {
	want := session.Descriptor{
		CallID:        "c-1",
		Channel:       "repair-77",
		AuthToken:     "tok",
		LocalIdentity: 1001,
		RemoteName:    "Sam",
		RemoteImage:   "https://cdn.example.test/sam.png",
	}

	cases := map[string]string{
		"flat data": `{"event":"NEW_INCOMING_CALL","data":{"callId":"c-1","channel":"repair-77","token":"tok","uid":1001,"name":"Sam","image":"https://cdn.example.test/sam.png"}}`,
		"nested call": `{"event":"NEW_INCOMING_CALL","data":{"call":{"callId":"c-1","channel":"repair-77","token":"tok","uid":"1001","name":"Sam","image":"https://cdn.example.test/sam.png"}}}`,
		"conversation wrapper": `{"event":"Conversation","data":{"conversation":{"_id":"c-1","channelName":"repair-77","authToken":"tok","uid":1001,"callerName":"Sam","avatar":"https://cdn.example.test/sam.png"}}}`,
		"payload split across layers": `{"type":"NEW_INCOMING_CALL","data":{"token":"tok","uid":1001,"payload":{"call_id":"c-1","channel":"repair-77","name":"Sam","image":"https://cdn.example.test/sam.png"}}}`,
		"fields beside envelope": `{"event":"NEW_INCOMING_CALL","callId":"c-1","channel":"repair-77","token":"tok","uid":1001,"name":"Sam","image":"https://cdn.example.test/sam.png"}`,
	}

	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			ev, err := Parse([]byte(frame))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if ev.Kind != KindInvite {
				t.Fatalf("expected invite, got %s", ev.Kind)
			}
			if ev.Invite != want {
				t.Fatalf("descriptor mismatch:\n got %+v\nwant %+v", ev.Invite, want)
			}
		})
	}
}

func TestParseInvitationFromCallPayload(t *testing.T) {
	data, err := json.Marshal(proto.CallPayload{
		CallID:  "c-2",
		Channel: "repair-78",
		Token:   "tok",
		UID:     json.RawMessage(`7`),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame, err := json.Marshal(proto.Envelope{Event: proto.EventNewIncomingCall, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	ev, err := Parse(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Invite.LocalIdentity != 7 || ev.Invite.RemoteName != "" {
		t.Fatalf("unexpected descriptor: %+v", ev.Invite)
	}
}

func TestParseUIDAcceptsIntegralFloats(t *testing.T) {
	for _, raw := range []string{`42`, `42.0`, `4.2e1`, `"42.0"`, `" 42 "`} {
		uid, err := parseUID(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("parseUID(%s): %v", raw, err)
		}
		if uid != 42 {
			t.Fatalf("parseUID(%s) = %d, want 42", raw, uid)
		}
	}
	for _, raw := range []string{`4.5`, `-1`, `-2.0`, `1e300`, `true`} {
		if uid, err := parseUID(json.RawMessage(raw)); err == nil {
			t.Fatalf("parseUID(%s) = %d, want error", raw, uid)
		}
	}
}

func TestParseMalformedInvitation(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		missing []string
		invalid []string
	}{
		{
			name:    "missing token and uid",
			frame:   `{"event":"NEW_INCOMING_CALL","data":{"callId":"c-1","channel":"repair-77"}}`,
			missing: []string{"token", "uid"},
		},
		{
			name:    "non numeric uid",
			frame:   `{"event":"NEW_INCOMING_CALL","data":{"callId":"c-1","channel":"repair-77","token":"tok","uid":"tech-9"}}`,
			invalid: []string{"uid"},
		},
		{
			name:    "empty payload",
			frame:   `{"event":"Conversation","data":{}}`,
			missing: []string{"callId", "channel", "token", "uid"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.frame))
			var bad *MalformedError
			if !errors.As(err, &bad) {
				t.Fatalf("expected MalformedError, got %v", err)
			}
			if !reflect.DeepEqual(bad.Missing, tc.missing) || !reflect.DeepEqual(bad.Invalid, tc.invalid) {
				t.Fatalf("unexpected fields: missing=%v invalid=%v", bad.Missing, bad.Invalid)
			}
		})
	}
}

func TestParseTermination(t *testing.T) {
	ev, err := Parse([]byte(`{"event":"CALL_ENDED","data":{"call":{"callId":"c-1"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Kind != KindTerminate || ev.CallID != "c-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	ev, err = Parse([]byte(`{"event":"CALL_ENDED"}`))
	if err != nil {
		t.Fatalf("parse bare: %v", err)
	}
	if ev.Kind != KindTerminate || ev.CallID != "" {
		t.Fatalf("unexpected bare termination: %+v", ev)
	}
}

func TestParseIgnoresUnknownEvents(t *testing.T) {
	ev, err := Parse([]byte(`{"event":"NEW_MESSAGE","data":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Kind != KindIgnored || ev.Name != "NEW_MESSAGE" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseInvalidFrame(t *testing.T) {
	if _, err := Parse([]byte(`[1,2]`)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
	if _, err := Parse([]byte(`{"event":"NEW_INCOMING_CALL","data":"oops"}`)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame for string payload, got %v", err)
	}
}
