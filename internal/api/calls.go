package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/vovakirdan/repaircall/internal/session"
)

// ErrIncompleteCall is returned when the call-creation response lacks a
// field the caller needs to join.
var ErrIncompleteCall = errors.New("incomplete call in response")

type createCallRequest struct {
	To string `json:"to"`
}

type callHeading struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type callObject struct {
	ID            string      `json:"_id"`
	CallID        string      `json:"callId"`
	Channel       string      `json:"channel"`
	FromUserToken string      `json:"fromUserToken"`
	FromUserUID   flexInt     `json:"fromUserUid"`
	Heading       callHeading `json:"heading"`
}

type createCallResponse struct {
	Call *callObject `json:"call"`
	Data *struct {
		Call *callObject `json:"call"`
	} `json:"data"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	Value int64
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("uid %s is not numeric", b)
	}
	f.Value, f.Set = v, true
	return nil
}

// CreateCall asks the backend to ring target and returns the caller-side
// session seed.
func (c *Client) CreateCall(ctx context.Context, target string) (session.Descriptor, error) {
	var resp createCallResponse
	if err := c.do(ctx, http.MethodPost, "/api/calls", nil, createCallRequest{To: target}, &resp); err != nil {
		return session.Descriptor{}, err
	}

	call := resp.Call
	if call == nil && resp.Data != nil {
		call = resp.Data.Call
	}
	if call == nil {
		return session.Descriptor{}, fmt.Errorf("%w: no call object", ErrIncompleteCall)
	}

	id := call.ID
	if id == "" {
		id = call.CallID
	}
	var missing []string
	if id == "" {
		missing = append(missing, "_id")
	}
	if call.Channel == "" {
		missing = append(missing, "channel")
	}
	if call.FromUserToken == "" {
		missing = append(missing, "fromUserToken")
	}
	if !call.FromUserUID.Set {
		missing = append(missing, "fromUserUid")
	}
	if len(missing) > 0 {
		return session.Descriptor{}, fmt.Errorf("%w: missing %s", ErrIncompleteCall, strings.Join(missing, ", "))
	}

	return session.Descriptor{
		CallID:        id,
		Channel:       call.Channel,
		AuthToken:     call.FromUserToken,
		LocalIdentity: call.FromUserUID.Value,
		RemoteName:    call.Heading.Name,
		RemoteImage:   call.Heading.Image,
	}, nil
}

var _ session.CallCreator = (*Client)(nil)
