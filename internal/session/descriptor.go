package session

import (
	"context"
	"fmt"
	"strings"
)

// Descriptor seeds a session. The signaling adapter builds one for inbound
// invitations, the call-creation API builds one for outbound calls.
type Descriptor struct {
	CallID        string
	Channel       string
	AuthToken     string
	LocalIdentity int64
	RemoteName    string
	RemoteImage   string
}

// Validate checks that every required field is present.
func (d Descriptor) Validate() error {
	var missing []string
	if d.CallID == "" {
		missing = append(missing, "callId")
	}
	if d.Channel == "" {
		missing = append(missing, "channel")
	}
	if d.AuthToken == "" {
		missing = append(missing, "token")
	}
	if d.LocalIdentity < 0 {
		missing = append(missing, "uid")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidDescriptor, strings.Join(missing, ", "))
	}
	return nil
}

// CallCreator asks the backend to create an outbound call and returns the
// caller-side seed.
type CallCreator interface {
	CreateCall(ctx context.Context, target string) (Descriptor, error)
}
