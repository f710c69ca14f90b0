package livekit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/livekit/protocol/auth"

	"github.com/vovakirdan/repaircall/internal/callengine"
)

// TokenInfo is what the client can read from a room token without the
// server secret.
type TokenInfo struct {
	Identity  string
	Room      string
	ExpiresAt time.Time
}

type roomClaims struct {
	jwt.RegisteredClaims
	Video *auth.VideoGrant `json:"video,omitempty"`
}

// InspectToken decodes a room token without verifying its signature and
// rejects tokens that expired before now. The media server does the real
// verification.
func InspectToken(token string, now time.Time) (TokenInfo, error) {
	claims := &roomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("%w: malformed room token: %w", callengine.ErrJoinRejected, err)
	}

	info := TokenInfo{Identity: claims.Subject}
	if claims.Video != nil {
		info.Room = claims.Video.Room
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(info.ExpiresAt) {
			return info, callengine.ErrTokenExpired
		}
	}
	return info, nil
}
