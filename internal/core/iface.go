// Package core defines the room session state record and the
// collaborator contracts the coordinator depends on. Adapters implement
// these; core never touches transport resources itself.
package core

import (
	"context"
	"time"

	"github.com/mkohler/loop/internal/domain"
)

// RoomInfo is the metadata a membership fetch returns.
type RoomInfo struct {
	Token domain.RoomToken
	Name  string
	Owner string
	URL   string
}

// JoinResponse carries the credentials a successful join grants.
type JoinResponse struct {
	APIKey       string
	SessionToken domain.SessionToken
	SessionID    string
	// ExpiresIn is how long the membership lasts without a refresh.
	ExpiresIn time.Duration
}

// SessionCredentials is what the media driver needs to connect.
type SessionCredentials struct {
	RoomToken    domain.RoomToken
	APIKey       string
	SessionToken domain.SessionToken
	SessionID    string
}

// MembershipClient is the room membership API boundary. All calls block
// until the server responds; the coordinator runs them on their own
// goroutine and feeds results back through the dispatcher.
type MembershipClient interface {
	GetRoom(ctx context.Context, token domain.RoomToken) (RoomInfo, error)
	Join(ctx context.Context, token domain.RoomToken, displayName string) (JoinResponse, error)
	Refresh(ctx context.Context, token domain.RoomToken, session domain.SessionToken) (time.Duration, error)
	Leave(ctx context.Context, token domain.RoomToken, session domain.SessionToken) error
}

// MuteKind selects which local media stream a mute applies to.
type MuteKind string

const (
	MuteAudio MuteKind = "audio"
	MuteVideo MuteKind = "video"
)

// MediaDriver is the real-time session boundary. Connect and disconnect
// return immediately; the driver reports progress out-of-band by
// dispatching session intents (connected, failure, peer presence).
type MediaDriver interface {
	ConnectSession(creds SessionCredentials)
	DisconnectSession()
	SetMute(kind MuteKind, muted bool)
}
