package core

import (
	"time"

	"github.com/mkohler/loop/internal/domain"
)

// RoomState is the lifecycle phase of a room session. It drives all
// observer rendering; observers never see anything mid-transition.
type RoomState string

const (
	// StateInit is the pre-setup state at coordinator construction.
	StateInit RoomState = "init"
	// StateGather means room metadata is being fetched.
	StateGather RoomState = "gather"
	// StateReady means the room is known but not joined. It is both the
	// initial post-fetch state and the rest state after a deliberate
	// leave; only presence of credentials tells the two apart.
	StateReady RoomState = "ready"
	// StateJoined means membership is held server-side.
	StateJoined RoomState = "joined"
	// StateSessionConnected means the media session is up with no
	// remote peer present.
	StateSessionConnected RoomState = "session-connected"
	// StateHasParticipants means a remote peer is in the session.
	StateHasParticipants RoomState = "has-participants"
	// StateFailed is terminal for the session attempt; recovery is an
	// explicit re-join driven by the observer.
	StateFailed RoomState = "failed"
)

// State is the room session record. The coordinator owns the only
// mutable copy; observers receive value snapshots.
type State struct {
	RoomState RoomState

	RoomToken domain.RoomToken
	RoomName  string
	RoomOwner string
	RoomURL   string

	// Join credentials, meaningful only once RoomState has reached
	// StateJoined.
	APIKey       string
	SessionToken domain.SessionToken
	SessionID    string
	ExpiresIn    time.Duration

	AudioMuted bool
	VideoMuted bool

	// Err is set only in StateFailed.
	Err error
}

// Joined reports whether the state holds server-side membership that a
// teardown must release.
func (s State) Joined() bool {
	switch s.RoomState {
	case StateJoined, StateSessionConnected, StateHasParticipants:
		return true
	}
	return false
}
