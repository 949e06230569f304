package dispatch

import (
	"time"

	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/domain"
)

// Action is a named, data-carrying intent. Exactly one handler is
// registered per action name.
type Action interface {
	Name() string
}

// Actions produced asynchronously (membership responses, timer fires)
// carry the session epoch of the call that produced them so the
// coordinator can drop results from a torn-down session. Epoch zero
// marks a direct dispatch and is never stale.

// SetupWindowData starts a room window: fetch metadata, then join.
type SetupWindowData struct {
	Token domain.RoomToken
}

func (SetupWindowData) Name() string { return "setup-window-data" }

// FetchServerData records the token and readies the room without a
// metadata fetch, for contexts where metadata arrives by other means.
type FetchServerData struct {
	Token domain.RoomToken
}

func (FetchServerData) Name() string { return "fetch-server-data" }

// UpdateRoomInfo merges room metadata into the session record.
type UpdateRoomInfo struct {
	Token    domain.RoomToken
	RoomName string
	Owner    string
	URL      string
	Epoch    uint64
}

func (UpdateRoomInfo) Name() string { return "update-room-info" }

// JoinRoom requests server-side membership. A join dispatched from a
// fetch goroutine carries the epoch of the attempt that started it.
type JoinRoom struct {
	DisplayName string
	Epoch       uint64
}

func (JoinRoom) Name() string { return "join-room" }

// JoinedRoom delivers the credentials a successful join granted.
type JoinedRoom struct {
	Resp  core.JoinResponse
	Epoch uint64
}

func (JoinedRoom) Name() string { return "joined-room" }

// MembershipRefreshed delivers the new expiry after a successful
// membership refresh.
type MembershipRefreshed struct {
	ExpiresIn time.Duration
	Epoch     uint64
}

func (MembershipRefreshed) Name() string { return "membership-refreshed" }

// ConnectedToSDKServers reports the media session is established.
type ConnectedToSDKServers struct{}

func (ConnectedToSDKServers) Name() string { return "connected-to-sdk-servers" }

// ConnectionFailure reports a media session loss. Every reason is
// treated as a failure, including intentional remote disconnects.
type ConnectionFailure struct {
	Reason string
}

func (ConnectionFailure) Name() string { return "connection-failure" }

// SetMute toggles a local media stream. Enabled=false means muted, a
// contract kept from the original action shape.
type SetMute struct {
	Kind    core.MuteKind
	Enabled bool
}

func (SetMute) Name() string { return "set-mute" }

// RemotePeerConnected reports the remote peer entered the session.
type RemotePeerConnected struct{}

func (RemotePeerConnected) Name() string { return "remote-peer-connected" }

// RemotePeerDisconnected reports the remote peer left the session.
type RemotePeerDisconnected struct{}

func (RemotePeerDisconnected) Name() string { return "remote-peer-disconnected" }

// RoomFailure records a membership failure. It does not tear down the
// media session; only ConnectionFailure and LeaveRoom do that.
type RoomFailure struct {
	Err   error
	Epoch uint64
}

func (RoomFailure) Name() string { return "room-failure" }

// LeaveRoom releases membership and disconnects the media session.
type LeaveRoom struct{}

func (LeaveRoom) Name() string { return "leave-room" }

// WindowUnload is the teardown path for a closing UI surface. Same
// effect as LeaveRoom.
type WindowUnload struct{}

func (WindowUnload) Name() string { return "window-unload" }
