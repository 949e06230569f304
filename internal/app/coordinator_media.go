package app

import (
	"fmt"

	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/dispatch"
)

func (c *Coordinator) connectedToSDKServers(dispatch.ConnectedToSDKServers) {
	s := c.Snapshot()
	s.RoomState = core.StateSessionConnected
	c.replaceState(s)
}

// connectionFailure collapses every media disconnect reason into a
// uniform failure: full teardown, then FAILED.
func (c *Coordinator) connectionFailure(a dispatch.ConnectionFailure) {
	c.teardown(core.State{
		RoomState: core.StateFailed,
		Err:       fmt.Errorf("media session failure: %s", a.Reason),
	})
}

// setMute flips the local mute flag regardless of room state.
// Enabled=false means muted.
func (c *Coordinator) setMute(a dispatch.SetMute) {
	muted := !a.Enabled
	s := c.Snapshot()
	switch a.Kind {
	case core.MuteVideo:
		s.VideoMuted = muted
	default:
		s.AudioMuted = muted
	}
	c.replaceState(s)
	c.driver.SetMute(a.Kind, muted)
}

func (c *Coordinator) remotePeerConnected(dispatch.RemotePeerConnected) {
	s := c.Snapshot()
	s.RoomState = core.StateHasParticipants
	c.replaceState(s)
}

// remotePeerDisconnected reverts to the connected-but-empty state:
// two-party model, losing the one remote peer never means JOINED.
func (c *Coordinator) remotePeerDisconnected(dispatch.RemotePeerDisconnected) {
	s := c.Snapshot()
	s.RoomState = core.StateSessionConnected
	c.replaceState(s)
}
