package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/dispatch"
)

var ErrNoRoomToken = errors.New("no room token known")

// setupWindowData starts a room session from just a token: fetch the
// room metadata, then auto-join. Failures on the fetch surface as a
// RoomFailure like any other membership error.
func (c *Coordinator) setupWindowData(a dispatch.SetupWindowData) {
	s := c.Snapshot()
	s.RoomState = core.StateGather
	s.RoomToken = a.Token
	c.replaceState(s)

	epoch := c.epoch
	go func() {
		info, err := c.client.GetRoom(c.ctx, a.Token)
		if err != nil {
			c.dispatcher.Dispatch(dispatch.RoomFailure{Err: err, Epoch: epoch})
			return
		}
		c.dispatcher.Dispatch(dispatch.UpdateRoomInfo{
			Token:    info.Token,
			RoomName: info.Name,
			Owner:    info.Owner,
			URL:      info.URL,
			Epoch:    epoch,
		})
		c.dispatcher.Dispatch(dispatch.JoinRoom{DisplayName: c.displayName, Epoch: epoch})
	}()
}

// fetchServerData readies the session without a metadata fetch, for
// contexts where the room info arrives by other means.
func (c *Coordinator) fetchServerData(a dispatch.FetchServerData) {
	s := c.Snapshot()
	s.RoomState = core.StateReady
	s.RoomToken = a.Token
	c.replaceState(s)
}

func (c *Coordinator) updateRoomInfo(a dispatch.UpdateRoomInfo) {
	if c.stale(a.Epoch) {
		return
	}
	s := c.Snapshot()
	s.RoomState = core.StateReady
	if a.Token != "" {
		s.RoomToken = a.Token
	}
	s.RoomName = a.RoomName
	s.RoomOwner = a.Owner
	s.RoomURL = a.URL
	c.replaceState(s)
}

// joinRoom requests membership. A join carried over from a torn-down
// fetch is dropped; starting a fresh attempt bumps the epoch so a
// result from any previous attempt lands stale.
func (c *Coordinator) joinRoom(a dispatch.JoinRoom) {
	if c.stale(a.Epoch) {
		return
	}
	s := c.Snapshot()
	if s.RoomToken == "" {
		c.dispatcher.Dispatch(dispatch.RoomFailure{Err: ErrNoRoomToken})
		return
	}
	displayName := a.DisplayName
	if displayName == "" {
		displayName = c.displayName
	}

	c.epoch++
	epoch := c.epoch
	token := s.RoomToken
	go func() {
		resp, err := c.client.Join(c.ctx, token, displayName)
		if err != nil {
			c.dispatcher.Dispatch(dispatch.RoomFailure{Err: err, Epoch: epoch})
			return
		}
		c.dispatcher.Dispatch(dispatch.JoinedRoom{Resp: resp, Epoch: epoch})
	}()
}

// joinedRoom stores the granted credentials, arms the refresh timer and
// hands the session to the media driver.
func (c *Coordinator) joinedRoom(a dispatch.JoinedRoom) {
	if c.stale(a.Epoch) {
		return
	}
	s := c.Snapshot()
	s.RoomState = core.StateJoined
	s.APIKey = a.Resp.APIKey
	s.SessionToken = a.Resp.SessionToken
	s.SessionID = a.Resp.SessionID
	s.ExpiresIn = a.Resp.ExpiresIn
	s.Err = nil
	c.replaceState(s)

	epoch := a.Epoch
	if epoch == 0 {
		epoch = c.epoch
	}
	c.scheduleRefresh(a.Resp.ExpiresIn, epoch)
	c.driver.ConnectSession(core.SessionCredentials{
		RoomToken:    s.RoomToken,
		APIKey:       s.APIKey,
		SessionToken: s.SessionToken,
		SessionID:    s.SessionID,
	})
}

func (c *Coordinator) membershipRefreshed(a dispatch.MembershipRefreshed) {
	if c.stale(a.Epoch) {
		return
	}
	s := c.Snapshot()
	s.ExpiresIn = a.ExpiresIn
	c.replaceState(s)

	epoch := a.Epoch
	if epoch == 0 {
		epoch = c.epoch
	}
	c.scheduleRefresh(a.ExpiresIn, epoch)
}

// roomFailure is terminal for the session attempt. Membership is
// assumed lost, so the refresh timer is cancelled. The media session is
// left alone; only ConnectionFailure and LeaveRoom disconnect it.
func (c *Coordinator) roomFailure(a dispatch.RoomFailure) {
	if c.stale(a.Epoch) {
		return
	}
	log.Error().
		Str("module", "app.coordinator").
		Err(a.Err).
		Msg("room failure")
	c.cancelRefresh()
	s := c.Snapshot()
	s.RoomState = core.StateFailed
	s.Err = a.Err
	c.replaceState(s)
}

func (c *Coordinator) leaveRoom(dispatch.LeaveRoom) {
	c.teardown(core.State{RoomState: core.StateReady})
}

func (c *Coordinator) windowUnload(dispatch.WindowUnload) {
	c.teardown(core.State{RoomState: core.StateReady})
}
