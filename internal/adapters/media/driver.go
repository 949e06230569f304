// Package media implements the media session driver over a signaling
// WebSocket and a WebRTC peer connection. The driver never mutates
// session state itself; transport events are reported by dispatching
// session intents back into the coordinator's queue.
package media

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/dispatch"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

type Driver struct {
	dispatcher *dispatch.Dispatcher
	serverURL  string
	rtcConfig  webrtc.Configuration

	mu         sync.Mutex
	sess       *session
	audioMuted bool
	videoMuted bool
}

func NewDriver(d *dispatch.Dispatcher, serverURL string, rtcConfig webrtc.Configuration) *Driver {
	return &Driver{
		dispatcher: d,
		serverURL:  strings.TrimRight(serverURL, "/"),
		rtcConfig:  rtcConfig,
	}
}

// ConnectSession dials the room's signaling channel and brings up the
// peer connection. Returns immediately; progress and failure arrive as
// dispatched intents.
func (dr *Driver) ConnectSession(creds core.SessionCredentials) {
	dr.mu.Lock()
	if dr.sess != nil {
		dr.sess.close()
	}
	sess := newSession(dr, creds)
	dr.sess = sess
	dr.mu.Unlock()

	go sess.run()
}

// DisconnectSession tears the current session down. Safe to call with
// no session up, and safe to repeat.
func (dr *Driver) DisconnectSession() {
	dr.mu.Lock()
	sess := dr.sess
	dr.sess = nil
	dr.mu.Unlock()
	if sess != nil {
		sess.close()
	}
}

// SetMute records the local mute state and applies it to the active
// session's outbound tracks, if any.
func (dr *Driver) SetMute(kind core.MuteKind, muted bool) {
	dr.mu.Lock()
	switch kind {
	case core.MuteVideo:
		dr.videoMuted = muted
	default:
		dr.audioMuted = muted
	}
	sess := dr.sess
	dr.mu.Unlock()

	log.Debug().
		Str("module", "media.driver").
		Str("kind", string(kind)).
		Bool("muted", muted).
		Msg("mute updated")
	if sess != nil {
		sess.applyMute(kind, muted)
	}
}

// signalURL derives the ws endpoint for a room from the server base
// URL.
func (dr *Driver) signalURL(creds core.SessionCredentials) (string, error) {
	u, err := url.Parse(dr.serverURL)
	if err != nil {
		return "", fmt.Errorf("bad server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("bad server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + string(creds.RoomToken) + "/ws"
	q := u.Query()
	q.Set("sessionToken", string(creds.SessionToken))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dropSession clears the active session if it is still sess. A late
// close from a replaced session must not clobber its successor.
func (dr *Driver) dropSession(sess *session) {
	dr.mu.Lock()
	if dr.sess == sess {
		dr.sess = nil
	}
	dr.mu.Unlock()
}

func (dr *Driver) muteState() (audio, video bool) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return dr.audioMuted, dr.videoMuted
}
