package media

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/dispatch"
)

// Signaling envelope types shared with the server hub.
const (
	envPeerJoined  = "peer-joined"
	envPeerPresent = "peer-present"
	envPeerLeft    = "peer-left"
	envOffer       = "offer"
	envAnswer      = "answer"
	envICE         = "ice"
)

type envelope struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// session is one media session attempt: a signaling socket plus a peer
// connection. It lives from ConnectSession until close.
type session struct {
	driver *Driver
	creds  core.SessionCredentials

	mu   sync.Mutex
	conn *websocket.Conn
	pc   *webrtc.PeerConnection
	send chan []byte
	// sendClosed guards s.send: once shutdown closes the channel,
	// writers must stop queueing.
	sendClosed bool

	// closed marks a deliberate teardown; pump errors after that are
	// expected and not reported as failures.
	closed atomic.Bool

	stats statsMap
}

func newSession(driver *Driver, creds core.SessionCredentials) *session {
	return &session{
		driver: driver,
		creds:  creds,
		send:   make(chan []byte, 32),
	}
}

func (s *session) run() {
	wsURL, err := s.driver.signalURL(s.creds)
	if err != nil {
		s.fail(err.Error())
		return
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		s.fail("signaling dial: " + err.Error())
		return
	}

	pc, err := webrtc.NewPeerConnection(s.driver.rtcConfig)
	if err != nil {
		_ = conn.Close()
		s.fail("peer connection: " + err.Error())
		return
	}
	// A data channel keeps ICE negotiation going even with no local
	// capture tracks.
	if _, err := pc.CreateDataChannel("loop", nil); err != nil {
		log.Warn().Str("module", "media.session").Err(err).Msg("data channel create failed")
	}

	s.mu.Lock()
	s.conn = conn
	s.pc = pc
	s.mu.Unlock()
	if s.closed.Load() {
		// DisconnectSession raced the dial.
		s.close()
		return
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().
			Str("module", "media.session").
			Str("peer_connection_state", state.String()).
			Msg("peer state")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.fail("peer connection " + state.String())
		}
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		raw, err := json.Marshal(init)
		if err != nil {
			return
		}
		s.sendEnvelope(envelope{Type: envICE, Payload: raw})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "media.session").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		go s.stats.readLoop(track)
	})

	go s.writePump(conn)
	s.driver.dispatcher.Dispatch(dispatch.ConnectedToSDKServers{})
	s.readPump(conn)
}

func (s *session) readPump(conn *websocket.Conn) {
	defer func() {
		if !s.closed.Load() {
			s.fail("signaling connection lost")
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Str("module", "media.session").Err(err).Msg("bad signaling frame")
			continue
		}
		s.handleEnvelope(env)
	}
}

func (s *session) writePump(conn *websocket.Conn) {
	for data := range s.send {
		if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// handleEnvelope drives presence and the offer/answer exchange. The
// newcomer sees existing peers as peer-present and initiates the offer;
// the peer already in the room sees peer-joined and answers.
func (s *session) handleEnvelope(env envelope) {
	switch env.Type {
	case envPeerPresent:
		s.driver.dispatcher.Dispatch(dispatch.RemotePeerConnected{})
		s.sendOffer()
	case envPeerJoined:
		s.driver.dispatcher.Dispatch(dispatch.RemotePeerConnected{})
	case envPeerLeft:
		s.driver.dispatcher.Dispatch(dispatch.RemotePeerDisconnected{})
	case envOffer:
		s.acceptOffer(env.Payload)
	case envAnswer:
		s.acceptAnswer(env.Payload)
	case envICE:
		s.addICECandidate(env.Payload)
	default:
		log.Debug().Str("module", "media.session").Str("type", env.Type).Msg("ignoring signaling frame")
	}
}

func (s *session) sendOffer() {
	pc := s.peerConnection()
	if pc == nil {
		return
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.fail("create offer: " + err.Error())
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		s.fail("set local description: " + err.Error())
		return
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return
	}
	s.sendEnvelope(envelope{Type: envOffer, Payload: raw})
}

func (s *session) acceptOffer(payload json.RawMessage) {
	pc := s.peerConnection()
	if pc == nil {
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		log.Warn().Str("module", "media.session").Err(err).Msg("bad offer payload")
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		s.fail("set remote description: " + err.Error())
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.fail("create answer: " + err.Error())
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.fail("set local description: " + err.Error())
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return
	}
	s.sendEnvelope(envelope{Type: envAnswer, Payload: raw})
}

func (s *session) acceptAnswer(payload json.RawMessage) {
	pc := s.peerConnection()
	if pc == nil {
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		log.Warn().Str("module", "media.session").Err(err).Msg("bad answer payload")
		return
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		s.fail("set remote description: " + err.Error())
	}
}

func (s *session) addICECandidate(payload json.RawMessage) {
	pc := s.peerConnection()
	if pc == nil {
		return
	}
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &cand); err != nil {
		log.Warn().Str("module", "media.session").Err(err).Msg("bad ice payload")
		return
	}
	if err := pc.AddICECandidate(cand); err != nil {
		log.Warn().Str("module", "media.session").Err(err).Msg("add ice candidate failed")
	}
}

func (s *session) applyMute(kind core.MuteKind, muted bool) {
	pc := s.peerConnection()
	if pc == nil {
		return
	}
	for _, sender := range pc.GetSenders() {
		track := sender.Track()
		if track == nil || track.Kind().String() != string(kind) {
			continue
		}
		if muted {
			if err := sender.ReplaceTrack(nil); err != nil {
				log.Warn().Str("module", "media.session").Err(err).Msg("mute failed")
			}
		}
		// Unmute restores on the next renegotiation; senders keep
		// their slot meanwhile.
	}
}

func (s *session) peerConnection() *webrtc.PeerConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc
}

func (s *session) sendEnvelope(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return
	}
	select {
	case s.send <- data:
	default:
		log.Warn().Str("module", "media.session").Msg("signaling send backpressure, dropping frame")
	}
}

// fail reports a transport loss exactly once and tears the session
// down.
func (s *session) fail(reason string) {
	if s.closed.Swap(true) {
		return
	}
	s.shutdown()
	s.driver.dropSession(s)
	s.driver.dispatcher.Dispatch(dispatch.ConnectionFailure{Reason: reason})
}

// close is the deliberate teardown path; it reports nothing.
func (s *session) close() {
	s.closed.Store(true)
	s.shutdown()
}

func (s *session) shutdown() {
	s.mu.Lock()
	conn, pc := s.conn, s.pc
	s.conn, s.pc = nil, nil
	// Release the write pump; it drains the channel and exits.
	if !s.sendClosed {
		s.sendClosed = true
		close(s.send)
	}
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
}
