package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Envelope is the signaling wire frame. SDP and ICE payloads pass
// through opaque; the hub only interprets presence.
type Envelope struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// EnvelopePeerJoined is broadcast to the room when a peer connects.
	EnvelopePeerJoined = "peer-joined"
	// EnvelopePeerPresent is sent to a newcomer for each peer already
	// connected; the newcomer initiates the offer exchange.
	EnvelopePeerPresent = "peer-present"
	EnvelopePeerLeft    = "peer-left"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type peerConn struct {
	session domain.SessionToken
	conn    *websocket.Conn
	send    chan []byte

	mu     sync.Mutex
	closed bool
}

func (p *peerConn) trySend(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("connection closed")
	}
	select {
	case p.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (p *peerConn) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.send)
	_ = p.conn.Close()
	p.mu.Unlock()
}

// Hub relays signaling frames between the peers of each room and
// broadcasts presence. Membership is gated on the session token the
// store granted at join.
type Hub struct {
	store      *Store
	pingPeriod time.Duration
	readLimit  int64

	mu    sync.RWMutex
	rooms map[domain.RoomToken]map[domain.SessionToken]*peerConn
}

func NewHub(store *Store, pingPeriod time.Duration, readLimit int64) *Hub {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	if readLimit <= 0 {
		readLimit = 32768
	}
	return &Hub{
		store:      store,
		pingPeriod: pingPeriod,
		readLimit:  readLimit,
		rooms:      make(map[domain.RoomToken]map[domain.SessionToken]*peerConn),
	}
}

// HandleSignal upgrades the connection and joins the room's signaling
// mesh. The newcomer receives a peer-present frame for each peer
// already connected and initiates the offer exchange; everyone else
// learns about the newcomer through a peer-joined broadcast.
func (h *Hub) HandleSignal(c *gin.Context) {
	token := domain.RoomToken(c.Param("token"))
	session := domain.SessionToken(c.Query("sessionToken"))
	if !h.store.ValidSession(token, session) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "server.hub").Err(err).Msg("ws upgrade failed")
		return
	}
	peer := &peerConn{
		session: session,
		conn:    ws,
		send:    make(chan []byte, 32),
	}

	existing := h.addPeer(token, peer)
	for _, other := range existing {
		h.sendEnvelope(peer, Envelope{Type: EnvelopePeerPresent, From: string(other)})
	}
	h.broadcast(token, peer, Envelope{Type: EnvelopePeerJoined, From: string(session)})
	log.Info().Str("module", "server.hub").Str("room", string(token)).Msg("peer connected")

	go h.writePump(peer)
	go h.readPump(token, peer)
}

func (h *Hub) addPeer(token domain.RoomToken, peer *peerConn) []domain.SessionToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.rooms[token]
	if !ok {
		peers = make(map[domain.SessionToken]*peerConn)
		h.rooms[token] = peers
	}
	existing := make([]domain.SessionToken, 0, len(peers))
	for session := range peers {
		existing = append(existing, session)
	}
	peers[peer.session] = peer
	return existing
}

func (h *Hub) removePeer(token domain.RoomToken, peer *peerConn) {
	h.mu.Lock()
	if peers, ok := h.rooms[token]; ok {
		delete(peers, peer.session)
		if len(peers) == 0 {
			delete(h.rooms, token)
		}
	}
	h.mu.Unlock()
	peer.close()
}

// broadcast fans a frame out to every peer in the room except from.
func (h *Hub) broadcast(token domain.RoomToken, from *peerConn, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*peerConn, 0, len(h.rooms[token]))
	for _, p := range h.rooms[token] {
		if from == nil || p.session != from.session {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()
	for _, p := range targets {
		if err := p.trySend(data); err != nil {
			log.Warn().Str("module", "server.hub").Err(err).Msg("dropping signaling frame")
		}
	}
}

func (h *Hub) sendEnvelope(peer *peerConn, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := peer.trySend(data); err != nil {
		log.Warn().Str("module", "server.hub").Err(err).Msg("dropping signaling frame")
	}
}

func (h *Hub) writePump(peer *peerConn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-peer.send:
			if !ok {
				return
			}
			if err := peer.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := peer.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := peer.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := peer.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(token domain.RoomToken, peer *peerConn) {
	defer func() {
		h.removePeer(token, peer)
		h.broadcast(token, peer, Envelope{Type: EnvelopePeerLeft, From: string(peer.session)})
		log.Info().Str("module", "server.hub").Str("room", string(token)).Msg("peer disconnected")
	}()

	peer.conn.SetReadLimit(h.readLimit)
	for {
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Str("module", "server.hub").Err(err).Msg("bad signaling frame")
			continue
		}
		// Stamp the sender; clients cannot impersonate each other.
		env.From = string(peer.session)
		h.broadcast(token, peer, env)
	}
}
