// Package server implements the room membership API: room creation,
// join/refresh/leave with server-enforced participant expiry, and the
// per-room signaling hub the media driver connects to.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/clock"
	"github.com/mkohler/loop/internal/domain"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrRoomFull        = errors.New("room full")
	ErrNotRoomOwner    = errors.New("not the room owner")
)

// JoinGrant is what a successful join hands back to the client.
type JoinGrant struct {
	APIKey       string
	SessionToken domain.SessionToken
	SessionID    string
	ExpiresIn    time.Duration
}

type roomEntry struct {
	room *domain.Room
	// sessionID identifies the room's media session; every participant
	// receives the same one.
	sessionID    string
	participants map[domain.SessionToken]*domain.Participant
}

// Store is the thread-safe in-memory room registry.
type Store struct {
	clk clock.Clock

	// apiKey is the media-platform key handed out with every grant.
	apiKey string
	// baseURL prefixes generated room URLs.
	baseURL string
	// expiry is how long a membership lasts without a refresh.
	expiry time.Duration
	// maxSize caps participants per room; two-party calls by default.
	maxSize int

	mu    sync.RWMutex
	rooms map[domain.RoomToken]*roomEntry
}

type StoreConfig struct {
	Clock   clock.Clock
	APIKey  string
	BaseURL string
	Expiry  time.Duration
	MaxSize int
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 5 * time.Minute
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 2
	}
	return &Store{
		clk:     cfg.Clock,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		expiry:  cfg.Expiry,
		maxSize: cfg.MaxSize,
		rooms:   make(map[domain.RoomToken]*roomEntry),
	}
}

func (s *Store) CreateRoom(name, owner string) (*domain.Room, error) {
	token := domain.RoomToken(uuid.NewString())
	room, err := domain.NewRoom(token, name, owner, s.baseURL+"/rooms/"+string(token))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[token] = &roomEntry{
		room:         room,
		sessionID:    uuid.NewString(),
		participants: make(map[domain.SessionToken]*domain.Participant),
	}
	log.Info().Str("module", "server.store").Str("room", string(token)).Str("owner", owner).Msg("room created")
	return room, nil
}

func (s *Store) GetRoom(token domain.RoomToken) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[token]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room := *e.room
	return &room, nil
}

func (s *Store) DeleteRoom(token domain.RoomToken, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[token]
	if !ok {
		return ErrRoomNotFound
	}
	if e.room.Owner != owner {
		return ErrNotRoomOwner
	}
	delete(s.rooms, token)
	log.Info().Str("module", "server.store").Str("room", string(token)).Msg("room deleted")
	return nil
}

func (s *Store) Join(token domain.RoomToken, displayName string) (JoinGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[token]
	if !ok {
		return JoinGrant{}, ErrRoomNotFound
	}
	now := s.clk.Now()
	s.evictRoomLocked(e, now)
	if len(e.participants) >= s.maxSize {
		return JoinGrant{}, ErrRoomFull
	}
	p, err := domain.NewParticipant(displayName, now.Add(s.expiry))
	if err != nil {
		return JoinGrant{}, err
	}
	e.participants[p.SessionToken] = p
	log.Info().
		Str("module", "server.store").
		Str("room", string(token)).
		Str("participant", string(p.ID)).
		Int("count", len(e.participants)).
		Msg("participant joined")
	return JoinGrant{
		APIKey:       s.apiKey,
		SessionToken: p.SessionToken,
		SessionID:    e.sessionID,
		ExpiresIn:    s.expiry,
	}, nil
}

// Refresh extends a membership. An expired participant is evicted and
// reported as such; the client has to rejoin.
func (s *Store) Refresh(token domain.RoomToken, session domain.SessionToken) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[token]
	if !ok {
		return 0, ErrRoomNotFound
	}
	p, ok := e.participants[session]
	if !ok {
		return 0, ErrSessionNotFound
	}
	now := s.clk.Now()
	if p.Expired(now) {
		delete(e.participants, session)
		return 0, ErrSessionExpired
	}
	p.ExpiresAt = now.Add(s.expiry)
	return s.expiry, nil
}

func (s *Store) Leave(token domain.RoomToken, session domain.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[token]
	if !ok {
		return ErrRoomNotFound
	}
	if _, ok := e.participants[session]; !ok {
		return ErrSessionNotFound
	}
	delete(e.participants, session)
	log.Info().Str("module", "server.store").Str("room", string(token)).Msg("participant left")
	return nil
}

// ValidSession reports whether a session token currently holds
// membership in the room. The signaling hub gates on this.
func (s *Store) ValidSession(token domain.RoomToken, session domain.SessionToken) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[token]
	if !ok {
		return false
	}
	p, ok := e.participants[session]
	return ok && !p.Expired(s.clk.Now())
}

func (s *Store) ParticipantCount(token domain.RoomToken) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[token]
	if !ok {
		return 0
	}
	return len(e.participants)
}

// EvictExpired removes every participant past its expiry and returns
// how many were dropped.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	evicted := 0
	for token, e := range s.rooms {
		before := len(e.participants)
		s.evictRoomLocked(e, now)
		if dropped := before - len(e.participants); dropped > 0 {
			evicted += dropped
			log.Info().
				Str("module", "server.store").
				Str("room", string(token)).
				Int("evicted", dropped).
				Msg("expired participants evicted")
		}
	}
	return evicted
}

func (s *Store) evictRoomLocked(e *roomEntry, now time.Time) {
	for session, p := range e.participants {
		if p.Expired(now) {
			delete(e.participants, session)
		}
	}
}

// RunEviction sweeps for expired participants until ctx is done.
func (s *Store) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := s.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.EvictExpired()
		}
	}
}
