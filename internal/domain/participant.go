package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type ParticipantID string

// Participant is a joined member of a room. The session token is the
// credential the client presents on refresh and leave; the server evicts
// the participant once ExpiresAt passes without a refresh.
type Participant struct {
	ID           ParticipantID
	DisplayName  string
	SessionToken SessionToken
	ExpiresAt    time.Time
}

func NewParticipant(displayName string, expiresAt time.Time) (*Participant, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{
		ID:           ParticipantID(uuid.NewString()),
		DisplayName:  displayName,
		SessionToken: SessionToken(uuid.NewString()),
		ExpiresAt:    expiresAt,
	}, nil
}

func (p *Participant) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
