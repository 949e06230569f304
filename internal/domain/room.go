// Package domain contains entities without logic, just meta-data
// and construction-time validation.
package domain

import "errors"

const MaxRoomNameLen = 124

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type (
	RoomToken    string
	SessionToken string
)

// Room is the server-tracked rendezvous point participants join.
type Room struct {
	Token RoomToken `json:"roomToken"`
	Name  string    `json:"roomName"`
	Owner string    `json:"roomOwner"`
	URL   string    `json:"roomUrl"`
}

// NewRoom keeps construction obvious and avoids raw literals in handlers.
func NewRoom(token RoomToken, name, owner, url string) (*Room, error) {
	if len(name) == 0 {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return nil, ErrRoomNameTooLong
	}
	return &Room{Token: token, Name: name, Owner: owner, URL: url}, nil
}

func (r *Room) Rename(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	r.Name = name
	return nil
}
