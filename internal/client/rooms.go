// Package client implements the room membership API client. Calls are
// plain blocking HTTP; the coordinator runs them on worker goroutines
// and consumes the results as dispatched intents.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/domain"
)

var (
	ErrMissingRoomToken    = errors.New("missing required room token")
	ErrMissingSessionToken = errors.New("missing required session token")
)

// APIError is a non-2xx response from the membership server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("membership api: %d %s", e.StatusCode, e.Message)
}

// Rooms talks to the rooms API of a membership server.
type Rooms struct {
	baseURL string
	http    *http.Client
}

func NewRooms(baseURL string, httpClient *http.Client) *Rooms {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Rooms{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type createRoomParams struct {
	RoomName  string `json:"roomName"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type createRoomResponse struct {
	RoomToken string `json:"roomToken"`
	RoomURL   string `json:"roomUrl"`
	RoomOwner string `json:"roomOwner"`
}

// Create registers a new room and returns its metadata. Used by the
// headless client; the coordinator itself only ever consumes existing
// rooms.
func (r *Rooms) Create(ctx context.Context, roomName string, expiresIn time.Duration) (core.RoomInfo, error) {
	body := createRoomParams{RoomName: roomName, ExpiresIn: int(expiresIn.Seconds())}
	var res createRoomResponse
	if err := r.do(ctx, http.MethodPost, "/rooms", body, &res); err != nil {
		return core.RoomInfo{}, err
	}
	return core.RoomInfo{
		Token: domain.RoomToken(res.RoomToken),
		Name:  roomName,
		Owner: res.RoomOwner,
		URL:   res.RoomURL,
	}, nil
}

type roomInfoResponse struct {
	RoomToken string `json:"roomToken"`
	RoomName  string `json:"roomName"`
	RoomOwner string `json:"roomOwner"`
	RoomURL   string `json:"roomUrl"`
}

func (r *Rooms) GetRoom(ctx context.Context, token domain.RoomToken) (core.RoomInfo, error) {
	if token == "" {
		return core.RoomInfo{}, ErrMissingRoomToken
	}
	var res roomInfoResponse
	if err := r.do(ctx, http.MethodGet, "/rooms/"+string(token), nil, &res); err != nil {
		return core.RoomInfo{}, err
	}
	return core.RoomInfo{
		Token: domain.RoomToken(res.RoomToken),
		Name:  res.RoomName,
		Owner: res.RoomOwner,
		URL:   res.RoomURL,
	}, nil
}

type roomActionParams struct {
	Action       string `json:"action"`
	DisplayName  string `json:"displayName,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

type joinResponse struct {
	APIKey       string `json:"apiKey"`
	SessionToken string `json:"sessionToken"`
	SessionID    string `json:"sessionId"`
	Expires      int    `json:"expires"`
}

func (r *Rooms) Join(ctx context.Context, token domain.RoomToken, displayName string) (core.JoinResponse, error) {
	if token == "" {
		return core.JoinResponse{}, ErrMissingRoomToken
	}
	body := roomActionParams{Action: "join", DisplayName: displayName}
	var res joinResponse
	if err := r.do(ctx, http.MethodPost, "/rooms/"+string(token), body, &res); err != nil {
		return core.JoinResponse{}, err
	}
	return core.JoinResponse{
		APIKey:       res.APIKey,
		SessionToken: domain.SessionToken(res.SessionToken),
		SessionID:    res.SessionID,
		ExpiresIn:    time.Duration(res.Expires) * time.Second,
	}, nil
}

type refreshResponse struct {
	Expires int `json:"expires"`
}

func (r *Rooms) Refresh(ctx context.Context, token domain.RoomToken, session domain.SessionToken) (time.Duration, error) {
	if token == "" {
		return 0, ErrMissingRoomToken
	}
	if session == "" {
		return 0, ErrMissingSessionToken
	}
	body := roomActionParams{Action: "refresh", SessionToken: string(session)}
	var res refreshResponse
	if err := r.do(ctx, http.MethodPost, "/rooms/"+string(token), body, &res); err != nil {
		return 0, err
	}
	return time.Duration(res.Expires) * time.Second, nil
}

func (r *Rooms) Leave(ctx context.Context, token domain.RoomToken, session domain.SessionToken) error {
	if token == "" {
		return ErrMissingRoomToken
	}
	if session == "" {
		return ErrMissingSessionToken
	}
	body := roomActionParams{Action: "leave", SessionToken: string(session)}
	return r.do(ctx, http.MethodPost, "/rooms/"+string(token), body, nil)
}

func (r *Rooms) do(ctx context.Context, method, path string, params, res any) error {
	var body io.Reader
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if res == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
