package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkohler/loop/internal/clock"
	"github.com/mkohler/loop/internal/config"
	"github.com/mkohler/loop/internal/domain"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Store, *clock.Fake) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFake(storeEpoch)
	store := NewStore(StoreConfig{
		Clock:   clk,
		APIKey:  "test-api-key",
		BaseURL: "http://example.com",
		Expiry:  5 * time.Minute,
		MaxSize: 2,
	})
	api := &API{
		Store:   store,
		Hub:     NewHub(store, 0, 0),
		Limiter: NewRateLimiter(clk, 3, time.Minute),
	}
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(cfg, api), store, clk
}

// doJSON performs a request with a JSON body, carrying cookies forward
// so the caller keeps a stable client token.
func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestCreateRoomEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/rooms", map[string]string{"roomName": "Standup"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["roomToken"].(string)
	if token == "" {
		t.Fatalf("no roomToken in response: %v", body)
	}
	if url, _ := body["roomUrl"].(string); url != "http://example.com/rooms/"+token {
		t.Fatalf("roomUrl = %q", url)
	}
	if owner, _ := body["roomOwner"].(string); owner == "" {
		t.Fatal("no roomOwner in response")
	}
}

func TestCreateRoomBadPayload(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/rooms", map[string]string{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateRoomRateLimited(t *testing.T) {
	r, _, _ := newTestRouter(t)

	// First create issues the client token cookie; reuse it so every
	// request counts against the same window.
	w := doJSON(t, r, http.MethodPost, "/rooms", map[string]string{"roomName": "a"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	cookies := w.Result().Cookies()
	for i := 0; i < 2; i++ {
		w = doJSON(t, r, http.MethodPost, "/rooms", map[string]string{"roomName": "a"}, cookies)
		if w.Code != http.StatusCreated {
			t.Fatalf("create %d: status = %d, want %d", i+2, w.Code, http.StatusCreated)
		}
	}
	w = doJSON(t, r, http.MethodPost, "/rooms", map[string]string{"roomName": "a"}, cookies)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestGetRoomEndpoint(t *testing.T) {
	r, store, _ := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")

	w := doJSON(t, r, http.MethodGet, "/rooms/"+string(room.Token), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if name, _ := body["roomName"].(string); name != "Standup" {
		t.Fatalf("roomName = %q, want %q", name, "Standup")
	}

	w = doJSON(t, r, http.MethodGet, "/rooms/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestJoinEndpoint(t *testing.T) {
	r, store, _ := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")

	w := doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "join", "displayName": "bob"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["apiKey"] != "test-api-key" {
		t.Fatalf("apiKey = %v", body["apiKey"])
	}
	if body["sessionToken"] == "" || body["sessionId"] == "" {
		t.Fatalf("missing session fields: %v", body)
	}
	// expires rides the wire as whole seconds.
	if expires, _ := body["expires"].(float64); expires != 300 {
		t.Fatalf("expires = %v, want 300", body["expires"])
	}
}

func TestJoinFullRoom(t *testing.T) {
	r, store, _ := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")
	store.Join(room.Token, "bob")
	store.Join(room.Token, "carol")

	w := doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "join", "displayName": "dave"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	r, store, clk := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")
	grant, _ := store.Join(room.Token, "bob")

	w := doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "refresh", "sessionToken": string(grant.SessionToken)}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	body := decodeBody(t, w)
	if expires, _ := body["expires"].(float64); expires != 300 {
		t.Fatalf("expires = %v, want 300", body["expires"])
	}

	// A lapsed membership is Gone, not merely missing.
	clk.Advance(6 * time.Minute)
	w = doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "refresh", "sessionToken": string(grant.SessionToken)}, nil)
	if w.Code != http.StatusGone {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusGone)
	}
}

func TestLeaveEndpoint(t *testing.T) {
	r, store, _ := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")
	grant, _ := store.Join(room.Token, "bob")

	w := doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "leave", "sessionToken": string(grant.SessionToken)}, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := store.ParticipantCount(room.Token); got != 0 {
		t.Fatalf("ParticipantCount = %d, want 0", got)
	}

	w = doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "leave", "sessionToken": string(grant.SessionToken)}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUnknownAction(t *testing.T) {
	r, store, _ := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")

	w := doJSON(t, r, http.MethodPost, "/rooms/"+string(room.Token),
		map[string]string{"action": "explode"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeleteRoomEndpoint(t *testing.T) {
	r, store, _ := newTestRouter(t)

	// Create through the API so the room owner is this client's token.
	w := doJSON(t, r, http.MethodPost, "/rooms", map[string]string{"roomName": "Standup"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	cookies := w.Result().Cookies()
	token := domain.RoomToken(decodeBody(t, w)["roomToken"].(string))

	// A different client (no cookie) is not the owner.
	w = doJSON(t, r, http.MethodDelete, "/rooms/"+string(token), nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("delete by stranger: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = doJSON(t, r, http.MethodDelete, "/rooms/"+string(token), nil, cookies)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete by owner: status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if _, err := store.GetRoom(token); err == nil {
		t.Fatal("room still present after delete")
	}
}

func TestSignalEndpointRejectsInvalidSession(t *testing.T) {
	r, store, _ := newTestRouter(t)
	room, _ := store.CreateRoom("Standup", "alice")

	path := fmt.Sprintf("/rooms/%s/ws?sessionToken=ghost", room.Token)
	w := doJSON(t, r, http.MethodGet, path, nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
