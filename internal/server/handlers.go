package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkohler/loop/internal/domain"
)

type API struct {
	Store *Store
	Hub   *Hub
	// Limiter caps room creation per client token. Optional.
	Limiter *RateLimiter
}

type createRoomRequest struct {
	RoomName string `json:"roomName" binding:"required"`
}

func (a *API) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	owner := c.GetString("client_token")
	if a.Limiter != nil && !a.Limiter.Allow(owner) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many rooms created"})
		return
	}
	room, err := a.Store.CreateRoom(req.RoomName, owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"roomToken": room.Token,
		"roomUrl":   room.URL,
		"roomOwner": room.Owner,
	})
}

func (a *API) getRoom(c *gin.Context) {
	token := domain.RoomToken(c.Param("token"))
	room, err := a.Store.GetRoom(token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrRoomNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roomToken": room.Token,
		"roomName":  room.Name,
		"roomOwner": room.Owner,
		"roomUrl":   room.URL,
	})
}

type roomActionRequest struct {
	Action       string `json:"action" binding:"required"`
	DisplayName  string `json:"displayName"`
	SessionToken string `json:"sessionToken"`
}

// roomAction dispatches join/refresh/leave by the action field, the
// shape the membership client speaks.
func (a *API) roomAction(c *gin.Context) {
	token := domain.RoomToken(c.Param("token"))
	var req roomActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	switch req.Action {
	case "join":
		a.join(c, token, req.DisplayName)
	case "refresh":
		a.refresh(c, token, domain.SessionToken(req.SessionToken))
	case "leave":
		a.leave(c, token, domain.SessionToken(req.SessionToken))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
	}
}

func (a *API) join(c *gin.Context, token domain.RoomToken, displayName string) {
	grant, err := a.Store.Join(token, displayName)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apiKey":       grant.APIKey,
		"sessionToken": grant.SessionToken,
		"sessionId":    grant.SessionID,
		"expires":      int(grant.ExpiresIn.Seconds()),
	})
}

func (a *API) refresh(c *gin.Context, token domain.RoomToken, session domain.SessionToken) {
	expires, err := a.Store.Refresh(token, session)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires": int(expires.Seconds())})
}

func (a *API) leave(c *gin.Context, token domain.RoomToken, session domain.SessionToken) {
	if err := a.Store.Leave(token, session); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) deleteRoom(c *gin.Context) {
	token := domain.RoomToken(c.Param("token"))
	owner := c.GetString("client_token")
	if err := a.Store.DeleteRoom(token, owner); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeStoreError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, ErrNotRoomOwner):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
