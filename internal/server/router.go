package server

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/config"
)

// ClientTokenMiddleware gives every caller a stable anonymous identity
// cookie; room ownership is tied to it.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, api *API) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LoopSessions", store))
	r.Use(ClientTokenMiddleware())

	r.POST("/rooms", api.createRoom)
	r.GET("/rooms/:token", api.getRoom)
	r.POST("/rooms/:token", api.roomAction)
	r.DELETE("/rooms/:token", api.deleteRoom)
	r.GET("/rooms/:token/ws", api.Hub.HandleSignal)

	log.Info().Str("module", "server.router").Msg("router setup")
	return r
}
