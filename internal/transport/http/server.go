package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/store"
)

// NewServer builds the HTTP server: REST endpoints for room management and
// the WebSocket notification endpoint.
func NewServer(hub *core.Hub, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/healthz", healthHandler)

	rooms := NewRoomHandlers(st, logger)
	api := router.Group("/api")
	{
		api.POST("/rooms", rooms.CreateRoom)
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:room/messages", rooms.ListRoomMessages)
		api.DELETE("/rooms/:room", rooms.DeleteRoom)
	}

	ws := NewWSHandler(hub, cfg, logger)
	router.GET("/ws/notification/:room", ws.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
