package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"jeoparty/handlers"
	"jeoparty/middleware"
	"jeoparty/pkg/logger"
	"jeoparty/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Dependencies struct {
	GameHandler    *handlers.GameHandler
	PackHandler    *handlers.PackHandler
	GameService    *services.GameService
	Hub            *services.Hub
	JWTSecret      string
	MetricsHandler http.Handler
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	api := router.Group("/api")
	{
		// Contestants have no account, only the cookie set on join
		api.POST("/join", deps.GameHandler.JoinGame)
		api.GET("/games/:game_id/state", deps.GameHandler.GetState)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(deps.JWTSecret))
		{
			packs := protected.Group("/packs")
			{
				packs.POST("/import", deps.PackHandler.ImportPack)
				packs.GET("/:pack_id", deps.PackHandler.GetPack)
			}

			games := protected.Group("/games")
			{
				games.POST("", deps.GameHandler.CreateGame)
				games.GET("/:game_id/lobby", deps.GameHandler.Lobby)
				games.GET("/:game_id/qr", deps.GameHandler.QRCode)
				games.GET("/:game_id/selection", deps.GameHandler.Selection)
				games.GET("/:game_id/question", deps.GameHandler.Question)
				games.GET("/:game_id/finale", deps.GameHandler.Finale)
				games.GET("/:game_id/endscreen", deps.GameHandler.Endscreen)
				games.GET("/:game_id/cheatsheet", deps.GameHandler.Cheatsheet)
				games.GET("/:game_id/export", deps.GameHandler.Export)
			}
		}
	}

	// Presenter and contestant sockets share the endpoint; the first event
	// decides which room a socket joins.
	router.GET("/ws/:game_id", func(c *gin.Context) {
		gameID := c.Param("game_id")
		if err := deps.GameService.GameExists(c.Request.Context(), gameID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("WebSocket upgrade failed", "game_id", gameID, "error", err)
			return
		}

		client := deps.Hub.RegisterClient(conn, gameID)
		logger.Info("WebSocket connection established", "game_id", gameID, "sid", client.ID())
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
}
