package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"jeoparty/middleware"
	"jeoparty/services"
)

const (
	ContestantCookie = "jeoparty_contestant_id"
	contestantMaxAge = int(365 * 24 * time.Hour / time.Second)
	qrSize           = 320
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type GameHandler struct {
	gameService *services.GameService
	registry    *services.Registry
}

func NewGameHandler(gameService *services.GameService, registry *services.Registry) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		registry:    registry,
	}
}

func (h *GameHandler) CreateGame(c *gin.Context) {
	var req services.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, err := h.gameService.CreateGame(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"game": game, "join_url": h.gameService.JoinURL(game.JoinCode)})
}

// JoinGame adds the caller to a game. The contestant id is kept in a cookie
// so rejoining from the same browser reuses the identity.
func (h *GameHandler) JoinGame(c *gin.Context) {
	var req services.JoinGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cookie, err := c.Cookie(ContestantCookie); err == nil && cookie != "" {
		req.UserID = cookie
	}

	result, err := h.gameService.Join(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ContestantCookie, result.UserID, contestantMaxAge, "/", "", false, true)
	c.JSON(http.StatusOK, result)
}

func (h *GameHandler) Lobby(c *gin.Context) {
	lobby, err := h.gameService.Lobby(c.Request.Context(), c.Param("game_id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lobby)
}

func (h *GameHandler) QRCode(c *gin.Context) {
	lobby, err := h.gameService.Lobby(c.Request.Context(), c.Param("game_id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	png, err := qrcode.Encode(lobby.JoinURL, qrcode.Medium, qrSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *GameHandler) GetState(c *gin.Context) {
	state, err := h.gameService.GetState(c.Request.Context(), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *GameHandler) Selection(c *gin.Context) {
	coordinator, err := h.registry.Open(c.Request.Context(), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := coordinator.EnterSelection(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) Question(c *gin.Context) {
	coordinator, err := h.registry.Open(c.Request.Context(), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := coordinator.EnterQuestion(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) Finale(c *gin.Context) {
	coordinator, err := h.registry.Open(c.Request.Context(), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := coordinator.EnterFinale(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) Endscreen(c *gin.Context) {
	coordinator, err := h.registry.Open(c.Request.Context(), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	view, err := coordinator.EnterEndscreen(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *GameHandler) Cheatsheet(c *gin.Context) {
	pack, err := h.gameService.Cheatsheet(c.Request.Context(), c.Param("game_id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pack)
}

func (h *GameHandler) Export(c *gin.Context) {
	gameID := c.Param("game_id")
	buf, err := h.gameService.ExportScoreboard(c.Request.Context(), gameID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="scoreboard-`+gameID+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
