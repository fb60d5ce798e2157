package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jeoparty/middleware"
	"jeoparty/services"
)

type PackHandler struct {
	packService *services.PackService
}

func NewPackHandler(packService *services.PackService) *PackHandler {
	return &PackHandler{
		packService: packService,
	}
}

func (h *PackHandler) GetPack(c *gin.Context) {
	pack, err := h.packService.GetPack(c.Request.Context(), c.Param("pack_id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pack)
}

// ImportPack accepts a multipart upload with the workbook in field "file".
func (h *PackHandler) ImportPack(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Workbook file required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read workbook"})
		return
	}
	defer file.Close()

	public, _ := strconv.ParseBool(c.PostForm("public"))
	finale, _ := strconv.ParseBool(c.PostForm("finale"))
	req := &services.ImportPackRequest{
		Name:      c.PostForm("name"),
		CreatedBy: middleware.UserID(c),
		Public:    public,
		Finale:    finale,
		Language:  c.PostForm("language"),
	}

	pack, err := h.packService.ImportPack(c.Request.Context(), file, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pack)
}
