package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
)

var statusByCode = map[string]int{
	errors.ErrCodeValidation:    http.StatusBadRequest,
	errors.ErrCodeNotFound:      http.StatusNotFound,
	errors.ErrCodeUnauthorized:  http.StatusUnauthorized,
	errors.ErrCodeForbidden:     http.StatusForbidden,
	errors.ErrCodeConflict:      http.StatusConflict,
	errors.ErrCodeAlreadyExists: http.StatusConflict,
}

// respondError writes err as {"error": message} with the status of its code.
// Unknown errors are logged and reported as 500 without details.
func respondError(c *gin.Context, err error) {
	for code, status := range statusByCode {
		if errors.HasCode(err, code) {
			c.JSON(status, gin.H{"error": errors.Message(err)})
			return
		}
	}
	logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
