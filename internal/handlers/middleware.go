package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// deviceMiddleware authenticates API calls with the device token issued at
// pairing (Authorization: Bearer <token>).
func (h *Handler) deviceMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	deviceID, err := h.pairing.ParseToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set("deviceId", deviceID)
	c.Next()
}
