package handlers

import (
	"errors"
	"net/http"

	"wallpanel/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errInvalidBodyPref = "invalid body: "
	errPairingFailed   = "pairing failed"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// pairRequest carries the shared pairing code.
type pairRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
		"shells": h.hub.ShellCount(),
	})
}

// pair exchanges the pairing code for a signed device token.
func (h *Handler) pair(c *gin.Context) {
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	token, deviceID, err := h.pairing.Pair(req.Code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidCode.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errPairingFailed, "pairing_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "device_id": deviceID})
}

// activityRequest is one input occurrence from the PIR bridge or a widget.
type activityRequest struct {
	Source string `json:"source" binding:"required"` // touch | key | click | motion | pointer_move
}

// postActivity registers an input event with the monitor. The response
// reports whether the event was accepted (movement events are throttled).
func (h *Handler) postActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	accepted := h.monitor.RecordActivity(req.Source)
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "accepted": accepted})
}

// getState returns the current activity snapshot for diagnostics.
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.State())
}
