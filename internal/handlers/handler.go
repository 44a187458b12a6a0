package handlers

import (
	"wallpanel"
	"wallpanel/internal/logger"
	"wallpanel/internal/render"

	"github.com/gin-gonic/gin"
)

// ActivityPort is the slice of the activity monitor the HTTP layer uses.
type ActivityPort interface {
	RecordActivity(source string) bool
	State() wallpanel.ActivityState
}

// Pairer issues and verifies display device tokens.
type Pairer interface {
	Pair(code string) (token, deviceID string, err error)
	ParseToken(accessToken string) (deviceID string, err error)
}

// Handler wires the HTTP layer to the coordination core.
type Handler struct {
	pairing Pairer
	monitor ActivityPort
	hub     *render.Hub
	log     *logger.Logger

	// onShellConnected fires when a display shell (re)connects; the host
	// uses it to acknowledge completed content reloads.
	onShellConnected func()
}

// NewHandler constructs the HTTP handler with its dependencies.
func NewHandler(pairing Pairer, monitor ActivityPort, hub *render.Hub, log *logger.Logger) *Handler {
	return &Handler{pairing: pairing, monitor: monitor, hub: hub, log: log}
}

// OnShellConnected installs the shell-connection hook.
func (h *Handler) OnShellConnected(fn func()) {
	h.onShellConnected = fn
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	router.POST("/pair", h.pair)

	// Input ingest and diagnostics (protected by device token)
	api := router.Group("/api/v1", h.deviceMiddleware)
	{
		api.POST("/activity", h.postActivity)
		api.GET("/state", h.getState)
	}

	// Display shell link (HTTP upgrade) — same port
	router.GET("/ws", h.wsConnect)

	return router
}
