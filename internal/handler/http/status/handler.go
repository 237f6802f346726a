package status

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callsync-core/internal/container"
	"callsync-core/pkg/response"
)

// Handler exposes health and lifecycle endpoints. The lifecycle routes stand
// in for the host platform's foreground/background signal.
type Handler struct {
	container *container.Container
}

// NewHandler creates a new status handler
func NewHandler(c *container.Container) *Handler {
	return &Handler{container: c}
}

// RegisterRoutes registers status and lifecycle routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/v1/status", h.Status)
	router.POST("/v1/lifecycle/background", h.Backgrounded)
	router.POST("/v1/lifecycle/foreground", h.Foregrounded)
}

// Health is the liveness probe
// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports the current session state
// GET /v1/status
func (h *Handler) Status(c *gin.Context) {
	payload := gin.H{
		"active_call":    h.container.Calls.ActiveSession(),
		"navigation_pin": h.container.Navigation.HasActiveSession(),
	}
	if h.container.Transport != nil {
		payload["transport_connected"] = h.container.Transport.IsConnected()
	}
	response.Success(c, http.StatusOK, payload)
}

// Backgrounded records an app background transition
// POST /v1/lifecycle/background
func (h *Handler) Backgrounded(c *gin.Context) {
	if err := h.container.Navigation.OnAppBackgrounded(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"backgrounded": true})
}

// Foregrounded records an app foreground transition and attempts restore
// POST /v1/lifecycle/foreground
func (h *Handler) Foregrounded(c *gin.Context) {
	result := h.container.Navigation.OnAppForegrounded(c.Request.Context())
	response.Success(c, http.StatusOK, result)
}
