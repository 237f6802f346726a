package invite

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/internal/service/callsession"
	apperrors "callsync-core/pkg/errors"
	"callsync-core/pkg/logger"
	"callsync-core/pkg/response"
)

// Handler receives call-invite payloads from the push delivery boundary and
// drives the call session lifecycle
type Handler struct {
	calls *callsession.Service
}

// NewHandler creates a new invite handler
func NewHandler(calls *callsession.Service) *Handler {
	return &Handler{calls: calls}
}

// RegisterRoutes registers invite routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/invites", h.ReceiveInvite)
	router.POST("/calls/:id/answer", h.Answer)
	router.POST("/calls/:id/decline", h.Decline)
	router.POST("/calls/:id/missed", h.ReportMissed)
	router.GET("/calls/:id", h.GetCall)
	router.GET("/calls/active", h.GetActiveCall)
}

// ReceiveInvite handles an inbound call-invite payload
// POST /v1/invites
func (h *Handler) ReceiveInvite(c *gin.Context) {
	var payload domain.InvitePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.ValidationError(c, "Invalid invite payload")
		return
	}

	callID, err := h.calls.DisplayIncomingCall(c.Request.Context(), &payload)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeCallConflict) {
			logger.Warn("invite rejected, another call is in progress",
				zap.String("caller_id", payload.CallerID))
		}
		response.FromError(c, err)
		return
	}

	c.Set("call_id", callID.String())
	response.Success(c, http.StatusCreated, gin.H{
		"call_id": callID,
		"state":   domain.CallStateRinging,
	})
}

// Answer handles the user accepting a ringing call
// POST /v1/calls/:id/answer
func (h *Handler) Answer(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	if err := h.calls.Answer(c.Request.Context(), callID); err != nil {
		response.FromError(c, err)
		return
	}

	session, _ := h.calls.Session(callID)
	response.Success(c, http.StatusOK, session)
}

// Decline handles the user declining a ringing call
// POST /v1/calls/:id/decline
func (h *Handler) Decline(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	if err := h.calls.Decline(c.Request.Context(), callID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": domain.CallStateDeclined})
}

// ReportMissed marks a ringing call as missed
// POST /v1/calls/:id/missed
func (h *Handler) ReportMissed(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	if err := h.calls.ReportMissed(c.Request.Context(), callID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": domain.CallStateMissed})
}

// GetCall retrieves a call session by ID
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := h.callID(c)
	if !ok {
		return
	}

	session, found := h.calls.Session(callID)
	if !found {
		response.NotFound(c, "Call not found")
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GetActiveCall returns the current non-terminal session, if any
// GET /v1/calls/active
func (h *Handler) GetActiveCall(c *gin.Context) {
	session := h.calls.ActiveSession()
	if session == nil {
		response.NotFound(c, "No active call")
		return
	}

	response.Success(c, http.StatusOK, session)
}

func (h *Handler) callID(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, false
	}
	c.Set("call_id", callID.String())
	return callID, true
}
