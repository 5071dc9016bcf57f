package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/middleware"
	"github.com/charlesng35/youthtracker/internal/realtime"
	"github.com/charlesng35/youthtracker/pkg/errors"
	"github.com/charlesng35/youthtracker/pkg/response"
)

// RealtimeHandler upgrades authenticated admins to the event websocket.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// GET /api/realtime?streams=permissions,activities
// Without a streams parameter the admin is subscribed to permissions.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	adminID := c.GetString(middleware.CtxAdminIDKey)
	if adminID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := []string{realtime.StreamPermissions}
	if raw := strings.TrimSpace(c.Query("streams")); raw != "" {
		streams = strings.Split(raw, ",")
	}

	h.hub.Serve(adminID, streams, c.Writer, c.Request)
}
