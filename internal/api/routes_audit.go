package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, auditHandler *handlers.AuditHandler) {
	api.GET("/audit", auditHandler.List)
}
