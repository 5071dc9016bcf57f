package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerRealtimeRoutes(api *gin.RouterGroup, realtimeHandler *handlers.RealtimeHandler) {
	api.GET("/realtime", realtimeHandler.Stream)
}
