package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerPublicAuthRoutes(public *gin.RouterGroup, authHandler *handlers.AuthHandler, limit []gin.HandlerFunc) {
	public.POST("/auth/login", chain(limit, authHandler.Login)...)
}

func registerAuthRoutes(api *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	api.GET("/auth/me", authHandler.Me)
}
