package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerPublicActivityRoutes(public *gin.RouterGroup, activityHandler *handlers.ActivityHandler) {
	public.GET("/activities/:id/qrcode", activityHandler.QRCode)
	public.GET("/activities/:id/calendar", activityHandler.Calendar)
}

func registerActivityRoutes(api *gin.RouterGroup, activityHandler *handlers.ActivityHandler, permissionHandler *handlers.PermissionHandler) {
	activities := api.Group("/activities")
	{
		activities.GET("", activityHandler.List)
		activities.POST("", activityHandler.Create)
		activities.GET("/:id", activityHandler.Get)
		activities.PUT("/:id", activityHandler.Update)
		activities.DELETE("/:id", activityHandler.Delete)
		activities.PUT("/:id/reconcile", activityHandler.Reconcile)
		activities.PUT("/:id/approval", activityHandler.Approve)
		activities.POST("/:id/enroll", permissionHandler.Enroll)
		activities.GET("/:id/permissions", permissionHandler.ListForActivity)
	}
}
