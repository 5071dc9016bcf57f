package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerPublicPermissionRoutes(public *gin.RouterGroup, permissionHandler *handlers.PermissionHandler, limit []gin.HandlerFunc) {
	public.GET("/verify-token", chain(limit, permissionHandler.VerifyToken)...)
	public.POST("/activity-permission", chain(limit, permissionHandler.Submit)...)
	public.POST("/submit-permission-detail", chain(limit, permissionHandler.Submit)...)
}

func registerPermissionRoutes(api *gin.RouterGroup, permissionHandler *handlers.PermissionHandler) {
	api.POST("/permission-tokens", permissionHandler.IssueToken)
	api.GET("/request-permissions", permissionHandler.RequestPermissions)
	api.GET("/resend-permission", permissionHandler.Resend)
	api.POST("/activity-permissions/grant", permissionHandler.Grant)
	api.GET("/email-activity-permission/:id", permissionHandler.EmailPreview)
	api.GET("/sms-activity-permission/:id", permissionHandler.SMSPreview)

	records := api.Group("/permission-records")
	{
		records.GET("/:id/document", permissionHandler.DownloadDocument)
		records.GET("/:id/document/verify", permissionHandler.VerifyDocument)
		records.GET("/:id/documents", permissionHandler.Documents)
	}
}
