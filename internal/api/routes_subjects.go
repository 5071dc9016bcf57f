package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerSubjectRoutes(api *gin.RouterGroup, subjectHandler *handlers.SubjectHandler) {
	users := api.Group("/users")
	{
		users.GET("", subjectHandler.List)
		users.POST("", subjectHandler.Create)
		users.GET("/:id", subjectHandler.Get)
		users.PUT("/:id", subjectHandler.Update)
		users.DELETE("/:id", subjectHandler.Delete)
	}
	api.GET("/group-membership/:group", subjectHandler.GroupMembership)
	api.GET("/groups", subjectHandler.Groups)
}
