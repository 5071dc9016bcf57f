package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/handlers"
)

func registerInterestRoutes(api *gin.RouterGroup, interestHandler *handlers.InterestHandler) {
	interests := api.Group("/user-interest")
	{
		interests.GET("", interestHandler.List)
		interests.POST("", interestHandler.Set)
		interests.GET("/counts", interestHandler.Counts)
	}
}
