package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/pkg/response"
)

const healthPingTimeout = 2 * time.Second

// Health reports readiness by pinging the database.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok", "database": "ok", "checked_at": time.Now().UTC()}

		if db == nil {
			status["status"] = "degraded"
			status["database"] = "unconfigured"
			c.JSON(http.StatusServiceUnavailable, response.Response{Success: false, Data: status})
			return
		}

		ctx, cancel := context.WithTimeout(requestContext(c), healthPingTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, response.Response{Success: false, Data: status})
			return
		}

		response.Success(c, http.StatusOK, status)
	}
}
