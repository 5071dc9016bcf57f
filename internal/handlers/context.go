package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/youthtracker/internal/middleware"
	"github.com/charlesng35/youthtracker/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// actorFromContext describes the authenticated admin for audit entries.
func actorFromContext(c *gin.Context) services.Actor {
	return services.Actor{
		ID:        c.GetString(middleware.CtxAdminIDKey),
		Username:  c.GetString(middleware.CtxUsernameKey),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func parseBoolQuery(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && value
}
