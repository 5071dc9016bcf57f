package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/app"
	iauth "github.com/charlesng35/youthtracker/internal/auth"
	"github.com/charlesng35/youthtracker/internal/handlers"
	"github.com/charlesng35/youthtracker/internal/middleware"
	"github.com/charlesng35/youthtracker/internal/realtime"
)

// Dependencies carries everything the router needs to mount handlers.
type Dependencies struct {
	Config   *app.Config
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Services *Services
	// Hub is optional; the realtime endpoint is only mounted when set.
	Hub *realtime.Hub
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services must be provided")
	}
	cfg := deps.Config
	svcs := deps.Services

	metricsPath := cfg.Monitoring.Prometheus.Endpoint
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsPath))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))

	// Public token endpoints share one limiter so a client cannot spread
	// guesses across routes.
	var limit []gin.HandlerFunc
	if rl := cfg.Server.RateLimit; rl.Enabled && rl.RequestsPerSecond > 0 {
		limit = append(limit, middleware.RateLimit(rl.RequestsPerSecond, rl.Burst))
	}

	if cfg.Monitoring.Health.Enabled {
		registerHealthRoutes(r, deps.DB)
	}

	authHandler := handlers.NewAuthHandler(svcs.Admins)
	permissionHandler := handlers.NewPermissionHandler(svcs.Permissions, cfg.Notifications.ActivityURL)
	activityHandler := handlers.NewActivityHandler(svcs.Activities, cfg.Notifications.ActivityURL)

	public := r.Group("/api")
	registerPublicAuthRoutes(public, authHandler, limit)
	registerPublicPermissionRoutes(public, permissionHandler, limit)
	registerPublicActivityRoutes(public, activityHandler)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	registerAuthRoutes(api, authHandler)
	registerSubjectRoutes(api, handlers.NewSubjectHandler(svcs.Subjects))
	registerActivityRoutes(api, activityHandler, permissionHandler)
	registerPermissionRoutes(api, permissionHandler)
	registerInterestRoutes(api, handlers.NewInterestHandler(svcs.Interests))
	registerAuditRoutes(api, handlers.NewAuditHandler(svcs.Audit))
	if deps.Hub != nil {
		registerRealtimeRoutes(api, handlers.NewRealtimeHandler(deps.Hub))
	}

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	out = append(out, middlewares...)
	return append(out, handler)
}
