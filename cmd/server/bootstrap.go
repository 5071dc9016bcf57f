package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/api"
	"github.com/charlesng35/youthtracker/internal/app"
	"github.com/charlesng35/youthtracker/internal/app/maintenance"
	iauth "github.com/charlesng35/youthtracker/internal/auth"
	"github.com/charlesng35/youthtracker/internal/database"
	"github.com/charlesng35/youthtracker/internal/documents"
	"github.com/charlesng35/youthtracker/internal/realtime"
	"github.com/charlesng35/youthtracker/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Services *api.Services
	Hub      *realtime.Hub
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, document signer, notification
// channels, services and the HTTP router. generated lists secrets created by
// app.ApplyRuntimeDefaults for this process.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	signingKey, err := database.ResolveDocumentSigningKey(ctx, stack.DB, cfg.Documents.SigningKey, generated["documents.signing_key"])
	if err != nil {
		return nil, fmt.Errorf("resolve document signing key: %w", err)
	}
	cfg.Documents.SigningKey = signingKey

	docCfg, err := cfg.Documents.GeneratorConfig()
	if err != nil {
		return nil, fmt.Errorf("document signing key: %w", err)
	}
	generator, err := documents.NewGenerator(docCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise document generator: %w", err)
	}
	log.Info("waiver signing key loaded", zap.String("key_id", docCfg.KeyID), zap.String("output_dir", docCfg.OutputDir))

	dispatcher, err := cfg.Notifications.Dispatcher()
	if err != nil {
		return nil, fmt.Errorf("initialise notifications: %w", err)
	}
	if channels := dispatcher.Channels(); len(channels) == 0 {
		log.Warn("no notification channels configured; reminders will not be delivered")
	} else {
		log.Info("notification channels ready", zap.Strings("channels", channels))
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(realtime.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins...))

	stack.Services, err = api.NewServices(api.ServiceDeps{
		Config:    cfg,
		DB:        stack.DB,
		JWT:       jwtSvc,
		Documents: generator,
		Notifier:  dispatcher,
		Events:    realtime.NewPublisher(stack.Hub),
	})
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Services.Store, stack.Services.Audit,
			maintenance.WithTokenSchedule(cfg.Maintenance.Schedule),
			maintenance.WithTokenRetention(cfg.Maintenance.TokenRetention),
			maintenance.WithAuditRetention(cfg.Maintenance.AuditRetention),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:   cfg,
		DB:       stack.DB,
		JWT:      jwtSvc,
		Services: stack.Services,
		Hub:      stack.Hub,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Auth.SeedConfig()); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
