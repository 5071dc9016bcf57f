package api

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/app"
	iauth "github.com/charlesng35/youthtracker/internal/auth"
	"github.com/charlesng35/youthtracker/internal/notify"
	"github.com/charlesng35/youthtracker/internal/services"
	"github.com/charlesng35/youthtracker/internal/store"
)

// Services bundles the domain services the HTTP layer depends on.
type Services struct {
	Store       store.Store
	Audit       *services.AuditService
	Admins      *services.AdminService
	Subjects    *services.SubjectService
	Activities  *services.ActivityService
	Interests   *services.InterestService
	Tokens      *services.TokenService
	Permissions *services.PermissionService
}

// ServiceDeps carries the infrastructure needed to build Services.
type ServiceDeps struct {
	Config    *app.Config
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Documents services.WaiverGenerator
	Notifier  services.Notifier
	Events    services.EventPublisher
	// Clock overrides time.Now for token and permission decisions.
	Clock func() time.Time
}

// NewServices wires every domain service against a single store.
func NewServices(deps ServiceDeps) (*Services, error) {
	if deps.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("api: database handle is required")
	}
	if deps.JWT == nil {
		return nil, errors.New("api: jwt service is required")
	}
	if deps.Documents == nil {
		return nil, errors.New("api: document generator is required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewDispatcher(nil)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg := deps.Config

	st, err := store.NewGormStore(deps.DB)
	if err != nil {
		return nil, err
	}

	audit, err := services.NewAuditService(deps.DB)
	if err != nil {
		return nil, err
	}
	admins, err := services.NewAdminService(deps.DB, deps.JWT, audit)
	if err != nil {
		return nil, err
	}
	subjects, err := services.NewSubjectService(deps.DB, audit)
	if err != nil {
		return nil, err
	}
	activities, err := services.NewActivityService(deps.DB, audit)
	if err != nil {
		return nil, err
	}
	interests, err := services.NewInterestService(deps.DB)
	if err != nil {
		return nil, err
	}

	tokens, err := services.NewTokenService(st,
		services.WithTokenClock(clock),
		services.WithTokenTTL(cfg.Tokens.TTL),
		services.WithPermissionURL(cfg.Notifications.PermissionURL),
	)
	if err != nil {
		return nil, err
	}

	opts := []services.PermissionOption{
		services.WithPermissionClock(clock),
		services.WithReminderCooldown(cfg.Notifications.ReminderCooldown),
		services.WithAdminRecipients(cfg.Notifications.AdminEmails),
		services.WithPermissionAudit(audit),
	}
	if deps.Events != nil {
		opts = append(opts, services.WithEventPublisher(deps.Events))
	}
	permissions, err := services.NewPermissionService(st, tokens, deps.Documents, notifier, opts...)
	if err != nil {
		return nil, err
	}

	return &Services{
		Store:       st,
		Audit:       audit,
		Admins:      admins,
		Subjects:    subjects,
		Activities:  activities,
		Interests:   interests,
		Tokens:      tokens,
		Permissions: permissions,
	}, nil
}
