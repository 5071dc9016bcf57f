package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/auth"
	"github.com/charlesng35/youthtracker/internal/models"
	"github.com/charlesng35/youthtracker/pkg/crypto"
	"github.com/charlesng35/youthtracker/pkg/metrics"
)

// LoginInput carries admin credentials and request metadata.
type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is returned after a successful admin login.
type LoginResult struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Admin       *models.Admin `json:"admin"`
}

// AdminService authenticates operators.
type AdminService struct {
	db    *gorm.DB
	jwt   *auth.JWTService
	audit *AuditService
	now   func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(db *gorm.DB, jwt *auth.JWTService, audit *AuditService) (*AdminService, error) {
	if db == nil {
		return nil, errors.New("admin service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("admin service: jwt service is required")
	}
	return &AdminService{db: db, jwt: jwt, audit: audit, now: time.Now}, nil
}

// Login verifies credentials and issues an access token. Unknown users,
// inactive users and wrong passwords all fail with ErrInvalidCredentials.
func (s *AdminService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var admin models.Admin
	err := s.db.WithContext(ctx).Where("LOWER(username) = ?", strings.ToLower(username)).First(&admin).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("admin service: load admin: %w", err)
	}

	if err != nil || !admin.IsActive || !crypto.VerifyPassword(admin.Password, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		recordAudit(s.audit, ctx, AuditEntry{
			Username:  username,
			Action:    AuditActionLogin,
			Resource:  "admins",
			Result:    "failure",
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
		})
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(admin.ID, admin.Username)
	if err != nil {
		return nil, fmt.Errorf("admin service: issue token: %w", err)
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&admin).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": strings.TrimSpace(input.IPAddress),
	}).Error; err != nil {
		return nil, fmt.Errorf("admin service: record login: %w", err)
	}
	admin.LastLoginAt = &now
	admin.LastLoginIP = strings.TrimSpace(input.IPAddress)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		AdminID:   &admin.ID,
		Username:  admin.Username,
		Action:    AuditActionLogin,
		Resource:  "admins",
		Result:    "success",
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})

	return &LoginResult{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		ExpiresAt:   token.ExpiresAt,
		Admin:       &admin,
	}, nil
}

// Get loads an admin by id.
func (s *AdminService) Get(ctx context.Context, id string) (*models.Admin, error) {
	var admin models.Admin
	if err := s.db.WithContext(ensureContext(ctx)).First(&admin, "id = ?", id).Error; err != nil {
		return nil, translateStoreError(err)
	}
	return &admin, nil
}
