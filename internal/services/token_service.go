package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/internal/models"
	"github.com/charlesng35/youthtracker/internal/store"
	"github.com/charlesng35/youthtracker/pkg/crypto"
	"github.com/charlesng35/youthtracker/pkg/logger"
	"github.com/charlesng35/youthtracker/pkg/metrics"
)

// DefaultTokenTTL is the lifetime of a permission token when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// IssuedToken is returned once at issue time. Token is never stored.
type IssuedToken struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	Link       string    `json:"link,omitempty"`
	SubjectID  string    `json:"subject_id"`
	ActivityID string    `json:"activity_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TokenGrant describes the (subject, activity) pair a valid token authorises.
type TokenGrant struct {
	TokenID    string
	SubjectID  string
	ActivityID string
	ExpiresAt  time.Time
	Subject    *models.Subject
	Activity   *models.Activity
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenTTL sets the default lifetime used when Issue receives a non-positive ttl.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPermissionURL sets the public page that receives ?token=.
func WithPermissionURL(base string) TokenOption {
	return func(s *TokenService) {
		s.permissionURL = strings.TrimSpace(base)
	}
}

// TokenService issues, validates and consumes single-use permission tokens.
type TokenService struct {
	store         store.Store
	ttl           time.Duration
	permissionURL string
	now           func() time.Time
	log           *zap.Logger
}

// NewTokenService constructs a TokenService backed by the given store.
func NewTokenService(st store.Store, opts ...TokenOption) (*TokenService, error) {
	if st == nil {
		return nil, errors.New("token service: store is required")
	}
	svc := &TokenService{
		store: st,
		ttl:   DefaultTokenTTL,
		now:   time.Now,
		log:   logger.WithModule("tokens"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// DefaultTTL returns the lifetime applied when callers do not pass one.
func (s *TokenService) DefaultTTL() time.Duration {
	return s.ttl
}

// Issue creates a token for the pair. A non-positive ttl uses the configured default.
func (s *TokenService) Issue(ctx context.Context, subjectID, activityID string, ttl time.Duration) (*IssuedToken, error) {
	issued, err := s.issue(ensureContext(ctx), s.store, subjectID, activityID, ttl)
	metrics.TokenOperations.WithLabelValues("issue", operationResult(err)).Inc()
	return issued, err
}

func (s *TokenService) issue(ctx context.Context, st store.Store, subjectID, activityID string, ttl time.Duration) (*IssuedToken, error) {
	subjectID = strings.TrimSpace(subjectID)
	activityID = strings.TrimSpace(activityID)
	if subjectID == "" {
		return nil, newValidationError("subject_id", "is required")
	}
	if activityID == "" {
		return nil, newValidationError("activity_id", "is required")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	if err := ensureExists(ctx, st, &models.Subject{}, subjectID); err != nil {
		return nil, err
	}
	if err := ensureExists(ctx, st, &models.Activity{}, activityID); err != nil {
		return nil, err
	}

	raw, err := crypto.GenerateToken(crypto.DefaultTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("token service: generate token: %w", err)
	}

	record := &models.PermissionToken{
		TokenHash:  crypto.HashToken(raw),
		SubjectID:  subjectID,
		ActivityID: activityID,
		ExpiresAt:  s.now().UTC().Add(ttl),
	}
	if err := st.Tokens().Create(ctx, record); err != nil {
		return nil, fmt.Errorf("token service: persist token: %w", err)
	}

	return &IssuedToken{
		ID:         record.ID,
		Token:      raw,
		Link:       s.Link(raw),
		SubjectID:  subjectID,
		ActivityID: activityID,
		ExpiresAt:  record.ExpiresAt,
	}, nil
}

// Link builds the guardian-facing URL for a raw token.
func (s *TokenService) Link(token string) string {
	if s.permissionURL == "" || token == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.permissionURL, "?") {
		sep = "&"
	}
	return s.permissionURL + sep + "token=" + url.QueryEscape(token)
}

// Validate checks a token without consuming it.
func (s *TokenService) Validate(ctx context.Context, token string) (*TokenGrant, error) {
	grant, err := s.lookup(ensureContext(ctx), s.store, token)
	metrics.TokenOperations.WithLabelValues("validate", operationResult(err)).Inc()
	return grant, err
}

// Consume validates and marks the token used. Exactly one caller succeeds per token.
func (s *TokenService) Consume(ctx context.Context, token string) (*TokenGrant, error) {
	ctx = ensureContext(ctx)
	var grant *TokenGrant
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		grant, err = s.consume(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// consume runs inside the caller's transaction and records the metric for the attempt.
func (s *TokenService) consume(ctx context.Context, tx store.Store, token string) (*TokenGrant, error) {
	grant, err := s.lookup(ctx, tx, token)
	if err == nil {
		err = tx.Tokens().MarkUsed(ctx, grant.TokenID, s.now().UTC())
		if errors.Is(err, store.ErrConflict) {
			s.log.Debug("token consume lost race", zap.String("token_id", grant.TokenID))
			err = ErrInvalidToken
		} else if err != nil {
			err = fmt.Errorf("token service: mark used: %w", err)
		}
	}
	metrics.TokenOperations.WithLabelValues("consume", operationResult(err)).Inc()
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *TokenService) lookup(ctx context.Context, st store.Store, token string) (*TokenGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	record, err := st.Tokens().FindByHash(ctx, crypto.HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("token service: lookup: %w", err)
	}
	if !record.Usable(s.now().UTC()) {
		return nil, ErrInvalidToken
	}

	return &TokenGrant{
		TokenID:    record.ID,
		SubjectID:  record.SubjectID,
		ActivityID: record.ActivityID,
		ExpiresAt:  record.ExpiresAt,
		Subject:    record.Subject,
		Activity:   record.Activity,
	}, nil
}

func ensureExists(ctx context.Context, st store.Store, model any, id string) error {
	var count int64
	if err := st.DB().WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup %T: %w", model, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func operationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}
