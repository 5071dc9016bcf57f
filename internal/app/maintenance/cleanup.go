package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/internal/services"
	"github.com/charlesng35/youthtracker/internal/store"
	"github.com/charlesng35/youthtracker/pkg/logger"
)

const (
	defaultTokenRetention = 30 * 24 * time.Hour
	defaultAuditRetention = 90 * 24 * time.Hour
	defaultTokenSpec      = "@hourly"
	defaultAuditSpec      = "@daily"
)

// Cleaner coordinates background maintenance: purging permission tokens that
// expired long ago and pruning stale audit logs.
type Cleaner struct {
	store          store.Store
	audit          *services.AuditService
	cron           *cron.Cron
	now            func() time.Time
	log            *zap.Logger
	tokenRetention time.Duration
	auditRetention time.Duration

	tokenSchedule string
	auditSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetention keeps expired tokens for d after expiry before purging them.
func WithTokenRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d >= 0 {
			cleaner.tokenRetention = d
		}
	}
}

// WithAuditRetention adjusts how long audit logs are retained.
func WithAuditRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.auditRetention = d
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(st store.Store, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		store:          st,
		audit:          audit,
		now:            time.Now,
		tokenRetention: defaultTokenRetention,
		auditRetention: defaultAuditRetention,
		tokenSchedule:  defaultTokenSpec,
		auditSchedule:  defaultAuditSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.store == nil && c.audit == nil {
		return nil
	}

	if c.store != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if _, err := c.purgeTokens(context.Background()); err != nil {
				c.log.Warn("token cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.auditRetention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.store != nil {
		if _, err := c.purgeTokens(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil {
		if _, err := c.audit.CleanupOlderThan(ctx, c.auditRetention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) purgeTokens(ctx context.Context) (int64, error) {
	removed, err := CleanupTokens(ctx, c.store, c.now().Add(-c.tokenRetention))
	if err == nil && removed > 0 {
		c.log.Info("purged expired permission tokens", zap.Int64("removed", removed))
	}
	return removed, err
}

// CleanupTokens removes permission tokens that expired before cutoff. Used
// tokens are kept until they expire so their audit trail survives.
func CleanupTokens(ctx context.Context, st store.Store, cutoff time.Time) (int64, error) {
	if st == nil {
		return 0, errors.New("cleanup tokens: store is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return st.Tokens().DeleteExpired(ctx, cutoff.UTC())
}
