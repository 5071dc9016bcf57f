package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. YOUTHTRACKER_SERVER_PORT.
const EnvPrefix = "YOUTHTRACKER"

// Config represents the runtime configuration for the youthtracker backend.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Tokens        TokenConfig         `mapstructure:"tokens"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Documents     DocumentsConfig     `mapstructure:"documents"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	LogFormat       string          `mapstructure:"log_format"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig bounds requests per client IP on the public token endpoints.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver"`
	Path            string            `mapstructure:"path"`
	DSN             string            `mapstructure:"dsn"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Name            string            `mapstructure:"name"`
	User            string            `mapstructure:"user"`
	Password        string            `mapstructure:"password"`
	Options         map[string]string `mapstructure:"options"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
	LogQueries      bool              `mapstructure:"log_queries"`
}

// AuthConfig captures admin authentication settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Bootstrap BootstrapSettings `mapstructure:"bootstrap"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// BootstrapSettings describes the admin account created on first start.
type BootstrapSettings struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// TokenConfig controls permission token lifetimes.
type TokenConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// NotificationsConfig describes outbound guardian and admin notifications.
type NotificationsConfig struct {
	PermissionURL    string        `mapstructure:"permission_url"`
	ActivityURL      string        `mapstructure:"activity_url"`
	AdminEmails      []string      `mapstructure:"admin_emails"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ReminderCooldown time.Duration `mapstructure:"reminder_cooldown"`
	Email            EmailConfig   `mapstructure:"email"`
	SMS              SMSConfig     `mapstructure:"sms"`
}

// EmailConfig selects an email provider. Provider is one of smtp, resend or none.
type EmailConfig struct {
	Provider string       `mapstructure:"provider"`
	From     string       `mapstructure:"from"`
	SMTP     SMTPConfig   `mapstructure:"smtp"`
	Resend   ResendConfig `mapstructure:"resend"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ResendConfig holds the Resend API credentials.
type ResendConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SMSConfig configures text message delivery through Twilio.
type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

// DocumentsConfig controls waiver generation.
type DocumentsConfig struct {
	OutputDir    string        `mapstructure:"output_dir"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SigningKey   string        `mapstructure:"signing_key"`
	KeyID        string        `mapstructure:"key_id"`
	Organization string        `mapstructure:"organization"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	TokenRetention time.Duration `mapstructure:"token_retention"`
	AuditRetention time.Duration `mapstructure:"audit_retention"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads config.yaml from ./config and the supplied paths, applies
// a .env file when present, then environment overrides on top of defaults.
func LoadConfig(paths ...string) (*Config, error) {
	if err := loadDotEnv(paths...); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Notifications.Email.Provider) {
	case "", "none", "smtp", "resend":
	default:
		return fmt.Errorf("config: unsupported email provider %q", c.Notifications.Email.Provider)
	}
	if c.Tokens.TTL < 0 {
		return errors.New("config: tokens.ttl must not be negative")
	}
	if c.Notifications.ReminderCooldown < 0 {
		return errors.New("config: notifications.reminder_cooldown must not be negative")
	}
	return nil
}

// loadDotEnv loads the first .env file found in the working directory or the
// supplied paths. Variables already present in the environment win.
func loadDotEnv(paths ...string) error {
	candidates := []string{".env"}
	for _, path := range paths {
		candidates = append(candidates, filepath.Join(path, ".env"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("config: load %s: %w", candidate, err)
		}
		return nil
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_second", 5)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/youthtracker.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.log_queries", false)

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "youthtracker")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")
	v.SetDefault("auth.bootstrap.username", "admin")
	v.SetDefault("auth.bootstrap.email", "")
	v.SetDefault("auth.bootstrap.password", "")

	v.SetDefault("tokens.ttl", "168h")

	v.SetDefault("notifications.permission_url", "http://localhost:8000/permission")
	v.SetDefault("notifications.activity_url", "http://localhost:8000/activities")
	v.SetDefault("notifications.admin_emails", []string{})
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.reminder_cooldown", "1h")
	v.SetDefault("notifications.email.provider", "none")
	v.SetDefault("notifications.email.from", "")
	v.SetDefault("notifications.email.smtp.host", "")
	v.SetDefault("notifications.email.smtp.port", 587)
	v.SetDefault("notifications.email.smtp.username", "")
	v.SetDefault("notifications.email.smtp.password", "")
	v.SetDefault("notifications.email.smtp.use_tls", false)
	v.SetDefault("notifications.email.smtp.timeout", "10s")
	v.SetDefault("notifications.email.resend.api_key", "")
	v.SetDefault("notifications.sms.enabled", false)
	v.SetDefault("notifications.sms.account_sid", "")
	v.SetDefault("notifications.sms.auth_token", "")
	v.SetDefault("notifications.sms.from", "")

	v.SetDefault("documents.output_dir", "./data/waivers")
	v.SetDefault("documents.timeout", "30s")
	v.SetDefault("documents.signing_key", "")
	v.SetDefault("documents.key_id", "")
	v.SetDefault("documents.organization", "Youth Program")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.token_retention", "720h")
	v.SetDefault("maintenance.audit_retention", "2160h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
