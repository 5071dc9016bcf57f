package app

import (
	"strings"

	"github.com/charlesng35/youthtracker/internal/auth"
	"github.com/charlesng35/youthtracker/internal/database"
	"github.com/charlesng35/youthtracker/internal/services"
)

// DefaultTokenTTL is the permission token lifetime applied when tokens.ttl is unset.
const DefaultTokenTTL = services.DefaultTokenTTL

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SeedConfig converts the bootstrap settings into the database seed.
func (c AuthConfig) SeedConfig() database.Seed {
	return database.Seed{
		AdminUsername: strings.TrimSpace(c.Bootstrap.Username),
		AdminEmail:    strings.TrimSpace(c.Bootstrap.Email),
		AdminPassword: c.Bootstrap.Password,
	}
}

// DatabaseSettings converts DatabaseConfig into database.Config.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		Name:            c.Name,
		User:            c.User,
		Password:        c.Password,
		Options:         c.Options,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogQueries:      c.LogQueries,
	}
}
