package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charlesng35/youthtracker/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Documents.SigningKey) == "" {
		seed, err := generateHexKey(ed25519.SeedSize)
		if err != nil {
			return nil, fmt.Errorf("generate document signing key: %w", err)
		}
		cfg.Documents.SigningKey = seed
		generated["documents.signing_key"] = true
	}

	if cfg.Tokens.TTL <= 0 {
		cfg.Tokens.TTL = DefaultTokenTTL
	}
	if strings.TrimSpace(cfg.Documents.OutputDir) == "" {
		cfg.Documents.OutputDir = "./data/waivers"
	}

	return generated, nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
