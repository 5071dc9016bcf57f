package app

import (
	"crypto/ed25519"

	"github.com/charlesng35/youthtracker/internal/documents"
)

// GeneratorConfig converts DocumentsConfig into generator settings. The key id
// falls back to the public key fingerprint.
func (c DocumentsConfig) GeneratorConfig() (documents.Config, error) {
	key, err := DocumentSigningKey(c.SigningKey)
	if err != nil {
		return documents.Config{}, err
	}

	keyID := c.KeyID
	if keyID == "" {
		keyID = KeyFingerprint(key.Public().(ed25519.PublicKey))
	}

	return documents.Config{
		OutputDir:    c.OutputDir,
		SigningKey:   key,
		KeyID:        keyID,
		Organization: c.Organization,
		Timeout:      c.Timeout,
	}, nil
}
