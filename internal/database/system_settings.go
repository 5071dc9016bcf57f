package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
)

// DocumentSigningKeySetting stores the ed25519 seed used to sign waiver documents.
const DocumentSigningKeySetting = "documents.signing_key"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// ResolveDocumentSigningKey reconciles the configured signing key with the
// persisted one. An explicitly configured key always wins and is persisted.
// A key generated at startup is only used when nothing is stored yet, so
// signatures on earlier waivers stay verifiable across restarts.
func ResolveDocumentSigningKey(ctx context.Context, db *gorm.DB, configured string, generated bool) (string, error) {
	configured = strings.TrimSpace(configured)

	stored, err := GetSystemSetting(ctx, db, DocumentSigningKeySetting)
	if err != nil {
		return "", err
	}
	stored = strings.TrimSpace(stored)

	if generated && stored != "" {
		return stored, nil
	}
	if configured == "" {
		return "", fmt.Errorf("system settings: document signing key is empty")
	}
	if stored != configured {
		if err := UpsertSystemSetting(ctx, db, DocumentSigningKeySetting, configured); err != nil {
			return "", err
		}
	}
	return configured, nil
}
