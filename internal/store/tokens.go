package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
)

type gormTokenRepository struct {
	db *gorm.DB
}

func (r *gormTokenRepository) Create(ctx context.Context, token *models.PermissionToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("store: create token: %w", err)
	}
	return nil
}

func (r *gormTokenRepository) FindByHash(ctx context.Context, hash string) (*models.PermissionToken, error) {
	var token models.PermissionToken
	err := r.db.WithContext(ctx).
		Preload("Subject").
		Preload("Activity").
		Where("token_hash = ?", hash).
		First(&token).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *gormTokenRepository) MarkUsed(ctx context.Context, id string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.PermissionToken{}).
		Where("id = ? AND used = ? AND expires_at >= ?", id, false, now).
		Updates(map[string]any{
			"used":    true,
			"used_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("store: mark token used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *gormTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.PermissionToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete expired tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
