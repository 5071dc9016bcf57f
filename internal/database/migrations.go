package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
	"github.com/charlesng35/youthtracker/pkg/crypto"
)

// Seed describes the bootstrap admin created on first start. An empty
// username disables seeding.
type Seed struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Subject{},
		&models.Activity{},
		&models.BudgetLineItem{},
		&models.PermissionToken{},
		&models.PermissionRecord{},
		&models.WaiverDocument{},
		&models.ActivityInterest{},
		&models.Admin{},
		&models.AuditLog{},
		&models.SystemSetting{},
	)
}

// SeedData creates the bootstrap admin when it does not exist yet. Existing
// admins are never modified so a changed password in config does not
// overwrite one rotated through the API.
func SeedData(db *gorm.DB, seed Seed) error {
	username := strings.TrimSpace(seed.AdminUsername)
	if username == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.Admin{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if strings.TrimSpace(seed.AdminPassword) == "" {
		return errors.New("bootstrap admin password is required")
	}

	hash, err := crypto.HashPassword(seed.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	admin := models.Admin{
		Username: username,
		Email:    strings.TrimSpace(seed.AdminEmail),
		Password: hash,
		IsActive: true,
	}
	return db.Where(models.Admin{Username: username}).Attrs(admin).FirstOrCreate(&models.Admin{}).Error
}
