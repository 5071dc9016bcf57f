package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// GormStore implements Store on top of gorm. It works unchanged on SQLite,
// PostgreSQL and MySQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps the supplied handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Tokens() TokenRepository {
	return &gormTokenRepository{db: s.db}
}

func (s *GormStore) Permissions() PermissionRepository {
	return &gormPermissionRepository{db: s.db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
