package models

import "time"

// WaiverDocument is one generated waiver artifact. Every generation adds a row.
type WaiverDocument struct {
	BaseModel

	RecordID    string    `gorm:"type:uuid;not null;index" json:"record_id"`
	Path        string    `gorm:"type:text;not null" json:"path"`
	SHA256      string    `gorm:"type:varchar(64);not null" json:"sha256"`
	Signature   string    `gorm:"type:text" json:"signature"`
	KeyID       string    `gorm:"type:varchar(64)" json:"key_id"`
	GeneratedAt time.Time `gorm:"not null;index" json:"generated_at"`

	Record *PermissionRecord `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE" json:"-"`
}
