package models

import "time"

// PermissionToken is a single-use credential tied to one (subject, activity) pair.
// Only the sha256 digest of the opaque token is stored.
type PermissionToken struct {
	BaseModel

	TokenHash  string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	SubjectID  string     `gorm:"type:uuid;not null;index" json:"subject_id"`
	ActivityID string     `gorm:"type:uuid;not null;index" json:"activity_id"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	Used       bool       `gorm:"not null;default:false;index" json:"used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`

	Subject  *Subject  `gorm:"constraint:OnDelete:CASCADE" json:"subject,omitempty"`
	Activity *Activity `gorm:"constraint:OnDelete:CASCADE" json:"activity,omitempty"`
}

// IsExpired reports whether the token is past its expiry at the supplied instant.
func (t *PermissionToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Usable reports whether the token may still be consumed.
func (t *PermissionToken) Usable(now time.Time) bool {
	return !t.Used && !t.IsExpired(now)
}
