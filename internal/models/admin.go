package models

import "time"

// Admin is an operator allowed to manage subjects, activities and reminders.
type Admin struct {
	BaseModel

	Username    string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`
	Email       string     `gorm:"type:varchar(255);index" json:"email"`
	Password    string     `gorm:"not null" json:"-"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `gorm:"type:varchar(64)" json:"last_login_ip,omitempty"`
}
