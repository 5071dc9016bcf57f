package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Subject is a youth participant together with guardian contact details.
type Subject struct {
	BaseModel

	FirstName     string                      `gorm:"type:varchar(128);not null" json:"first_name"`
	LastName      string                      `gorm:"type:varchar(128);not null;index" json:"last_name"`
	Email         string                      `gorm:"type:varchar(255)" json:"email"`
	Cell          string                      `gorm:"type:varchar(32)" json:"cell"`
	GuardianName  string                      `gorm:"type:varchar(255)" json:"guardian_name"`
	GuardianEmail string                      `gorm:"type:varchar(255)" json:"guardian_email"`
	GuardianCell  string                      `gorm:"type:varchar(32)" json:"guardian_cell"`
	Groups        datatypes.JSONSlice[string] `json:"groups"`
	IsActive      bool                        `gorm:"default:true;index" json:"is_active"`
}

// FullName returns the display name used on waivers and notifications.
func (s *Subject) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// InGroup reports whether the subject belongs to the named group (case-insensitive).
func (s *Subject) InGroup(group string) bool {
	group = strings.TrimSpace(group)
	for _, g := range s.Groups {
		if strings.EqualFold(strings.TrimSpace(g), group) {
			return true
		}
	}
	return false
}
