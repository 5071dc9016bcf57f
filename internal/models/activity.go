package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrActivityWindow is returned when an activity ends before it starts.
var ErrActivityWindow = errors.New("activity: end must not be before start")

// Activity is an event that requires guardian permission to attend. Planned
// and actual cost plus the two approval levels are filled in as the activity
// is reviewed and reconciled.
type Activity struct {
	BaseModel

	Name        string                      `gorm:"type:varchar(255);not null;index" json:"name"`
	StartsAt    time.Time                   `gorm:"not null;index" json:"starts_at"`
	EndsAt      time.Time                   `gorm:"not null" json:"ends_at"`
	Description string                      `gorm:"type:text" json:"description"`
	Location    string                      `gorm:"type:varchar(255)" json:"location"`
	Groups      datatypes.JSONSlice[string] `json:"groups"`
	Drivers     datatypes.JSONSlice[string] `json:"drivers"`
	IsOvernight bool                        `gorm:"default:false" json:"is_overnight"`
	IsCoed      bool                        `gorm:"default:false" json:"is_coed"`

	TotalCost  *float64 `json:"total_cost,omitempty"`
	ActualCost *float64 `json:"actual_cost,omitempty"`
	Thoughts   string   `gorm:"type:text" json:"thoughts,omitempty"`

	BishopApproval     bool       `gorm:"default:false" json:"bishop_approval"`
	BishopApprovalDate *time.Time `json:"bishop_approval_date,omitempty"`
	StakeApproval      bool       `gorm:"default:false" json:"stake_approval"`
	StakeApprovalDate  *time.Time `json:"stake_approval_date,omitempty"`

	BudgetItems []BudgetLineItem `gorm:"constraint:OnDelete:CASCADE" json:"budget_items,omitempty"`
}

// BeforeSave enforces the activity time window.
func (a *Activity) BeforeSave(tx *gorm.DB) error {
	if a.EndsAt.Before(a.StartsAt) {
		return ErrActivityWindow
	}
	return nil
}

// HasGroup reports whether the activity is open to the named group.
func (a *Activity) HasGroup(group string) bool {
	for _, g := range a.Groups {
		if strings.EqualFold(strings.TrimSpace(g), strings.TrimSpace(group)) {
			return true
		}
	}
	return false
}
