package models

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNegativeAmount is returned when a budget line carries a negative amount.
var ErrNegativeAmount = errors.New("budget line item: amount must not be negative")

// BudgetLineItem is a single planned cost attached to an activity.
type BudgetLineItem struct {
	BaseModel

	ActivityID string  `gorm:"type:uuid;not null;index" json:"activity_id"`
	Item       string  `gorm:"type:varchar(255);not null" json:"item"`
	Amount     float64 `gorm:"not null;default:0" json:"amount"`
	Position   int     `gorm:"not null;default:0" json:"position"`
}

func (b *BudgetLineItem) BeforeSave(tx *gorm.DB) error {
	if b.Amount < 0 {
		return ErrNegativeAmount
	}
	return nil
}
