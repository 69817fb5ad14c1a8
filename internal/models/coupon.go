package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Coupon is a percentage discount code. An owner-bound coupon only applies to that
// owner's courses; a non-empty course set narrows either kind further.
type Coupon struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code       string          `gorm:"type:varchar(40);uniqueIndex" json:"code"`
	OwnerID    *uint           `gorm:"index" json:"owner_id"`
	Percent    decimal.Decimal `gorm:"type:decimal(5,2)" json:"percent"`
	ActiveFrom *time.Time      `json:"active_from"`
	ActiveTo   *time.Time      `json:"active_to"`
	Enabled    bool            `gorm:"not null" json:"enabled"`
	UsageLimit *int            `json:"usage_limit"`
	UsedCount  int             `gorm:"default:0" json:"used_count"`
	Notes      string          `gorm:"type:text" json:"notes,omitempty"`

	Courses []Course `gorm:"many2many:coupon_courses;" json:"courses,omitempty"`
}

// IsActiveNow reports whether the coupon is enabled, inside its window and under its cap
func (c Coupon) IsActiveNow(now time.Time) bool {
	if !c.Enabled {
		return false
	}
	if c.ActiveFrom != nil && now.Before(*c.ActiveFrom) {
		return false
	}
	if c.ActiveTo != nil && now.After(*c.ActiveTo) {
		return false
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return false
	}
	return true
}

// IsValidFor applies the ownership and course-set rules. Courses must be preloaded.
func (c Coupon) IsValidFor(course Course) bool {
	if c.OwnerID != nil && !course.TaughtBy(*c.OwnerID) {
		return false
	}
	if len(c.Courses) == 0 {
		return true
	}
	for _, allowed := range c.Courses {
		if allowed.ID == course.ID {
			return true
		}
	}
	return false
}
