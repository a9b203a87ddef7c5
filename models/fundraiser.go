package models

import (
	"time"
)

// Fundraiser is an individual participant collecting donations toward
// their own goal and the campaign's.
type Fundraiser struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"index;not null" json:"campaign_id"`
	UserID     *uint     `gorm:"uniqueIndex" json:"user_id,omitempty"` // at most one fundraiser per user account
	Name       string    `gorm:"size:50" json:"name"`
	Goal       int       `gorm:"default:0" json:"goal"`
	Photo      string    `gorm:"size:255" json:"photo"` // path under the photo upload dir
	Message    string    `gorm:"size:5000" json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Campaign *Campaign `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
}
