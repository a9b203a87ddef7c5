package models

import (
	"time"
)

// Campaign is the parent fundraising effort that all fundraisers and
// donations belong to.
type Campaign struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	Name                     string    `gorm:"size:50" json:"name"`
	Goal                     int       `gorm:"default:0" json:"goal"` // fundraising goal in whole currency units
	CampaignMessage          string    `gorm:"size:5000" json:"campaign_message"`
	DefaultFundraiserMessage string    `gorm:"size:5000" json:"default_fundraiser_message"` // seeded onto new fundraisers
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}
