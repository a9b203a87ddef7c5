package models

import (
	"time"
)

// PaymentStatus is the lifecycle state of a donation. A donation counts
// toward totals only once it reaches StatusPaid.
type PaymentStatus string

const (
	StatusCreated PaymentStatus = "created"
	StatusPaid    PaymentStatus = "paid"
)

// Donation is a single monetary pledge. A donation with no fundraiser is a
// "general" donation credited directly to the campaign.
type Donation struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	CampaignID    uint          `gorm:"index;not null" json:"campaign_id"`
	FundraiserID  *uint         `gorm:"index" json:"fundraiser_id,omitempty"` // NULL = general donation
	Name          string        `gorm:"size:50" json:"name"`
	Amount        float64       `gorm:"type:decimal(10,2)" json:"amount"`
	Anonymous     bool          `gorm:"default:false" json:"anonymous"`
	Email         string        `gorm:"size:100;index" json:"email"`
	Message       string        `gorm:"size:280" json:"message"`
	Address       string        `gorm:"size:100" json:"address"`
	City          string        `gorm:"size:50" json:"city"`
	Province      string        `gorm:"size:50" json:"province"`
	Country       string        `gorm:"size:25" json:"country"`
	PostalCode    string        `gorm:"size:10" json:"postal_code"`
	Date          time.Time     `gorm:"index" json:"date"`
	PaymentMethod string        `gorm:"size:50" json:"payment_method"`       // e.g. paypal
	PaymentStatus PaymentStatus `gorm:"size:25;index" json:"payment_status"` // created, paid

	Campaign   *Campaign   `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
	Fundraiser *Fundraiser `gorm:"foreignKey:FundraiserID;constraint:OnDelete:CASCADE" json:"-"`
}
