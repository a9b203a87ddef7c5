package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/triplecrown/team-fundraising/models"
	"gorm.io/gorm"
)

// ErrDonationNotFound is returned when a donation id cannot be resolved.
var ErrDonationNotFound = errors.New("donation not found")

// Ledger is the authoritative store of donation records and their payment
// lifecycle. Donations are append-only: the single mutation it supports is
// the created → paid transition.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// CreateDonation appends a new donation in the created state. The campaign
// is derived from the fundraiser when one is given, so a donation can never
// be attached to a fundraiser under a different campaign.
func (l *Ledger) CreateDonation(donation *models.Donation) error {
	if donation.Amount < 0 {
		return fmt.Errorf("invalid donation amount: %.2f", donation.Amount)
	}

	donation.PaymentStatus = models.StatusCreated
	donation.PaymentMethod = ""
	if donation.Date.IsZero() {
		donation.Date = time.Now()
	}

	if donation.FundraiserID != nil {
		var fundraiser models.Fundraiser
		if err := l.db.First(&fundraiser, *donation.FundraiserID).Error; err != nil {
			return fmt.Errorf("fundraiser %d: %v", *donation.FundraiserID, err)
		}
		donation.CampaignID = fundraiser.CampaignID
	}

	return l.db.Create(donation).Error
}

// GetDonation looks up one donation with its fundraiser and campaign.
func (l *Ledger) GetDonation(id uint) (*models.Donation, error) {
	var donation models.Donation
	err := l.db.Preload("Fundraiser").Preload("Campaign").First(&donation, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrDonationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

// MarkPaid transitions a donation to paid and records the payment method.
// The update only applies while the donation is still unpaid, so duplicate
// provider notifications cannot pay a donation twice. Reports whether this
// call performed the transition.
func (l *Ledger) MarkPaid(id uint, method string) (bool, error) {
	result := l.db.Model(&models.Donation{}).
		Where("id = ? AND payment_status <> ?", id, models.StatusPaid).
		Updates(map[string]interface{}{
			"payment_method": method,
			"payment_status": models.StatusPaid,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DonationsByFundraiser returns all donations credited to one fundraiser,
// newest first.
func (l *Ledger) DonationsByFundraiser(fundraiserID uint) ([]models.Donation, error) {
	donations := []models.Donation{}
	err := l.db.Where("fundraiser_id = ?", fundraiserID).
		Order("date DESC").
		Find(&donations).Error
	return donations, err
}

// DonationsByCampaign returns all donations under one campaign, newest
// first, including general donations with no fundraiser.
func (l *Ledger) DonationsByCampaign(campaignID uint) ([]models.Donation, error) {
	donations := []models.Donation{}
	err := l.db.Where("campaign_id = ?", campaignID).
		Order("date DESC").
		Find(&donations).Error
	return donations, err
}

// DonationsByStatus returns all donations in one lifecycle state, newest
// first. Used for reconciliation reports on stuck unpaid donations.
func (l *Ledger) DonationsByStatus(status models.PaymentStatus) ([]models.Donation, error) {
	donations := []models.Donation{}
	err := l.db.Where("payment_status = ?", status).
		Order("date DESC").
		Find(&donations).Error
	return donations, err
}
