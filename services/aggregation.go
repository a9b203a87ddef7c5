package services

import (
	"time"

	"github.com/triplecrown/team-fundraising/models"
	"gorm.io/gorm"
)

// Aggregator computes read-side totals over the donation ledger. Every
// call recomputes from current database state; nothing is cached, so a
// total read after a payment confirmation always reflects it.
type Aggregator struct {
	db *gorm.DB
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// CampaignTotalRaised sums all paid donations under a campaign: the ones
// raised by its fundraisers plus general donations made directly to the
// campaign. Returns 0 when there are none.
func (a *Aggregator) CampaignTotalRaised(campaignID uint) (float64, error) {
	var total float64
	err := a.db.Model(&models.Donation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("campaign_id = ? AND payment_status = ?", campaignID, models.StatusPaid).
		Scan(&total).Error
	return total, err
}

// FundraiserTotalRaised sums the paid donations credited to one
// fundraiser. Returns 0 when there are none.
func (a *Aggregator) FundraiserTotalRaised(fundraiserID uint) (float64, error) {
	var total float64
	err := a.db.Model(&models.Donation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("fundraiser_id = ? AND payment_status = ?", fundraiserID, models.StatusPaid).
		Scan(&total).Error
	return total, err
}

// FundraiserDonationCount counts the paid donations credited to one
// fundraiser.
func (a *Aggregator) FundraiserDonationCount(fundraiserID uint) (int64, error) {
	var count int64
	err := a.db.Model(&models.Donation{}).
		Where("fundraiser_id = ? AND payment_status = ?", fundraiserID, models.StatusPaid).
		Count(&count).Error
	return count, err
}

// RecentDonations returns the newest donations under a campaign for the
// donation feed, at most limit rows. Unpaid donations are shown alongside
// paid ones so a fresh donation appears immediately, but only paid ones
// ever count toward totals.
func (a *Aggregator) RecentDonations(campaignID uint, limit int) ([]models.Donation, error) {
	donations := []models.Donation{}
	err := a.db.
		Where("campaign_id = ? AND payment_status IN ?", campaignID,
			[]models.PaymentStatus{models.StatusPaid, models.StatusCreated}).
		Order("date DESC").
		Limit(limit).
		Find(&donations).Error
	return donations, err
}

// DonorRollup groups all paid donations by (email, name) and emits one
// summary row per donor: total amount, donation count, and the greatest
// observed value of each address field. The address merge is a pick-one
// heuristic, not a reconciliation of conflicting addresses.
func (a *Aggregator) DonorRollup() ([]models.DonorSummary, error) {
	// MAX(date) loses the column's declared type, so drivers hand it back
	// as text; it is parsed after the scan.
	rows := []struct {
		Email        string
		Name         string
		Amount       float64
		NumDonations int64
		Address      string
		City         string
		Province     string
		Country      string
		PostalCode   string
		LastDate     string
	}{}

	err := a.db.Model(&models.Donation{}).
		Select("email, name, SUM(amount) AS amount, COUNT(*) AS num_donations, "+
			"MAX(address) AS address, MAX(city) AS city, MAX(province) AS province, "+
			"MAX(country) AS country, MAX(postal_code) AS postal_code, MAX(date) AS last_date").
		Where("payment_status = ?", models.StatusPaid).
		Group("email, name").
		Order("email, name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	donors := make([]models.DonorSummary, 0, len(rows))
	for _, row := range rows {
		donors = append(donors, models.DonorSummary{
			Email:        row.Email,
			Name:         row.Name,
			Amount:       row.Amount,
			NumDonations: row.NumDonations,
			Address:      row.Address,
			City:         row.City,
			Province:     row.Province,
			Country:      row.Country,
			PostalCode:   row.PostalCode,
			Date:         parseDBTime(row.LastDate),
		})
	}
	return donors, nil
}

// parseDBTime parses the textual timestamps aggregate expressions produce.
func parseDBTime(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
