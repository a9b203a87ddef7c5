package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/triplecrown/team-fundraising/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database handle: %v", err)
	}
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Campaign{}, &models.Fundraiser{}, &models.Donation{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func seedCampaign(t *testing.T, db *gorm.DB, name string) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{Name: name, Goal: 10000}
	if err := db.Create(campaign).Error; err != nil {
		t.Fatalf("Failed to seed campaign %q: %v", name, err)
	}
	return campaign
}

func seedFundraiser(t *testing.T, db *gorm.DB, campaignID uint, name string) *models.Fundraiser {
	t.Helper()
	fundraiser := &models.Fundraiser{CampaignID: campaignID, Name: name}
	if err := db.Create(fundraiser).Error; err != nil {
		t.Fatalf("Failed to seed fundraiser %q: %v", name, err)
	}
	return fundraiser
}

// seedDonation inserts a donation directly, bypassing the ledger, so tests
// can set up arbitrary lifecycle states.
func seedDonation(t *testing.T, db *gorm.DB, campaignID uint, fundraiserID *uint,
	name, email string, amount float64, status models.PaymentStatus) *models.Donation {
	t.Helper()
	donation := &models.Donation{
		CampaignID:    campaignID,
		FundraiserID:  fundraiserID,
		Name:          name,
		Email:         email,
		Amount:        amount,
		Date:          time.Now(),
		PaymentStatus: status,
	}
	if err := db.Create(donation).Error; err != nil {
		t.Fatalf("Failed to seed donation for %q: %v", name, err)
	}
	return donation
}

func uintPtr(v uint) *uint {
	return &v
}

// fakeMailer records outbound mail instead of delivering it.
type fakeMailer struct {
	sent []sentMail
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}
