package services

import (
	"errors"
	"testing"

	"github.com/triplecrown/team-fundraising/models"
)

func TestCreateDonationStartsUnpaid(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")

	donation := &models.Donation{
		CampaignID: campaign.ID,
		Name:       "Jane",
		Email:      "jane@example.com",
		Amount:     25,
		// a submitted form cannot smuggle in a paid status
		PaymentStatus: models.StatusPaid,
		PaymentMethod: "paypal",
	}
	if err := ledger.CreateDonation(donation); err != nil {
		t.Fatalf("CreateDonation failed: %v", err)
	}

	if donation.PaymentStatus != models.StatusCreated {
		t.Errorf("New donation status = %q, want %q", donation.PaymentStatus, models.StatusCreated)
	}
	if donation.PaymentMethod != "" {
		t.Errorf("New donation method = %q, want empty", donation.PaymentMethod)
	}
	if donation.Date.IsZero() {
		t.Error("New donation date was not defaulted")
	}
}

func TestCreateDonationDerivesCampaignFromFundraiser(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")
	fundraiser := seedFundraiser(t, db, campaign.ID, "Sam")

	donation := &models.Donation{
		// wrong campaign on purpose; the fundraiser's campaign wins
		CampaignID:   campaign.ID + 99,
		FundraiserID: &fundraiser.ID,
		Name:         "Jane",
		Email:        "jane@example.com",
		Amount:       25,
	}
	if err := ledger.CreateDonation(donation); err != nil {
		t.Fatalf("CreateDonation failed: %v", err)
	}

	if donation.CampaignID != campaign.ID {
		t.Errorf("Donation campaign = %d, want %d", donation.CampaignID, campaign.ID)
	}
}

func TestCreateDonationRejectsNegativeAmount(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")

	donation := &models.Donation{
		CampaignID: campaign.ID,
		Name:       "Jane",
		Email:      "jane@example.com",
		Amount:     -5,
	}
	if err := ledger.CreateDonation(donation); err == nil {
		t.Error("CreateDonation accepted a negative amount")
	}
}

func TestCreateDonationRejectsUnknownFundraiser(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")

	donation := &models.Donation{
		CampaignID:   campaign.ID,
		FundraiserID: uintPtr(12345),
		Name:         "Jane",
		Email:        "jane@example.com",
		Amount:       25,
	}
	if err := ledger.CreateDonation(donation); err == nil {
		t.Error("CreateDonation accepted a nonexistent fundraiser")
	}
}

func TestGetDonationNotFound(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	_, err := ledger.GetDonation(42)
	if !errors.Is(err, ErrDonationNotFound) {
		t.Errorf("GetDonation error = %v, want ErrDonationNotFound", err)
	}
}

func TestMarkPaidTransitionsOnce(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")
	donation := seedDonation(t, db, campaign.ID, nil, "Jane", "jane@example.com", 50, models.StatusCreated)

	transitioned, err := ledger.MarkPaid(donation.ID, "paypal")
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if !transitioned {
		t.Fatal("MarkPaid did not report a transition on an unpaid donation")
	}

	got, err := ledger.GetDonation(donation.ID)
	if err != nil {
		t.Fatalf("GetDonation failed: %v", err)
	}
	if got.PaymentStatus != models.StatusPaid {
		t.Errorf("Donation status = %q, want %q", got.PaymentStatus, models.StatusPaid)
	}
	if got.PaymentMethod != "paypal" {
		t.Errorf("Donation method = %q, want paypal", got.PaymentMethod)
	}

	// the second call must hit the already-paid guard
	transitioned, err = ledger.MarkPaid(donation.ID, "paypal")
	if err != nil {
		t.Fatalf("Second MarkPaid failed: %v", err)
	}
	if transitioned {
		t.Error("MarkPaid reported a transition on an already paid donation")
	}
}

func TestMarkPaidDoesNotTouchOtherDonations(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")
	first := seedDonation(t, db, campaign.ID, nil, "Jane", "jane@example.com", 50, models.StatusCreated)
	second := seedDonation(t, db, campaign.ID, nil, "Bob", "bob@example.com", 30, models.StatusCreated)

	if _, err := ledger.MarkPaid(first.ID, "paypal"); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}

	got, err := ledger.GetDonation(second.ID)
	if err != nil {
		t.Fatalf("GetDonation failed: %v", err)
	}
	if got.PaymentStatus != models.StatusCreated {
		t.Errorf("Unrelated donation status = %q, want %q", got.PaymentStatus, models.StatusCreated)
	}
}

func TestDonationsByCampaignIncludesGeneral(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	campaign := seedCampaign(t, db, "Ride for Hearts")
	fundraiser := seedFundraiser(t, db, campaign.ID, "Sam")

	seedDonation(t, db, campaign.ID, &fundraiser.ID, "Jane", "jane@example.com", 50, models.StatusPaid)
	seedDonation(t, db, campaign.ID, nil, "Bob", "bob@example.com", 20, models.StatusCreated)

	donations, err := ledger.DonationsByCampaign(campaign.ID)
	if err != nil {
		t.Fatalf("DonationsByCampaign failed: %v", err)
	}
	if len(donations) != 2 {
		t.Errorf("DonationsByCampaign returned %d rows, want 2", len(donations))
	}
}
