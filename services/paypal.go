package services

import (
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/triplecrown/team-fundraising/models"
)

// StatusCompleted is PayPal's IPN success sentinel.
const StatusCompleted = "Completed"

const (
	liveGatewayURL    = "https://www.paypal.com/cgi-bin/webscr"
	sandboxGatewayURL = "https://www.sandbox.paypal.com/cgi-bin/webscr"
	liveVerifyURL     = "https://ipnpb.paypal.com/cgi-bin/webscr"
	sandboxVerifyURL  = "https://ipnpb.sandbox.paypal.com/cgi-bin/webscr"
)

// PayPalConfig is handed to the processor at construction; nothing is read
// from ambient process state.
type PayPalConfig struct {
	Account string // merchant account the money must land in
	Sandbox bool   // use the sandbox gateway instead of live
	Verify  bool   // post notifications back to PayPal for verification
}

// Notification is one IPN message, decoded from the provider's form post.
// Every field is attacker-influenced until independently checked: the
// payer's client fills in the payment form that produced it.
type Notification struct {
	PaymentStatus string // payment_status
	ReceiverEmail string // receiver_email, the account that was credited
	Custom        string // custom, carries our donation id
	Gross         string // mc_gross
	Currency      string // mc_currency
}

// PaymentProcessor reconciles payment notifications against the ledger,
// transitioning donations to paid and thanking the donor by email.
type PaymentProcessor struct {
	config PayPalConfig
	ledger *Ledger
	mailer Mailer
}

func NewPaymentProcessor(config PayPalConfig, ledger *Ledger, mailer Mailer) *PaymentProcessor {
	return &PaymentProcessor{
		config: config,
		ledger: ledger,
		mailer: mailer,
	}
}

func (p *PaymentProcessor) Config() PayPalConfig {
	return p.config
}

// GatewayURL is where the donor's browser is sent to pay.
func (p *PaymentProcessor) GatewayURL() string {
	if p.config.Sandbox {
		return sandboxGatewayURL
	}
	return liveGatewayURL
}

// VerifyURL is the IPN postback endpoint for the configured mode.
func (p *PaymentProcessor) VerifyURL() string {
	if p.config.Sandbox {
		return sandboxVerifyURL
	}
	return liveVerifyURL
}

// HandleNotification applies one notification to the ledger.
//
// Invalid notifications (not completed, wrong receiver account, amount
// mismatch) are discarded without error: the provider expects a best-effort
// acknowledgment either way, and nothing must mutate. The only hard failure
// is a notification naming a donation that does not exist. Returns the
// donation when this call performed the created → paid transition, nil
// otherwise.
func (p *PaymentProcessor) HandleNotification(n Notification) (*models.Donation, error) {
	if n.PaymentStatus != StatusCompleted {
		log.Printf("Discarding notification with status %q", n.PaymentStatus)
		return nil, nil
	}

	// The payer's client chooses the business field on the payment form, so
	// a tampered form can redirect funds to another account. Checking the
	// receiver account is the only defense and must precede any mutation.
	if n.ReceiverEmail != p.config.Account {
		log.Printf("Discarding notification for wrong receiver account %q", n.ReceiverEmail)
		return nil, nil
	}

	donation, err := p.resolveDonation(n.Custom)
	if err != nil {
		return nil, err
	}

	// The gross amount is under the payer's control too; it must match
	// what the donor pledged.
	if n.Gross != "" {
		gross, err := strconv.ParseFloat(n.Gross, 64)
		if err != nil || math.Abs(gross-donation.Amount) > 0.005 {
			log.Printf("Discarding notification for donation %d: gross %q does not match pledged amount %.2f",
				donation.ID, n.Gross, donation.Amount)
			return nil, nil
		}
	}

	transitioned, err := p.ledger.MarkPaid(donation.ID, "paypal")
	if err != nil {
		return nil, err
	}
	if !transitioned {
		log.Printf("Donation %d already paid, skipping duplicate notification", donation.ID)
		return nil, nil
	}
	donation.PaymentMethod = "paypal"
	donation.PaymentStatus = models.StatusPaid

	// The thank-you email rides on the guarded transition above, so a
	// redelivered notification never re-mails the donor.
	p.sendThankYou(donation)

	return donation, nil
}

// resolveDonation interprets the notification's custom field as a donation
// id. Our payment form sets it, but it arrives untrusted like the rest.
func (p *PaymentProcessor) resolveDonation(custom string) (*models.Donation, error) {
	id, err := strconv.ParseUint(custom, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: custom field %q", ErrDonationNotFound, custom)
	}
	return p.ledger.GetDonation(uint(id))
}

// sendThankYou mails the donor. General donations have no fundraiser, so
// they are thanked on behalf of the campaign itself.
func (p *PaymentProcessor) sendThankYou(donation *models.Donation) {
	campaignName := "the campaign"
	if donation.Campaign != nil {
		campaignName = donation.Campaign.Name
	}
	creditedTo := campaignName
	if donation.Fundraiser != nil {
		creditedTo = donation.Fundraiser.Name
	}

	subject := fmt.Sprintf("Thank you for donating to %s!", campaignName)
	body := fmt.Sprintf(
		"Thank you for your donation of $%s to %s.\nYour PayPal receipt should arrive in a separate email.",
		humanize.FormatFloat("#,###.##", donation.Amount), creditedTo)

	if err := p.mailer.Send(donation.Email, subject, body); err != nil {
		log.Printf("Failed to send thank-you email for donation %d: %v", donation.ID, err)
	}
}
