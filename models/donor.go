package models

import (
	"time"
)

// DonorSummary is a derived row summarizing all paid donations by one
// donor, keyed by (email, name). There is no donor table; two people who
// share an email and name are indistinguishable. Computed on demand from
// the donations table, never stored.
type DonorSummary struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Amount       float64   `json:"amount"`        // total given
	NumDonations int64     `json:"num_donations"` // donation count
	Address      string    `json:"address"`
	City         string    `json:"city"`
	Province     string    `json:"province"`
	Country      string    `json:"country"`
	PostalCode   string    `json:"postal_code"`
	Date         time.Time `json:"date"` // most recent donation
}
