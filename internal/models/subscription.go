package models

import (
	"errors"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive      SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled    SubscriptionStatus = "CANCELED"
	SubscriptionPending     SubscriptionStatus = "PENDING"
	SubscriptionDeactivated SubscriptionStatus = "DEACTIVATED"
	SubscriptionPaused      SubscriptionStatus = "PAUSED"
)

// RemoteSubscription mirrors subscription state held by the payment gateway.
// It is fetched per reconciliation tick and never persisted locally.
type RemoteSubscription struct {
	ID            string             `json:"id"`
	Status        SubscriptionStatus `json:"status"`
	PaidUntilDate string             `json:"paid_until_date,omitempty"`
	PlanID        string             `json:"plan_id,omitempty"`
	CustomerID    string             `json:"customer_id,omitempty"`
	CardID        string             `json:"card_id,omitempty"`
	LocationID    string             `json:"location_id,omitempty"`
	StartDate     string             `json:"start_date,omitempty"`
	CanceledDate  string             `json:"canceled_date,omitempty"`
}

// Canceled reports whether the remote status is the terminal CANCELED state.
// ACTIVE -> CANCELED is the only modeled transition; there is no way back.
func (s *RemoteSubscription) Canceled() bool {
	return s.Status == SubscriptionCanceled
}

// Local payment statuses used by the entry store.
const (
	PaymentStatusActive    = "Active"
	PaymentStatusCancelled = "Cancelled"
	PaymentStatusFailed    = "Failed"
)

// MetaKeyPaidUntil is the entry meta key mirroring the remote paid-until
// date. The key name predates the current record layout and is kept for
// compatibility with entries written by earlier versions.
const MetaKeyPaidUntil = "square_paid_until_date"

// SubscriptionEntry is the local record of a subscription, owned by the
// entry store. TransactionID holds the remote subscription id.
type SubscriptionEntry struct {
	EntryID       int64     `json:"entry_id"`
	FormID        int64     `json:"form_id"`
	FeedID        int64     `json:"feed_id"`
	TransactionID string    `json:"transaction_id"`
	PaymentStatus string    `json:"payment_status"`
	PaidUntilDate string    `json:"paid_until_date,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Plan is a reusable billing definition resolved or created once per distinct
// feed configuration. The display name changed format across add-on versions,
// so both the current and the legacy form are carried for catalog lookup.
type Plan struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	LegacyName string `json:"legacy_name,omitempty"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Cadence    string `json:"cadence"`
}

// NewPlan validates the local plan definition before any catalog call.
func NewPlan(name, legacyName string, amount int64, currency, cadence string) (*Plan, error) {
	if name == "" {
		return nil, errors.New("plan name is required")
	}
	if amount <= 0 {
		return nil, errors.New("plan amount must be positive")
	}
	if currency == "" {
		return nil, errors.New("plan currency is required")
	}
	if cadence == "" {
		cadence = "MONTHLY"
	}
	return &Plan{
		Name:       name,
		LegacyName: legacyName,
		Amount:     amount,
		Currency:   currency,
		Cadence:    cadence,
	}, nil
}

// Address is a customer billing address. Empty fields are omitted on the
// wire; the gateway rejects an empty country string outright.
type Address struct {
	Line1                  string `json:"address_line_1,omitempty"`
	Line2                  string `json:"address_line_2,omitempty"`
	Locality               string `json:"locality,omitempty"`
	AdministrativeDistrict string `json:"administrative_district_level_1,omitempty"`
	PostalCode             string `json:"postal_code,omitempty"`
	Country                string `json:"country,omitempty"`
}

// IsEmpty reports whether no address field carries a value.
func (a Address) IsEmpty() bool {
	return a == Address{}
}

// Equal compares addresses field by field.
func (a Address) Equal(other Address) bool {
	return a == other
}

// Customer is the gateway-side customer record, resolved by exact email.
type Customer struct {
	ID           string   `json:"id,omitempty"`
	EmailAddress string   `json:"email_address"`
	GivenName    string   `json:"given_name,omitempty"`
	FamilyName   string   `json:"family_name,omitempty"`
	Address      *Address `json:"address,omitempty"`
}

// CardToken is the card-on-file id produced by tokenizing a card nonce.
// It is used once to create a subscription and never retained.
type CardToken struct {
	ID string `json:"id"`
}
