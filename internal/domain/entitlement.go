/**
 * @description
 * Domain models for contact-access payments and premium (entitlement) requests.
 */
package domain

import "time"

const (
	PremiumStatusPending  = "pending"
	PremiumStatusApproved = "approved"
)

// Payment is an immutable ledger row proving a payer spent money to unlock one profile.
type Payment struct {
	PaymentID          string    `json:"payment_id"`
	PayerEmail         string    `json:"payer_email"`
	TargetBiodataID    int64     `json:"target_biodata_id"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	ProcessorReference *string   `json:"processor_reference,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// PremiumRequest is the entitlement record created from a payment.
type PremiumRequest struct {
	RequestID       string     `json:"request_id"`
	PaymentID       string     `json:"payment_id"`
	PayerEmail      string     `json:"payer_email"`
	TargetBiodataID int64      `json:"target_biodata_id"`
	Status          string     `json:"status"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsApproved reports whether the request grants access.
func (r PremiumRequest) IsApproved() bool {
	return r.Status == PremiumStatusApproved
}

// LedgerEntry is one row of the admin approval table: a payment and, if any,
// the premium request created from it.
type LedgerEntry struct {
	Payment Payment         `json:"payment"`
	Request *PremiumRequest `json:"request,omitempty"`
}

// PremiumRequestFilter narrows ListApproved.
type PremiumRequestFilter struct {
	PayerEmail      string
	TargetBiodataID int64
}
