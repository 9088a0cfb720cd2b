package entity

import (
	"time"
)

type ClaimStatus string

const (
	ClaimStatusReserved ClaimStatus = "reserved"
	ClaimStatusRedeemed ClaimStatus = "redeemed"
	ClaimStatusExpired  ClaimStatus = "expired"
)

// Claim is one customer's reservation of one unit of slot inventory.
// A claim makes exactly one terminal transition (reserved->redeemed or
// reserved->expired); terminal claims are kept as audit records.
type Claim struct {
	ID         int64       `json:"id" db:"id"`
	OfferID    int64       `json:"offer_id" db:"offer_id"`
	SlotID     int64       `json:"slot_id" db:"slot_id"`
	UserID     int64       `json:"user_id" db:"user_id"`
	Status     ClaimStatus `json:"status" db:"status"`
	SixCode    string      `json:"six_code" db:"six_code"`
	QRToken    string      `json:"qr_token" db:"qr_token"`
	ReservedAt time.Time   `json:"reserved_at" db:"reserved_at"`
	ExpiresAt  time.Time   `json:"expires_at" db:"expires_at"`
	RedeemedAt *time.Time  `json:"redeemed_at,omitempty" db:"redeemed_at"`
	StaffID    *int64      `json:"staff_id,omitempty" db:"staff_id"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

func (c *Claim) IsTerminal() bool {
	return c.Status == ClaimStatusRedeemed || c.Status == ClaimStatusExpired
}

// ClaimExpiration carries everything the sweeper needs to reclaim one
// expired claim and notify its owner without extra lookups.
type ClaimExpiration struct {
	ClaimID    int64     `json:"claim_id"`
	OfferID    int64     `json:"offer_id"`
	SlotID     int64     `json:"slot_id"`
	UserID     int64     `json:"user_id"`
	SixCode    string    `json:"six_code"`
	ExpiresAt  time.Time `json:"expires_at"`
	TelegramID string    `json:"telegram_id"`
	OfferTitle string    `json:"offer_title"`
	VenueID    int64     `json:"venue_id"`
}

// SweepResult is what one expiry pass reports.
type SweepResult struct {
	ExpiredCount   int `json:"expired_count"`
	ReclaimedUnits int `json:"reclaimed_units"`
	FailedCount    int `json:"failed_count"`
}
