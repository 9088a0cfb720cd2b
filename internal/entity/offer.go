package entity

import (
	"time"
)

type OfferStatus string

const (
	OfferStatusActive OfferStatus = "active"
	OfferStatusPaused OfferStatus = "paused"
	OfferStatusEnded  OfferStatus = "ended"
)

// Offer is the read-only catalog record the engine consults for claim
// policy. Content management of offers lives outside the engine; nothing
// here is ever mutated.
type Offer struct {
	ID               int64       `json:"id" db:"id"`
	VenueID          int64       `json:"venue_id" db:"venue_id"`
	Title            string      `json:"title" db:"title"`
	Status           OfferStatus `json:"status" db:"status"`
	PerUserLimit     int         `json:"per_user_limit" db:"per_user_limit"`
	CooldownMinutes  int         `json:"cooldown_minutes" db:"cooldown_minutes"`
	ClaimLimitGlobal int         `json:"claim_limit_global" db:"claim_limit_global"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

func (o *Offer) IsActive() bool {
	return o.Status == OfferStatusActive
}

// Venue display metadata, read-only.
type Venue struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Address string `json:"address" db:"address"`
}
