package entity

import (
	"time"
)

type WaitlistStatus string

const (
	// WaitlistStatusWaiting — entry has not been reached by freed inventory yet.
	WaitlistStatusWaiting WaitlistStatus = "waiting"
	// WaitlistStatusNotified — a unit was offered to a non-auto-claim entry;
	// the entry keeps its position and awaits manual action.
	WaitlistStatusNotified WaitlistStatus = "notified"
	WaitlistStatusClaimed  WaitlistStatus = "claimed"
	WaitlistStatusExpired  WaitlistStatus = "expired"
)

// WaitlistEntry is a queued demand signal for an offer with exhausted
// inventory. Positions of live entries for one offer are dense 1..N, FIFO
// by join order; removing an entry renumbers everything behind it.
type WaitlistEntry struct {
	ID        int64          `json:"id" db:"id"`
	OfferID   int64          `json:"offer_id" db:"offer_id"`
	UserID    int64          `json:"user_id" db:"user_id"`
	Position  int            `json:"position" db:"position"`
	AutoClaim bool           `json:"auto_claim" db:"auto_claim"`
	Status    WaitlistStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// InQueue reports whether the entry still occupies a queue position.
func (e *WaitlistEntry) InQueue() bool {
	return e.Status == WaitlistStatusWaiting || e.Status == WaitlistStatusNotified
}
