package entity

import (
	"time"
)

type SlotMode string

const (
	SlotModeFlash SlotMode = "flash"
	SlotModeDrip  SlotMode = "drip"
)

type SlotState string

const (
	SlotStateScheduled SlotState = "scheduled"
	SlotStateLive      SlotState = "live"
	SlotStateEnded     SlotState = "ended"
)

// OfferSlot is a bounded time window of claimable inventory for one offer.
// QtyRemaining is mutated only through conditional updates in the repository,
// never read-modify-write.
type OfferSlot struct {
	ID               int64     `json:"id" db:"id"`
	OfferID          int64     `json:"offer_id" db:"offer_id"`
	StartsAt         time.Time `json:"starts_at" db:"starts_at"`
	EndsAt           time.Time `json:"ends_at" db:"ends_at"`
	QtyTotal         int       `json:"qty_total" db:"qty_total"`
	QtyRemaining     int       `json:"qty_remaining" db:"qty_remaining"`
	Mode             SlotMode  `json:"mode" db:"mode"`
	DripEveryMinutes int       `json:"drip_every_minutes,omitempty" db:"drip_every_minutes"`
	DripQty          int       `json:"drip_qty,omitempty" db:"drip_qty"`
	DripReleased     int       `json:"drip_released,omitempty" db:"drip_released"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// State вычисляется из времени, а не хранится в базе: пропущенный фоновый
// переход не может оставить слот в устаревшем состоянии.
func (s *OfferSlot) State(now time.Time) SlotState {
	if now.Before(s.StartsAt) {
		return SlotStateScheduled
	}
	if !now.Before(s.EndsAt) {
		return SlotStateEnded
	}
	// Exhausted drip slots with nothing left to release are done early.
	if s.QtyRemaining == 0 && s.releasedSoFar() >= s.QtyTotal {
		return SlotStateEnded
	}
	return SlotStateLive
}

func (s *OfferSlot) releasedSoFar() int {
	if s.Mode == SlotModeDrip {
		return s.DripReleased
	}
	return s.QtyTotal
}

func (s *OfferSlot) IsLive(now time.Time) bool {
	return s.State(now) == SlotStateLive
}

// DripEntitlement returns the cumulative quantity a drip slot should have
// released by now: whole elapsed intervals since start, capped at QtyTotal.
// Missed ticks are reconciled by this computation instead of being replayed.
func (s *OfferSlot) DripEntitlement(now time.Time) int {
	if s.Mode != SlotModeDrip || s.DripEveryMinutes <= 0 || s.DripQty <= 0 {
		return 0
	}
	if now.Before(s.StartsAt) {
		return 0
	}
	intervals := int(now.Sub(s.StartsAt) / (time.Duration(s.DripEveryMinutes) * time.Minute))
	entitled := s.DripQty * intervals
	if entitled > s.QtyTotal {
		entitled = s.QtyTotal
	}
	return entitled
}

// SlotInventoryView is the read model returned to clients.
type SlotInventoryView struct {
	OfferSlot
	State SlotState `json:"state"`
}
