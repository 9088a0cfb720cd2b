package entity

import "errors"

var (
	// Not found
	ErrOfferNotFound         = errors.New("offer not found")
	ErrSlotNotFound          = errors.New("slot not found")
	ErrClaimNotFound         = errors.New("claim not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrUserNotFound          = errors.New("user not found")

	// Conflict: inventory exhausted at decrement time. Легитимный исход
	// гонки, а не ошибка системы.
	ErrSoldOut = errors.New("no inventory remaining")

	// Limits
	ErrPerUserLimit   = errors.New("per-user claim limit reached")
	ErrCooldownActive = errors.New("claim cooldown still active")
	ErrGlobalLimit    = errors.New("global claim limit reached")

	// Redemption
	ErrClaimAlreadyTerminal = errors.New("claim already redeemed or expired")
	ErrClaimExpired         = errors.New("claim no longer valid")
	ErrInvalidCredential    = errors.New("malformed redemption credential")

	// Waitlist
	ErrAlreadyWaiting = errors.New("user already on the waitlist")

	// Offer / slot state
	ErrOfferInactive = errors.New("offer is not active")
	ErrSlotNotLive   = errors.New("slot is not live")

	// General
	ErrInvalidInput     = errors.New("invalid input")
	ErrConcurrentUpdate = errors.New("concurrent update detected")
	ErrForbidden        = errors.New("forbidden operation")
)
