package repository

import (
	"context"
	"time"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

type SlotRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, slot *entity.OfferSlot) error
	CreateBatch(ctx context.Context, slots []*entity.OfferSlot) error
	GetByID(ctx context.Context, id int64) (*entity.OfferSlot, error)
	GetByOfferID(ctx context.Context, offerID int64) ([]*entity.OfferSlot, error)
	Delete(ctx context.Context, id int64) error

	// Inventory operations. Both are conditional single-statement updates;
	// the decrement reports entity.ErrSoldOut when no unit was available.
	DecrementQty(ctx context.Context, slotID int64) error
	IncrementQty(ctx context.Context, slotID int64) error

	// FindLiveSlot returns the live slot with remaining quantity whose
	// window closes soonest, or entity.ErrSlotNotFound.
	FindLiveSlot(ctx context.Context, offerID int64, now time.Time) (*entity.OfferSlot, error)

	// Drip operations
	GetDripSlots(ctx context.Context, now time.Time) ([]*entity.OfferSlot, error)
	ReleaseDrip(ctx context.Context, slotID int64, delta, prevReleased int) error
}

type ClaimRepository interface {
	// Reserve decrements the slot's quantity and inserts the claim row in
	// one transaction. Zero affected rows on the decrement means the last
	// unit was lost to a concurrent caller: entity.ErrSoldOut.
	Reserve(ctx context.Context, claim *entity.Claim) error

	GetByID(ctx context.Context, id int64) (*entity.Claim, error)
	GetByUserID(ctx context.Context, userID int64) ([]*entity.Claim, error)
	FindByCredential(ctx context.Context, codeOrToken string) (*entity.Claim, error)

	// Terminal transitions, both guarded by status = 'reserved' so a
	// simultaneous redeem and sweep cannot both win.
	Redeem(ctx context.Context, id int64, staffID int64, at time.Time) error
	Expire(ctx context.Context, id, slotID int64, at time.Time) (reclaimed bool, err error)

	// Expiry scan
	GetExpired(ctx context.Context, before time.Time) ([]*entity.ClaimExpiration, error)

	// Limit checks
	CountActiveByOfferAndUser(ctx context.Context, offerID, userID int64) (int, error)
	CountActiveByOffer(ctx context.Context, offerID int64) (int, error)
	LastClaimAt(ctx context.Context, offerID, userID int64) (*time.Time, error)
	CountActiveBySlot(ctx context.Context, slotID int64) (int, error)
}

type WaitlistRepository interface {
	// Join appends the user at position N+1 under the offer's scoped lock;
	// entity.ErrAlreadyWaiting when a live entry exists.
	Join(ctx context.Context, entry *entity.WaitlistEntry) error

	// Leave removes the user's live entry and closes the position gap.
	Leave(ctx context.Context, offerID, userID int64) error

	// HeadWaiting returns the lowest-position entry still in 'waiting'
	// (notified entries hold their position but are skipped).
	HeadWaiting(ctx context.Context, offerID int64) (*entity.WaitlistEntry, error)

	// Resolve moves an entry to a terminal status (claimed/expired) and
	// renumbers the entries behind it.
	Resolve(ctx context.Context, entryID int64, status entity.WaitlistStatus) error

	// MarkNotified flags a non-auto-claim entry as offered; position kept.
	MarkNotified(ctx context.Context, entryID int64) error

	GetByOfferAndUser(ctx context.Context, offerID, userID int64) (*entity.WaitlistEntry, error)
	GetQueue(ctx context.Context, offerID int64) ([]*entity.WaitlistEntry, error)
	CountWaiting(ctx context.Context, offerID int64) (int, error)
}

// OfferRepository is read-only: the catalog belongs to the CMS collaborator.
type OfferRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Offer, error)
	GetVenue(ctx context.Context, id int64) (*entity.Venue, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}
