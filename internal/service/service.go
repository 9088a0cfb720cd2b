package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

// ReservationService определяет интерфейс для операций с заявками
type ReservationService interface {
	// Основные операции
	Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResult, error)
	GetClaim(ctx context.Context, id int64) (*entity.Claim, error)
	GetUserClaims(ctx context.Context, userID int64) ([]*entity.Claim, error)
	GetClaimDetails(ctx context.Context, id int64) (*ClaimDetails, error)
}

// RedemptionService consumes a valid reserved claim exactly once.
type RedemptionService interface {
	Redeem(ctx context.Context, codeOrToken string, staffID int64) (*entity.Claim, error)
}

// WaitlistService поддерживает FIFO очередь спроса для каждого оффера
type WaitlistService interface {
	Join(ctx context.Context, offerID, userID int64, autoClaim bool) (int, error)
	Leave(ctx context.Context, offerID, userID int64) error
	GetQueue(ctx context.Context, offerID int64) ([]*entity.WaitlistEntry, error)
	GetEntry(ctx context.Context, offerID, userID int64) (*entity.WaitlistEntry, error)

	// OnInventoryFreed offers freed units to the queue head before they
	// become generally available. Runs synchronously inside the freeing
	// operation's unit of work.
	OnInventoryFreed(ctx context.Context, offerID, slotID int64, units int) error
}

// SlotService manages slot lifecycle and the drip release schedule.
type SlotService interface {
	// Основные операции
	CreateSlot(ctx context.Context, req *CreateSlotRequest) (*entity.OfferSlot, error)
	CreateBulkSlots(ctx context.Context, req *BulkSlotsRequest) ([]*entity.OfferSlot, error)
	GetSlot(ctx context.Context, id int64) (*entity.SlotInventoryView, error)
	GetOfferSlots(ctx context.Context, offerID int64) ([]*entity.SlotInventoryView, error)
	DeleteSlot(ctx context.Context, id int64) error

	// Drip операции
	TickDrip(ctx context.Context, slotID int64, now time.Time) (int, error)
	TickAllDrip(ctx context.Context, now time.Time) (int, error)
}

// SweeperService reaps reserved claims past their TTL and reclaims their
// inventory.
type SweeperService interface {
	SweepExpired(ctx context.Context) (*entity.SweepResult, error)
	ExpireClaim(ctx context.Context, claimID int64) error
}
