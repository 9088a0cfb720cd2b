package service

import (
	"context"
	"fmt"
	"log"
	"time"

	repository "github.com/ds124wfegd/dealslot/internal/database/postgres"
	"github.com/ds124wfegd/dealslot/internal/entity"
)

// CreateSlotRequest представляет данные для создания слота
type CreateSlotRequest struct {
	OfferID          int64           `json:"offer_id" binding:"required"`
	StartsAt         entity.SlotTime `json:"starts_at" binding:"required"`
	EndsAt           entity.SlotTime `json:"ends_at" binding:"required"`
	QtyTotal         int             `json:"qty_total" binding:"required,min=1,max=10000"`
	Mode             entity.SlotMode `json:"mode"`
	DripEveryMinutes int             `json:"drip_every_minutes"`
	DripQty          int             `json:"drip_qty"`
}

// BulkSlotsRequest expands a recurrence pattern into concrete slots: one
// per matching calendar day in [start_date, end_date], each with the same
// time-of-day window and inventory settings.
type BulkSlotsRequest struct {
	OfferID          int64           `json:"offer_id" binding:"required"`
	StartDate        entity.SlotTime `json:"start_date" binding:"required"`
	EndDate          entity.SlotTime `json:"end_date" binding:"required"`
	DaysOfWeek       []string        `json:"days_of_week" binding:"required,min=1"`
	StartTime        string          `json:"start_time" binding:"required"` // "15:04"
	EndTime          string          `json:"end_time" binding:"required"`
	QtyTotal         int             `json:"qty_total" binding:"required,min=1,max=10000"`
	Mode             entity.SlotMode `json:"mode"`
	DripEveryMinutes int             `json:"drip_every_minutes"`
	DripQty          int             `json:"drip_qty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type slotService struct {
	slotRepo  repository.SlotRepository
	claimRepo repository.ClaimRepository
	offerRepo repository.OfferRepository
	waitlist  WaitlistService
}

// NewSlotService создает новый экземпляр SlotService
func NewSlotService(
	slotRepo repository.SlotRepository,
	claimRepo repository.ClaimRepository,
	offerRepo repository.OfferRepository,
	waitlist WaitlistService,
) SlotService {
	return &slotService{
		slotRepo:  slotRepo,
		claimRepo: claimRepo,
		offerRepo: offerRepo,
		waitlist:  waitlist,
	}
}

// CreateSlot создает новый слот
func (s *slotService) CreateSlot(ctx context.Context, req *CreateSlotRequest) (*entity.OfferSlot, error) {
	if _, err := s.offerRepo.GetByID(ctx, req.OfferID); err != nil {
		return nil, fmt.Errorf("offer lookup failed: %w", err)
	}

	slot, err := s.buildSlot(req.OfferID, req.StartsAt.Time, req.EndsAt.Time,
		req.QtyTotal, req.Mode, req.DripEveryMinutes, req.DripQty)
	if err != nil {
		return nil, err
	}

	if err := s.slotRepo.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("failed to create slot: %w", err)
	}

	log.Printf("Slot created: ID=%d, Offer=%d, Window=[%s, %s), Qty=%d, Mode=%s",
		slot.ID, slot.OfferID,
		slot.StartsAt.Format(time.RFC3339), slot.EndsAt.Format(time.RFC3339),
		slot.QtyTotal, slot.Mode)

	return slot, nil
}

// CreateBulkSlots expands the pattern and persists all resulting slots in
// one batch; each slot is independently timed and inventoried.
func (s *slotService) CreateBulkSlots(ctx context.Context, req *BulkSlotsRequest) ([]*entity.OfferSlot, error) {
	if _, err := s.offerRepo.GetByID(ctx, req.OfferID); err != nil {
		return nil, fmt.Errorf("offer lookup failed: %w", err)
	}

	wanted := make(map[time.Weekday]bool, len(req.DaysOfWeek))
	for _, name := range req.DaysOfWeek {
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown day of week %q", entity.ErrInvalidInput, name)
		}
		wanted[day] = true
	}

	startOfDay, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start_time %q", entity.ErrInvalidInput, req.StartTime)
	}
	endOfDay, err := time.Parse("15:04", req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end_time %q", entity.ErrInvalidInput, req.EndTime)
	}
	if !endOfDay.After(startOfDay) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", entity.ErrInvalidInput)
	}

	first := req.StartDate.Time
	last := req.EndDate.Time
	if last.Before(first) {
		return nil, fmt.Errorf("%w: end_date before start_date", entity.ErrInvalidInput)
	}

	var slots []*entity.OfferSlot
	for day := truncateToDay(first); !day.After(truncateToDay(last)); day = day.AddDate(0, 0, 1) {
		if !wanted[day.Weekday()] {
			continue
		}

		startsAt := time.Date(day.Year(), day.Month(), day.Day(),
			startOfDay.Hour(), startOfDay.Minute(), 0, 0, day.Location())
		endsAt := time.Date(day.Year(), day.Month(), day.Day(),
			endOfDay.Hour(), endOfDay.Minute(), 0, 0, day.Location())

		slot, err := s.buildSlot(req.OfferID, startsAt, endsAt,
			req.QtyTotal, req.Mode, req.DripEveryMinutes, req.DripQty)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: pattern matches no days", entity.ErrInvalidInput)
	}

	if err := s.slotRepo.CreateBatch(ctx, slots); err != nil {
		return nil, fmt.Errorf("failed to create slot batch: %w", err)
	}

	log.Printf("Bulk slots created: offer=%d, count=%d", req.OfferID, len(slots))
	return slots, nil
}

func (s *slotService) buildSlot(offerID int64, startsAt, endsAt time.Time, qtyTotal int,
	mode entity.SlotMode, dripEvery, dripQty int) (*entity.OfferSlot, error) {

	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("%w: slot window must have positive length", entity.ErrInvalidInput)
	}
	if qtyTotal <= 0 {
		return nil, fmt.Errorf("%w: qty_total must be positive", entity.ErrInvalidInput)
	}

	if mode == "" {
		mode = entity.SlotModeFlash
	}

	slot := &entity.OfferSlot{
		OfferID:  offerID,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		QtyTotal: qtyTotal,
		Mode:     mode,
	}

	switch mode {
	case entity.SlotModeFlash:
		slot.QtyRemaining = qtyTotal
	case entity.SlotModeDrip:
		if dripEvery <= 0 || dripQty <= 0 {
			return nil, fmt.Errorf("%w: drip slots require drip_every_minutes and drip_qty", entity.ErrInvalidInput)
		}
		// Drip inventory enters circulation only through ticks
		slot.QtyRemaining = 0
		slot.DripEveryMinutes = dripEvery
		slot.DripQty = dripQty
	default:
		return nil, fmt.Errorf("%w: unknown slot mode %q", entity.ErrInvalidInput, mode)
	}

	return slot, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetSlot возвращает слот с вычисленным состоянием
func (s *slotService) GetSlot(ctx context.Context, id int64) (*entity.SlotInventoryView, error) {
	slot, err := s.slotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &entity.SlotInventoryView{OfferSlot: *slot, State: slot.State(time.Now())}, nil
}

// GetOfferSlots возвращает все слоты оффера
func (s *slotService) GetOfferSlots(ctx context.Context, offerID int64) ([]*entity.SlotInventoryView, error) {
	slots, err := s.slotRepo.GetByOfferID(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offer slots: %w", err)
	}

	now := time.Now()
	views := make([]*entity.SlotInventoryView, 0, len(slots))
	for _, slot := range slots {
		views = append(views, &entity.SlotInventoryView{OfferSlot: *slot, State: slot.State(now)})
	}
	return views, nil
}

// DeleteSlot удаляет слот без активных заявок
func (s *slotService) DeleteSlot(ctx context.Context, id int64) error {
	if _, err := s.slotRepo.GetByID(ctx, id); err != nil {
		return fmt.Errorf("failed to get slot: %w", err)
	}

	active, err := s.claimRepo.CountActiveBySlot(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count slot claims: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("%w: slot has %d active claims", entity.ErrInvalidInput, active)
	}

	if err := s.slotRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return nil
}

// TickDrip reconciles one drip slot against its entitlement: whole elapsed
// intervals since start times drip_qty, capped at qty_total. Missed ticks
// collapse into one release instead of being replayed.
func (s *slotService) TickDrip(ctx context.Context, slotID int64, now time.Time) (int, error) {
	slot, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}

	if slot.Mode != entity.SlotModeDrip {
		return 0, fmt.Errorf("%w: slot %d is not in drip mode", entity.ErrInvalidInput, slotID)
	}

	// Прошедшее окно больше не пополняется
	if !now.Before(slot.EndsAt) {
		return 0, nil
	}

	entitled := slot.DripEntitlement(now)
	delta := entitled - slot.DripReleased
	if delta <= 0 {
		return 0, nil
	}

	if err := s.slotRepo.ReleaseDrip(ctx, slotID, delta, slot.DripReleased); err != nil {
		if err == entity.ErrConcurrentUpdate {
			// Параллельный тикер уже выполнил этот релиз
			log.Printf("Drip release for slot %d lost to a concurrent tick", slotID)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to release drip quantity: %w", err)
	}

	log.Printf("Drip release: slot=%d, units=%d, released=%d/%d",
		slotID, delta, entitled, slot.QtyTotal)

	// Freed units go to the waitlist before general availability
	if s.waitlist != nil {
		if err := s.waitlist.OnInventoryFreed(ctx, slot.OfferID, slotID, delta); err != nil {
			log.Printf("Waitlist promotion after drip release failed (slot=%d): %v", slotID, err)
		}
	}

	return delta, nil
}

// TickAllDrip ticks every live drip slot; one slot's failure does not stop
// the pass.
func (s *slotService) TickAllDrip(ctx context.Context, now time.Time) (int, error) {
	slots, err := s.slotRepo.GetDripSlots(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get drip slots: %w", err)
	}

	total := 0
	for _, slot := range slots {
		released, err := s.TickDrip(ctx, slot.ID, now)
		if err != nil {
			log.Printf("Drip tick failed for slot %d: %v", slot.ID, err)
			continue
		}
		total += released
	}

	return total, nil
}
