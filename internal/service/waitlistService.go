package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	repository "github.com/ds124wfegd/dealslot/internal/database/postgres"
	"github.com/ds124wfegd/dealslot/internal/entity"
)

type waitlistService struct {
	waitlistRepo repository.WaitlistRepository
	offerRepo    repository.OfferRepository
	userRepo     repository.UserRepository
	reservation  ReservationService
	queue        TaskPublisher
}

// NewWaitlistService создает новый экземпляр WaitlistService
func NewWaitlistService(
	waitlistRepo repository.WaitlistRepository,
	offerRepo repository.OfferRepository,
	userRepo repository.UserRepository,
	reservation ReservationService,
	queue TaskPublisher,
) WaitlistService {
	return &waitlistService{
		waitlistRepo: waitlistRepo,
		offerRepo:    offerRepo,
		userRepo:     userRepo,
		reservation:  reservation,
		queue:        queue,
	}
}

// Join appends the user at the tail of the offer's queue.
func (s *waitlistService) Join(ctx context.Context, offerID, userID int64, autoClaim bool) (int, error) {
	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return 0, fmt.Errorf("offer lookup failed: %w", err)
	}
	if !offer.IsActive() {
		return 0, entity.ErrOfferInactive
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return 0, fmt.Errorf("user lookup failed: %w", err)
	}

	entry := &entity.WaitlistEntry{
		OfferID:   offerID,
		UserID:    userID,
		AutoClaim: autoClaim,
		Status:    entity.WaitlistStatusWaiting,
	}
	if err := s.waitlistRepo.Join(ctx, entry); err != nil {
		if errors.Is(err, entity.ErrAlreadyWaiting) {
			return 0, entity.ErrAlreadyWaiting
		}
		return 0, fmt.Errorf("failed to join waitlist: %w", err)
	}

	log.Printf("Waitlist join: offer=%d, user=%d, position=%d, autoClaim=%v",
		offerID, userID, entry.Position, autoClaim)

	s.notify(ctx, "waitlist_joined", map[string]interface{}{
		"offer_id":    offerID,
		"user_id":     userID,
		"position":    entry.Position,
		"offer_title": offer.Title,
	}, userID)

	return entry.Position, nil
}

// Leave removes the user's live entry and closes the position gap.
func (s *waitlistService) Leave(ctx context.Context, offerID, userID int64) error {
	if err := s.waitlistRepo.Leave(ctx, offerID, userID); err != nil {
		if errors.Is(err, entity.ErrWaitlistEntryNotFound) {
			return entity.ErrWaitlistEntryNotFound
		}
		return fmt.Errorf("failed to leave waitlist: %w", err)
	}
	log.Printf("Waitlist leave: offer=%d, user=%d", offerID, userID)
	return nil
}

func (s *waitlistService) GetQueue(ctx context.Context, offerID int64) ([]*entity.WaitlistEntry, error) {
	entries, err := s.waitlistRepo.GetQueue(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist queue: %w", err)
	}
	return entries, nil
}

func (s *waitlistService) GetEntry(ctx context.Context, offerID, userID int64) (*entity.WaitlistEntry, error) {
	entry, err := s.waitlistRepo.GetByOfferAndUser(ctx, offerID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return entry, nil
}

// OnInventoryFreed offers freed units to the queue in FIFO order. Auto-claim
// entries consume a unit through the same atomic reserve path as everyone
// else; notify-only entries are flagged and skipped without consuming
// anything. Units left over when the queue runs dry stay generally
// available in qty_remaining.
func (s *waitlistService) OnInventoryFreed(ctx context.Context, offerID, slotID int64, units int) error {
	for units > 0 {
		head, err := s.waitlistRepo.HeadWaiting(ctx, offerID)
		if err != nil {
			if errors.Is(err, entity.ErrWaitlistEntryNotFound) {
				return nil // Очередь пуста, остаток доступен всем
			}
			return fmt.Errorf("failed to get waitlist head: %w", err)
		}

		if !head.AutoClaim {
			if err := s.waitlistRepo.MarkNotified(ctx, head.ID); err != nil {
				return fmt.Errorf("failed to mark entry %d notified: %w", head.ID, err)
			}
			log.Printf("Waitlist entry %d notified (offer=%d, user=%d), unit not consumed",
				head.ID, offerID, head.UserID)
			s.notifyEntry(ctx, "waitlist_notified", head)
			// The unit stays available; move on to the next waiting entry
			continue
		}

		result, err := s.reservation.Reserve(ctx, &ReserveRequest{
			OfferID: offerID,
			UserID:  head.UserID,
		})
		if err != nil {
			if errors.Is(err, entity.ErrSoldOut) {
				// Кто-то успел забрать освобождённую единицу; запись
				// остаётся в очереди до следующего освобождения
				log.Printf("Waitlist promotion lost the unit (offer=%d, user=%d)", offerID, head.UserID)
				return nil
			}
			// Limit hit or similar: the entry's turn is forfeited and the
			// unit goes to the next entry.
			log.Printf("Waitlist auto-claim failed for entry %d (user=%d): %v", head.ID, head.UserID, err)
			if resolveErr := s.waitlistRepo.Resolve(ctx, head.ID, entity.WaitlistStatusExpired); resolveErr != nil {
				return fmt.Errorf("failed to resolve failed entry %d: %w", head.ID, resolveErr)
			}
			continue
		}

		if err := s.waitlistRepo.Resolve(ctx, head.ID, entity.WaitlistStatusClaimed); err != nil {
			return fmt.Errorf("failed to resolve claimed entry %d: %w", head.ID, err)
		}
		units--

		log.Printf("Waitlist entry %d claimed (offer=%d, user=%d, claim=%d)",
			head.ID, offerID, head.UserID, result.Claim.ID)
		s.notifyClaimed(ctx, head, result.Claim)
	}

	return nil
}

func (s *waitlistService) notifyEntry(ctx context.Context, notificationType string, entry *entity.WaitlistEntry) {
	offer, err := s.offerRepo.GetByID(ctx, entry.OfferID)
	if err != nil {
		log.Printf("Failed to get offer %d for waitlist notification: %v", entry.OfferID, err)
		return
	}
	s.notify(ctx, notificationType, map[string]interface{}{
		"offer_id":    entry.OfferID,
		"offer_title": offer.Title,
		"position":    entry.Position,
	}, entry.UserID)
}

func (s *waitlistService) notifyClaimed(ctx context.Context, entry *entity.WaitlistEntry, claim *entity.Claim) {
	offer, err := s.offerRepo.GetByID(ctx, entry.OfferID)
	if err != nil {
		log.Printf("Failed to get offer %d for waitlist notification: %v", entry.OfferID, err)
		return
	}
	s.notify(ctx, "waitlist_claimed", map[string]interface{}{
		"offer_id":    entry.OfferID,
		"offer_title": offer.Title,
		"claim_id":    claim.ID,
		"six_code":    claim.SixCode,
		"expires_at":  claim.ExpiresAt.Format(time.RFC3339),
	}, entry.UserID)
}

// notify schedules a telegram notification task; failures never roll back
// an inventory transition.
func (s *waitlistService) notify(ctx context.Context, notificationType string, data map[string]interface{}, userID int64) {
	if s.queue == nil {
		return
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || user.TelegramID == "" {
		return
	}

	data["notification_type"] = notificationType
	data["telegram_id"] = user.TelegramID

	task := &Task{
		ID:         fmt.Sprintf("notification_%s_%d_%d", notificationType, userID, time.Now().UnixNano()),
		Type:       TaskTypeSendNotification,
		Data:       data,
		ExecuteAt:  time.Now().Add(2 * time.Second),
		MaxRetries: 3,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		log.Printf("Failed to schedule %s notification for user %d: %v", notificationType, userID, err)
	}
}
