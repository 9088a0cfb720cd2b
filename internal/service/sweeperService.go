package service

import (
	"context"
	"fmt"
	"log"
	"time"

	repository "github.com/ds124wfegd/dealslot/internal/database/postgres"
	"github.com/ds124wfegd/dealslot/internal/entity"
	"github.com/ds124wfegd/dealslot/pkg/codes"
	"github.com/ds124wfegd/dealslot/pkg/kafka"
)

type sweeperService struct {
	claimRepo repository.ClaimRepository
	offerRepo repository.OfferRepository
	userRepo  repository.UserRepository
	waitlist  WaitlistService
	codeStore *codes.Store
	queue     TaskPublisher
	producer  kafka.Producer
}

// NewSweeperService создает новый экземпляр SweeperService
func NewSweeperService(
	claimRepo repository.ClaimRepository,
	offerRepo repository.OfferRepository,
	userRepo repository.UserRepository,
	waitlist WaitlistService,
	codeStore *codes.Store,
	queue TaskPublisher,
	producer kafka.Producer,
) SweeperService {
	return &sweeperService{
		claimRepo: claimRepo,
		offerRepo: offerRepo,
		userRepo:  userRepo,
		waitlist:  waitlist,
		codeStore: codeStore,
		queue:     queue,
		producer:  producer,
	}
}

// SweepExpired reaps every reserved claim past its TTL. Each claim is
// processed independently so one failure cannot abort the batch, and each
// transition is status-guarded so a retried sweep reclaims nothing twice.
func (s *sweeperService) SweepExpired(ctx context.Context) (*entity.SweepResult, error) {
	now := time.Now()

	expired, err := s.claimRepo.GetExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired claims: %w", err)
	}

	result := &entity.SweepResult{}
	for _, exp := range expired {
		reclaimed, err := s.expireOne(ctx, exp, now)
		if err != nil {
			log.Printf("Failed to expire claim %d: %v", exp.ClaimID, err)
			result.FailedCount++
			continue
		}
		if !reclaimed {
			// Погашена или уже просрочена между выборкой и переходом
			continue
		}
		result.ExpiredCount++
		result.ReclaimedUnits++
	}

	if result.ExpiredCount > 0 || result.FailedCount > 0 {
		log.Printf("Sweep finished: expired=%d, reclaimed=%d, failed=%d",
			result.ExpiredCount, result.ReclaimedUnits, result.FailedCount)
	}

	return result, nil
}

func (s *sweeperService) expireOne(ctx context.Context, exp *entity.ClaimExpiration, now time.Time) (bool, error) {
	reclaimed, err := s.claimRepo.Expire(ctx, exp.ClaimID, exp.SlotID, now)
	if err != nil {
		return false, err
	}
	if !reclaimed {
		return false, nil
	}

	if err := s.codeStore.Release(ctx, exp.VenueID, exp.SixCode); err != nil {
		log.Printf("Failed to release six-code for claim %d: %v", exp.ClaimID, err)
	}

	// Freed unit is offered to the waitlist before general availability
	if s.waitlist != nil {
		if err := s.waitlist.OnInventoryFreed(ctx, exp.OfferID, exp.SlotID, 1); err != nil {
			log.Printf("Waitlist promotion after expiry failed (claim=%d): %v", exp.ClaimID, err)
		}
	}

	s.notifyExpired(ctx, exp)
	s.publishExpiredEvent(exp)

	return true, nil
}

// ExpireClaim expires a single claim by ID, used by the delayed task path.
// The same status guard applies, so it is safe to race the sweeper.
func (s *sweeperService) ExpireClaim(ctx context.Context, claimID int64) error {
	claim, err := s.claimRepo.GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("failed to get claim: %w", err)
	}

	if claim.IsTerminal() {
		return nil
	}

	now := time.Now()
	if now.Before(claim.ExpiresAt) {
		return nil
	}

	offer, err := s.offerRepo.GetByID(ctx, claim.OfferID)
	if err != nil {
		return fmt.Errorf("failed to get offer: %w", err)
	}

	exp := &entity.ClaimExpiration{
		ClaimID:    claim.ID,
		OfferID:    claim.OfferID,
		SlotID:     claim.SlotID,
		UserID:     claim.UserID,
		SixCode:    claim.SixCode,
		ExpiresAt:  claim.ExpiresAt,
		OfferTitle: offer.Title,
		VenueID:    offer.VenueID,
	}
	if user, err := s.userRepo.GetByID(ctx, claim.UserID); err == nil {
		exp.TelegramID = user.TelegramID
	}

	if _, err := s.expireOne(ctx, exp, now); err != nil {
		return fmt.Errorf("failed to expire claim %d: %w", claimID, err)
	}
	return nil
}

func (s *sweeperService) notifyExpired(ctx context.Context, exp *entity.ClaimExpiration) {
	if s.queue == nil || exp.TelegramID == "" {
		return
	}

	task := &Task{
		ID:   fmt.Sprintf("notification_claim_expired_%d_%d", exp.ClaimID, time.Now().UnixNano()),
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{
			"notification_type": "claim_expired",
			"claim_id":          exp.ClaimID,
			"telegram_id":       exp.TelegramID,
			"offer_title":       exp.OfferTitle,
			"six_code":          exp.SixCode,
		},
		ExecuteAt:  time.Now().Add(2 * time.Second),
		MaxRetries: 3,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		log.Printf("Failed to schedule expiry notification for claim %d: %v", exp.ClaimID, err)
	}
}

func (s *sweeperService) publishExpiredEvent(exp *entity.ClaimExpiration) {
	if s.producer == nil {
		return
	}
	payload := map[string]interface{}{
		"event":    "claim_expired",
		"claim_id": exp.ClaimID,
		"offer_id": exp.OfferID,
		"slot_id":  exp.SlotID,
		"user_id":  exp.UserID,
		"at":       time.Now().Format(time.RFC3339),
	}
	if err := s.producer.SendMessage("claim_expired", payload); err != nil {
		log.Printf("Failed to publish expiry event for claim %d: %v", exp.ClaimID, err)
	}
}
