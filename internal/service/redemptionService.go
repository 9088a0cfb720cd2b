package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	repository "github.com/ds124wfegd/dealslot/internal/database/postgres"
	"github.com/ds124wfegd/dealslot/internal/entity"
	"github.com/ds124wfegd/dealslot/pkg/codes"
	"github.com/ds124wfegd/dealslot/pkg/kafka"
)

// Credential shape: six numeric digits or a 32-char hex qr token.
var credentialPattern = regexp.MustCompile(`^(\d{6}|[0-9a-f]{32})$`)

type redemptionService struct {
	claimRepo repository.ClaimRepository
	offerRepo repository.OfferRepository
	userRepo  repository.UserRepository
	codeStore *codes.Store
	producer  kafka.Producer
}

// NewRedemptionService создает новый экземпляр RedemptionService
func NewRedemptionService(
	claimRepo repository.ClaimRepository,
	offerRepo repository.OfferRepository,
	userRepo repository.UserRepository,
	codeStore *codes.Store,
	producer kafka.Producer,
) RedemptionService {
	return &redemptionService{
		claimRepo: claimRepo,
		offerRepo: offerRepo,
		userRepo:  userRepo,
		codeStore: codeStore,
		producer:  producer,
	}
}

// Redeem consumes a reserved claim exactly once. The final transition is a
// status-guarded update, so a redeem racing the sweeper cannot both win;
// the loser sees the claim already terminal.
func (s *redemptionService) Redeem(ctx context.Context, codeOrToken string, staffID int64) (*entity.Claim, error) {
	if !credentialPattern.MatchString(codeOrToken) {
		return nil, entity.ErrInvalidCredential
	}

	staff, err := s.userRepo.GetByID(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("staff lookup failed: %w", err)
	}
	if !staff.Role.CanRedeem() {
		return nil, entity.ErrForbidden
	}

	claim, err := s.claimRepo.FindByCredential(ctx, codeOrToken)
	if err != nil {
		if errors.Is(err, entity.ErrClaimNotFound) {
			return nil, entity.ErrClaimNotFound
		}
		return nil, fmt.Errorf("claim lookup failed: %w", err)
	}

	now := time.Now()

	// Различаем "уже погашено" и "просрочено" для персонала
	switch {
	case claim.Status == entity.ClaimStatusRedeemed:
		return nil, entity.ErrClaimAlreadyTerminal
	case claim.Status == entity.ClaimStatusExpired:
		return nil, entity.ErrClaimExpired
	case now.After(claim.ExpiresAt):
		// Свипер подхватит эту заявку на следующем проходе
		return nil, entity.ErrClaimExpired
	}

	if err := s.claimRepo.Redeem(ctx, claim.ID, staffID, now); err != nil {
		if errors.Is(err, entity.ErrClaimAlreadyTerminal) {
			return nil, entity.ErrClaimAlreadyTerminal
		}
		return nil, fmt.Errorf("failed to redeem claim: %w", err)
	}

	claim.Status = entity.ClaimStatusRedeemed
	claim.RedeemedAt = &now
	claim.StaffID = &staffID

	log.Printf("Claim redeemed: ID=%d, staff=%d", claim.ID, staffID)

	// Освобождаем код; TTL в Redis всё равно истёк бы вместе с заявкой
	if offer, err := s.offerRepo.GetByID(ctx, claim.OfferID); err == nil {
		if err := s.codeStore.Release(ctx, offer.VenueID, claim.SixCode); err != nil {
			log.Printf("Failed to release six-code for claim %d: %v", claim.ID, err)
		}
	}

	s.publishRedemptionEvent(claim)

	return claim, nil
}

func (s *redemptionService) publishRedemptionEvent(claim *entity.Claim) {
	if s.producer == nil {
		return
	}
	payload := map[string]interface{}{
		"event":    "claim_redeemed",
		"claim_id": claim.ID,
		"offer_id": claim.OfferID,
		"slot_id":  claim.SlotID,
		"user_id":  claim.UserID,
		"staff_id": claim.StaffID,
		"at":       time.Now().Format(time.RFC3339),
	}
	if err := s.producer.SendMessage("claim_redeemed", payload); err != nil {
		log.Printf("Failed to publish redemption event for claim %d: %v", claim.ID, err)
	}
}
