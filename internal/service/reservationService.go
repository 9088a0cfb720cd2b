package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	repository "github.com/ds124wfegd/dealslot/internal/database/postgres"
	"github.com/ds124wfegd/dealslot/internal/entity"
	"github.com/ds124wfegd/dealslot/pkg/codes"
	"github.com/ds124wfegd/dealslot/pkg/kafka"
)

// ReserveRequest представляет данные для резервирования заявки
type ReserveRequest struct {
	OfferID int64 `json:"offer_id" binding:"required"`
	UserID  int64 `json:"user_id"`

	// JoinWaitlist requests waitlist enrollment instead of a hard failure
	// when the offer has no claimable inventory.
	JoinWaitlist bool `json:"join_waitlist"`
	AutoClaim    bool `json:"auto_claim"`
}

// ReserveResult is either a claim or a waitlist placement, never both.
type ReserveResult struct {
	Claim      *entity.Claim `json:"claim,omitempty"`
	Waitlisted bool          `json:"waitlisted"`
	Position   int           `json:"position,omitempty"`
}

// ClaimDetails представляет детальную информацию о заявке
type ClaimDetails struct {
	Claim    *entity.Claim `json:"claim"`
	Offer    *entity.Offer `json:"offer"`
	User     *entity.User  `json:"user"`
	TimeLeft time.Duration `json:"time_left,omitempty"`
	Expired  bool          `json:"expired"`
}

// TaskPublisher интерфейс для публикации задач в очередь
type TaskPublisher interface {
	Publish(ctx context.Context, task *Task) error
}

// Task представляет задачу для очереди
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	MaxRetries int                    `json:"max_retries"`
	Attempts   int                    `json:"attempts"`
}

// Константы типов задач
const (
	TaskTypeExpireClaim      = "expire_claim"
	TaskTypeSendNotification = "send_notification"
	TaskTypeSlotEndingSoon   = "slot_ending_soon"
)

const sixCodeAttempts = 8

type reservationService struct {
	claimRepo    repository.ClaimRepository
	slotRepo     repository.SlotRepository
	offerRepo    repository.OfferRepository
	userRepo     repository.UserRepository
	waitlistRepo repository.WaitlistRepository
	codeStore    *codes.Store
	queue        TaskPublisher
	producer     kafka.Producer
	claimTTL     time.Duration
}

// NewReservationService создает новый экземпляр ReservationService
func NewReservationService(
	claimRepo repository.ClaimRepository,
	slotRepo repository.SlotRepository,
	offerRepo repository.OfferRepository,
	userRepo repository.UserRepository,
	waitlistRepo repository.WaitlistRepository,
	codeStore *codes.Store,
	queue TaskPublisher,
	producer kafka.Producer,
	claimTTL time.Duration,
) ReservationService {
	if claimTTL <= 0 {
		claimTTL = 15 * time.Minute
	}
	return &reservationService{
		claimRepo:    claimRepo,
		slotRepo:     slotRepo,
		offerRepo:    offerRepo,
		userRepo:     userRepo,
		waitlistRepo: waitlistRepo,
		codeStore:    codeStore,
		queue:        queue,
		producer:     producer,
		claimTTL:     claimTTL,
	}
}

// Reserve consumes one unit of live slot inventory for the user. The
// decrement and the claim insert are one transaction in the repository;
// everything before it is a short-circuiting precondition chain and
// everything after it is fire-and-forget.
func (s *reservationService) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResult, error) {
	now := time.Now()

	offer, err := s.offerRepo.GetByID(ctx, req.OfferID)
	if err != nil {
		return nil, fmt.Errorf("offer lookup failed: %w", err)
	}
	if !offer.IsActive() {
		return nil, entity.ErrOfferInactive
	}

	user, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	slot, err := s.slotRepo.FindLiveSlot(ctx, req.OfferID, now)
	if err != nil {
		if errors.Is(err, entity.ErrSlotNotFound) {
			return s.soldOutFallback(ctx, req)
		}
		return nil, fmt.Errorf("slot lookup failed: %w", err)
	}

	if err := s.checkLimits(ctx, offer, req.UserID, now); err != nil {
		return nil, err
	}

	claim, err := s.buildClaim(ctx, offer, slot, req.UserID, now)
	if err != nil {
		return nil, err
	}

	if err := s.claimRepo.Reserve(ctx, claim); err != nil {
		if releaseErr := s.codeStore.Release(ctx, offer.VenueID, claim.SixCode); releaseErr != nil {
			log.Printf("Failed to release six-code %s after reserve failure: %v", claim.SixCode, releaseErr)
		}
		if errors.Is(err, entity.ErrSoldOut) {
			// Проиграли гонку за последнюю единицу
			return s.soldOutFallback(ctx, req)
		}
		return nil, fmt.Errorf("failed to reserve claim: %w", err)
	}

	log.Printf("Claim reserved: ID=%d, Offer=%d, Slot=%d, User=%d, ExpiresAt=%s",
		claim.ID, claim.OfferID, claim.SlotID, claim.UserID, claim.ExpiresAt.Format(time.RFC3339))

	s.publishClaimEvent("claim_created", claim)

	if s.queue != nil {
		if err := s.scheduleClaimTasks(ctx, claim, offer, user); err != nil {
			log.Printf("Failed to schedule claim tasks: %v", err)
		}
	}

	return &ReserveResult{Claim: claim}, nil
}

// checkLimits enforces the offer's claim policy in order: per-user cap,
// cooldown, global cap.
func (s *reservationService) checkLimits(ctx context.Context, offer *entity.Offer, userID int64, now time.Time) error {
	if offer.PerUserLimit > 0 {
		count, err := s.claimRepo.CountActiveByOfferAndUser(ctx, offer.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to count user claims: %w", err)
		}
		if count >= offer.PerUserLimit {
			return entity.ErrPerUserLimit
		}
	}

	if offer.CooldownMinutes > 0 {
		last, err := s.claimRepo.LastClaimAt(ctx, offer.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to check claim cooldown: %w", err)
		}
		if last != nil && now.Sub(*last) < time.Duration(offer.CooldownMinutes)*time.Minute {
			return entity.ErrCooldownActive
		}
	}

	if offer.ClaimLimitGlobal > 0 {
		count, err := s.claimRepo.CountActiveByOffer(ctx, offer.ID)
		if err != nil {
			return fmt.Errorf("failed to count offer claims: %w", err)
		}
		if count >= offer.ClaimLimitGlobal {
			return entity.ErrGlobalLimit
		}
	}

	return nil
}

func (s *reservationService) buildClaim(ctx context.Context, offer *entity.Offer, slot *entity.OfferSlot, userID int64, now time.Time) (*entity.Claim, error) {
	sixCode, err := s.codeStore.GenerateUnique(ctx, offer.VenueID, userID, s.claimTTL, sixCodeAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate six-code: %w", err)
	}

	qrToken, err := codes.GenerateQRToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate qr token: %w", err)
	}

	return &entity.Claim{
		OfferID:    offer.ID,
		SlotID:     slot.ID,
		UserID:     userID,
		Status:     entity.ClaimStatusReserved,
		SixCode:    sixCode,
		QRToken:    qrToken,
		ReservedAt: now,
		ExpiresAt:  now.Add(s.claimTTL),
	}, nil
}

// soldOutFallback offers waitlist enrollment instead of a hard conflict
// when requested; otherwise the race outcome surfaces as-is.
func (s *reservationService) soldOutFallback(ctx context.Context, req *ReserveRequest) (*ReserveResult, error) {
	if !req.JoinWaitlist {
		return nil, entity.ErrSoldOut
	}

	existing, err := s.waitlistRepo.GetByOfferAndUser(ctx, req.OfferID, req.UserID)
	if err == nil && existing.InQueue() {
		return &ReserveResult{Waitlisted: true, Position: existing.Position}, nil
	}

	entry := &entity.WaitlistEntry{
		OfferID:   req.OfferID,
		UserID:    req.UserID,
		AutoClaim: req.AutoClaim,
		Status:    entity.WaitlistStatusWaiting,
	}
	if err := s.waitlistRepo.Join(ctx, entry); err != nil {
		if errors.Is(err, entity.ErrAlreadyWaiting) {
			return nil, entity.ErrAlreadyWaiting
		}
		return nil, fmt.Errorf("failed to join waitlist: %w", err)
	}

	log.Printf("User %d waitlisted for offer %d at position %d", req.UserID, req.OfferID, entry.Position)
	return &ReserveResult{Waitlisted: true, Position: entry.Position}, nil
}

// scheduleClaimTasks планирует задачи для заявки
func (s *reservationService) scheduleClaimTasks(ctx context.Context, claim *entity.Claim, offer *entity.Offer, user *entity.User) error {
	// Задача на истечение срока заявки; свипер подстрахует при потере
	expirationTask := &Task{
		ID:   fmt.Sprintf("expire_claim_%d_%d", claim.ID, time.Now().Unix()),
		Type: TaskTypeExpireClaim,
		Data: map[string]interface{}{
			"claim_id":   claim.ID,
			"offer_id":   claim.OfferID,
			"slot_id":    claim.SlotID,
			"expires_at": claim.ExpiresAt.Format(time.RFC3339),
		},
		ExecuteAt:  claim.ExpiresAt,
		MaxRetries: 3,
	}
	if err := s.queue.Publish(ctx, expirationTask); err != nil {
		return fmt.Errorf("failed to schedule expiration task: %w", err)
	}

	if user.TelegramID != "" {
		notificationTask := &Task{
			ID:   fmt.Sprintf("notification_claim_created_%d_%d", claim.ID, time.Now().Unix()),
			Type: TaskTypeSendNotification,
			Data: map[string]interface{}{
				"notification_type": "claim_created",
				"claim_id":          claim.ID,
				"telegram_id":       user.TelegramID,
				"offer_title":       offer.Title,
				"six_code":          claim.SixCode,
				"expires_at":        claim.ExpiresAt.Format(time.RFC3339),
			},
			ExecuteAt:  time.Now().Add(5 * time.Second),
			MaxRetries: 3,
		}
		if err := s.queue.Publish(ctx, notificationTask); err != nil {
			return fmt.Errorf("failed to schedule notification task: %w", err)
		}

		// Напоминание за 5 минут до истечения
		reminderAt := claim.ExpiresAt.Add(-5 * time.Minute)
		if reminderAt.After(time.Now()) {
			reminderTask := &Task{
				ID:   fmt.Sprintf("reminder_claim_%d_%d", claim.ID, time.Now().Unix()),
				Type: TaskTypeSlotEndingSoon,
				Data: map[string]interface{}{
					"claim_id": claim.ID,
				},
				ExecuteAt:  reminderAt,
				MaxRetries: 2,
			}
			if err := s.queue.Publish(ctx, reminderTask); err != nil {
				return fmt.Errorf("failed to schedule reminder task: %w", err)
			}
		}
	}

	return nil
}

func (s *reservationService) publishClaimEvent(event string, claim *entity.Claim) {
	if s.producer == nil {
		return
	}
	payload := map[string]interface{}{
		"event":    event,
		"claim_id": claim.ID,
		"offer_id": claim.OfferID,
		"slot_id":  claim.SlotID,
		"user_id":  claim.UserID,
		"status":   claim.Status,
		"at":       time.Now().Format(time.RFC3339),
	}
	if err := s.producer.SendMessage(event, payload); err != nil {
		log.Printf("Failed to publish %s event for claim %d: %v", event, claim.ID, err)
	}
}

// GetClaim возвращает заявку по ID
func (s *reservationService) GetClaim(ctx context.Context, id int64) (*entity.Claim, error) {
	claim, err := s.claimRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}

// GetUserClaims возвращает все заявки пользователя
func (s *reservationService) GetUserClaims(ctx context.Context, userID int64) ([]*entity.Claim, error) {
	claims, err := s.claimRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user claims: %w", err)
	}
	return claims, nil
}

// GetClaimDetails возвращает детальную информацию о заявке
func (s *reservationService) GetClaimDetails(ctx context.Context, id int64) (*ClaimDetails, error) {
	claim, err := s.claimRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	offer, err := s.offerRepo.GetByID(ctx, claim.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, claim.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	details := &ClaimDetails{
		Claim: claim,
		Offer: offer,
		User:  user,
	}
	if claim.Status == entity.ClaimStatusReserved {
		details.TimeLeft = time.Until(claim.ExpiresAt)
		details.Expired = details.TimeLeft <= 0
	} else {
		details.Expired = claim.Status == entity.ClaimStatusExpired
	}

	return details, nil
}
