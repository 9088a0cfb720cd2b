package queue

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ClaimNotice carries the claim fields the handlers need for expiry checks
// and notification texts. Filled by the service layer.
type ClaimNotice struct {
	ClaimID    int64
	Status     string
	OfferTitle string
	SixCode    string
	ExpiresAt  time.Time
	TelegramID string
}

// ClaimProvider обрабатывает заявки из очереди
type ClaimProvider interface {
	GetClaimNotice(ctx context.Context, claimID int64) (*ClaimNotice, error)
	ExpireClaim(ctx context.Context, claimID int64) error
}

// TelegramBot интерфейс для Telegram бота
type TelegramBot interface {
	SendMessage(chatID, text string) error
}

// TaskHandler executes queued tasks: claim expirations and user notifications.
type TaskHandler struct {
	claims      ClaimProvider
	telegramBot TelegramBot
}

func NewTaskHandler(claims ClaimProvider, telegramBot TelegramBot) *TaskHandler {
	return &TaskHandler{
		claims:      claims,
		telegramBot: telegramBot,
	}
}

// HandleTask dispatches a task by its type.
func (h *TaskHandler) HandleTask(task *Task) error {
	log.Printf("Handling task %s of type %s (attempt %d/%d)",
		task.ID, task.Type, task.Attempts, task.MaxRetries)

	switch task.Type {
	case TaskTypeExpireClaim:
		return h.handleExpireClaim(task)
	case TaskTypeSendNotification:
		return h.handleSendNotification(task)
	case TaskTypeSlotEndingSoon:
		return h.handleSlotEndingSoon(task)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// handleExpireClaim expires a single claim when its TTL has elapsed. The
// sweeper is the safety net for claims whose task got lost.
func (h *TaskHandler) handleExpireClaim(task *Task) error {
	ctx := context.Background()

	claimID := task.GetInt64("claim_id")
	if claimID == 0 {
		return fmt.Errorf("invalid claim_id in task data")
	}

	notice, err := h.claims.GetClaimNotice(ctx, claimID)
	if err != nil {
		return fmt.Errorf("failed to get claim %d: %v", claimID, err)
	}

	// Редемпшен или ручное истечение могли опередить задачу
	if notice.Status != "reserved" {
		log.Printf("Claim %d is no longer reserved (status: %s), skipping expiration",
			claimID, notice.Status)
		return nil
	}

	if time.Now().Before(notice.ExpiresAt) {
		log.Printf("Claim %d has not expired yet (expires at: %s)",
			claimID, notice.ExpiresAt.Format(time.RFC3339))
		return nil
	}

	if err := h.claims.ExpireClaim(ctx, claimID); err != nil {
		return fmt.Errorf("failed to expire claim %d: %v", claimID, err)
	}

	log.Printf("Claim %d expired successfully", claimID)
	return nil
}

// handleSendNotification sends a Telegram message to the user named in the
// task data. Notification tasks carry their payload inline so a retried
// task does not depend on the current database state.
func (h *TaskHandler) handleSendNotification(task *Task) error {
	notificationType := task.GetString("notification_type")
	if notificationType == "" {
		return fmt.Errorf("invalid notification_type in task data")
	}

	telegramID := task.GetString("telegram_id")
	if telegramID == "" || h.telegramBot == nil {
		return nil // Пользователь без Telegram, уведомление не нужно
	}

	var message string
	switch notificationType {
	case "claim_created":
		message = fmt.Sprintf(
			"🎟 Claim reserved!\n\n"+
				"Offer: %s\n"+
				"Your code: %s\n"+
				"Valid until: %s\n\n"+
				"Show the code to the staff to redeem.",
			task.GetString("offer_title"),
			task.GetString("six_code"),
			task.GetTime("expires_at").Format("02.01.2006 at 15:04"),
		)
	case "claim_expired":
		message = fmt.Sprintf(
			"⏰ Claim expired\n\n"+
				"Offer: %s\n"+
				"Code %s is no longer valid.\n\n"+
				"You can reserve again if the offer still has availability.",
			task.GetString("offer_title"),
			task.GetString("six_code"),
		)
	case "waitlist_joined":
		message = fmt.Sprintf(
			"📋 You are on the waitlist\n\n"+
				"Offer: %s\n"+
				"Your position: %d\n\n"+
				"We will let you know as soon as a spot frees up.",
			task.GetString("offer_title"),
			task.GetInt64("position"),
		)
	case "waitlist_claimed":
		message = fmt.Sprintf(
			"🎟 A spot freed up and was reserved for you!\n\n"+
				"Offer: %s\n"+
				"Your code: %s\n"+
				"Valid until: %s",
			task.GetString("offer_title"),
			task.GetString("six_code"),
			task.GetTime("expires_at").Format("02.01.2006 at 15:04"),
		)
	case "waitlist_notified":
		message = fmt.Sprintf(
			"🔔 A spot freed up!\n\n"+
				"Offer: %s\n\n"+
				"Reserve it now before someone else does.",
			task.GetString("offer_title"),
		)
	default:
		return fmt.Errorf("unknown notification type: %s", notificationType)
	}

	if err := h.telegramBot.SendMessage(telegramID, message); err != nil {
		return fmt.Errorf("failed to send Telegram message: %v", err)
	}

	log.Printf("Sent %s notification to telegram user %s", notificationType, telegramID)
	return nil
}

// handleSlotEndingSoon reminds a claim holder that the slot window closes soon.
func (h *TaskHandler) handleSlotEndingSoon(task *Task) error {
	ctx := context.Background()

	claimID := task.GetInt64("claim_id")
	if claimID == 0 {
		return fmt.Errorf("invalid claim_id in task data")
	}

	notice, err := h.claims.GetClaimNotice(ctx, claimID)
	if err != nil {
		return fmt.Errorf("failed to get claim %d: %v", claimID, err)
	}

	// Reminders only make sense for claims that can still be redeemed
	if notice.Status != "reserved" {
		return nil
	}

	if notice.TelegramID == "" || h.telegramBot == nil {
		return nil
	}

	minutesLeft := int(time.Until(notice.ExpiresAt).Minutes())
	if minutesLeft <= 0 {
		return nil
	}

	message := fmt.Sprintf(
		"⏰ Slot ending soon\n\n"+
			"Offer: %s\n"+
			"Your code: %s\n"+
			"Time left: %d minutes\n\n"+
			"Redeem your claim before the window closes!",
		notice.OfferTitle,
		notice.SixCode,
		minutesLeft,
	)

	if err := h.telegramBot.SendMessage(notice.TelegramID, message); err != nil {
		return fmt.Errorf("failed to send reminder message: %v", err)
	}

	log.Printf("Sent slot-ending reminder for claim %d", claimID)
	return nil
}
