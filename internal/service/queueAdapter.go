package service

import (
	"context"

	"github.com/ds124wfegd/dealslot/pkg/queue"
)

// QueueAdapter адаптирует queue.Queue к TaskPublisher интерфейсу
type QueueAdapter struct {
	queue queue.Queue
}

// NewQueueAdapter создает новый адаптер для очереди
func NewQueueAdapter(q queue.Queue) *QueueAdapter {
	return &QueueAdapter{queue: q}
}

// Publish публикует задачу, преобразуя service.Task в queue.Task
func (a *QueueAdapter) Publish(ctx context.Context, task *Task) error {
	if a.queue == nil {
		return nil // Если очередь не инициализирована, игнорируем
	}

	queueTask := &queue.Task{
		ID:         task.ID,
		Type:       queue.TaskType(task.Type),
		Data:       task.Data,
		ExecuteAt:  task.ExecuteAt,
		MaxRetries: task.MaxRetries,
		Attempts:   task.Attempts,
	}

	return a.queue.Publish(ctx, queueTask)
}

// ClaimProviderAdapter exposes the claim lookups and the expiry transition
// to the queue's task handlers.
type ClaimProviderAdapter struct {
	reservation ReservationService
	sweeper     SweeperService
}

func NewClaimProviderAdapter(reservation ReservationService, sweeper SweeperService) *ClaimProviderAdapter {
	return &ClaimProviderAdapter{reservation: reservation, sweeper: sweeper}
}

func (a *ClaimProviderAdapter) GetClaimNotice(ctx context.Context, claimID int64) (*queue.ClaimNotice, error) {
	details, err := a.reservation.GetClaimDetails(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &queue.ClaimNotice{
		ClaimID:    details.Claim.ID,
		Status:     string(details.Claim.Status),
		OfferTitle: details.Offer.Title,
		SixCode:    details.Claim.SixCode,
		ExpiresAt:  details.Claim.ExpiresAt,
		TelegramID: details.User.TelegramID,
	}, nil
}

func (a *ClaimProviderAdapter) ExpireClaim(ctx context.Context, claimID int64) error {
	return a.sweeper.ExpireClaim(ctx, claimID)
}
