package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaimProvider struct {
	notices map[int64]*ClaimNotice
	expired []int64
}

func (p *fakeClaimProvider) GetClaimNotice(ctx context.Context, claimID int64) (*ClaimNotice, error) {
	notice, ok := p.notices[claimID]
	if !ok {
		return nil, errors.New("claim not found")
	}
	return notice, nil
}

func (p *fakeClaimProvider) ExpireClaim(ctx context.Context, claimID int64) error {
	p.expired = append(p.expired, claimID)
	return nil
}

type fakeBot struct {
	messages []string
	chats    []string
}

func (b *fakeBot) SendMessage(chatID, text string) error {
	b.chats = append(b.chats, chatID)
	b.messages = append(b.messages, text)
	return nil
}

// TestHandleExpireClaim тестирует отложенное истечение заявки
func TestHandleExpireClaim(t *testing.T) {
	tests := []struct {
		name       string
		notice     *ClaimNotice
		wantExpire bool
	}{
		{
			name:       "reserved past ttl is expired",
			notice:     &ClaimNotice{ClaimID: 1, Status: "reserved", ExpiresAt: time.Now().Add(-time.Minute)},
			wantExpire: true,
		},
		{
			name:   "redeemed claim is skipped",
			notice: &ClaimNotice{ClaimID: 1, Status: "redeemed", ExpiresAt: time.Now().Add(-time.Minute)},
		},
		{
			name:   "not yet expired is skipped",
			notice: &ClaimNotice{ClaimID: 1, Status: "reserved", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeClaimProvider{notices: map[int64]*ClaimNotice{1: tt.notice}}
			handler := NewTaskHandler(provider, &fakeBot{})

			task := &Task{
				ID:   "task_1",
				Type: TaskTypeExpireClaim,
				Data: map[string]interface{}{"claim_id": int64(1)},
			}
			require.NoError(t, handler.HandleTask(task))

			if tt.wantExpire {
				assert.Equal(t, []int64{1}, provider.expired)
			} else {
				assert.Empty(t, provider.expired)
			}
		})
	}
}

func TestHandleExpireClaim_BadData(t *testing.T) {
	handler := NewTaskHandler(&fakeClaimProvider{notices: map[int64]*ClaimNotice{}}, nil)

	err := handler.HandleTask(&Task{ID: "task_1", Type: TaskTypeExpireClaim, Data: map[string]interface{}{}})
	assert.Error(t, err)

	err = handler.HandleTask(&Task{
		ID:   "task_2",
		Type: TaskTypeExpireClaim,
		Data: map[string]interface{}{"claim_id": int64(99)},
	})
	assert.Error(t, err)
}

// TestHandleSendNotification тестирует отправку уведомлений в Telegram
func TestHandleSendNotification(t *testing.T) {
	bot := &fakeBot{}
	handler := NewTaskHandler(&fakeClaimProvider{}, bot)

	task := &Task{
		ID:   "task_1",
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{
			"notification_type": "claim_created",
			"telegram_id":       "tg100",
			"offer_title":       "Flash lunch",
			"six_code":          "123456",
			"expires_at":        time.Now().Add(15 * time.Minute).Format(time.RFC3339),
		},
	}
	require.NoError(t, handler.HandleTask(task))

	require.Len(t, bot.messages, 1)
	assert.Equal(t, "tg100", bot.chats[0])
	assert.Contains(t, bot.messages[0], "Flash lunch")
	assert.Contains(t, bot.messages[0], "123456")
}

func TestHandleSendNotification_Skips(t *testing.T) {
	bot := &fakeBot{}
	handler := NewTaskHandler(&fakeClaimProvider{}, bot)

	// Пользователь без Telegram: не ошибка, сообщение не отправляется
	task := &Task{
		ID:   "task_1",
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{"notification_type": "claim_created"},
	}
	require.NoError(t, handler.HandleTask(task))
	assert.Empty(t, bot.messages)

	// Неизвестный тип уведомления — постоянная ошибка
	task = &Task{
		ID:   "task_2",
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{
			"notification_type": "mystery",
			"telegram_id":       "tg100",
		},
	}
	assert.Error(t, handler.HandleTask(task))
}

func TestHandleSlotEndingSoon(t *testing.T) {
	provider := &fakeClaimProvider{notices: map[int64]*ClaimNotice{
		1: {
			ClaimID:    1,
			Status:     "reserved",
			OfferTitle: "Happy hour",
			SixCode:    "654321",
			ExpiresAt:  time.Now().Add(4 * time.Minute),
			TelegramID: "tg100",
		},
		2: {ClaimID: 2, Status: "redeemed", TelegramID: "tg100"},
	}}
	bot := &fakeBot{}
	handler := NewTaskHandler(provider, bot)

	require.NoError(t, handler.HandleTask(&Task{
		ID:   "task_1",
		Type: TaskTypeSlotEndingSoon,
		Data: map[string]interface{}{"claim_id": int64(1)},
	}))
	require.Len(t, bot.messages, 1)
	assert.Contains(t, bot.messages[0], "Happy hour")

	// Погашенная заявка напоминания не получает
	require.NoError(t, handler.HandleTask(&Task{
		ID:   "task_2",
		Type: TaskTypeSlotEndingSoon,
		Data: map[string]interface{}{"claim_id": int64(2)},
	}))
	assert.Len(t, bot.messages, 1)
}

func TestHandleTask_UnknownType(t *testing.T) {
	handler := NewTaskHandler(&fakeClaimProvider{}, nil)
	err := handler.HandleTask(&Task{ID: "task_1", Type: "mystery"})
	assert.Error(t, err)
}
