package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{name: "valid", task: Task{ID: "task_1", Type: TaskTypeExpireClaim}},
		{name: "missing id", task: Task{Type: TaskTypeExpireClaim}, wantErr: true},
		{name: "blank type", task: Task{ID: "task_1", Type: "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tt.task.Data)
		})
	}
}

// TestTaskDataAccessors: после JSON-раунда числа приходят как float64
func TestTaskDataAccessors(t *testing.T) {
	original := &Task{
		ID:   "task_1",
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{
			"claim_id":    int64(42),
			"telegram_id": "tg42",
			"expires_at":  "2026-09-01T12:00:00Z",
		},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, int64(42), decoded.GetInt64("claim_id"))
	assert.Equal(t, "tg42", decoded.GetString("telegram_id"))
	assert.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), decoded.GetTime("expires_at"))

	assert.Equal(t, int64(0), decoded.GetInt64("missing"))
	assert.Equal(t, "", decoded.GetString("missing"))
	assert.True(t, decoded.GetTime("missing").IsZero())
}

// TestRetryManager тестирует политику повторов с экспоненциальной задержкой
func TestRetryManager(t *testing.T) {
	rm := NewRetryManager(3, time.Second)

	t.Run("retries transient errors", func(t *testing.T) {
		task := &Task{ID: "task_1", Type: TaskTypeExpireClaim, MaxRetries: 3, Attempts: 1}
		retry, delay := rm.ShouldRetry(task, errors.New("connection refused"))
		assert.True(t, retry)
		assert.Greater(t, delay, time.Duration(0))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		task := &Task{ID: "task_1", Type: TaskTypeExpireClaim, MaxRetries: 3, Attempts: 3}
		retry, _ := rm.ShouldRetry(task, errors.New("connection refused"))
		assert.False(t, retry)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		task := &Task{ID: "task_1", Type: TaskTypeExpireClaim, MaxRetries: 3, Attempts: 0}

		for _, msg := range []string{
			"claim not found",
			"claim already redeemed or expired",
			"invalid credential",
			"claim no longer valid",
		} {
			retry, _ := rm.ShouldRetry(task, errors.New(msg))
			assert.False(t, retry, "error %q must not be retried", msg)
		}
	})

	t.Run("backoff stays within bounds", func(t *testing.T) {
		task := &Task{ID: "task_1", Type: TaskTypeExpireClaim, MaxRetries: 10}
		for attempt := 0; attempt < 10; attempt++ {
			task.Attempts = attempt
			retry, delay := rm.ShouldRetry(task, errors.New("timeout"))
			require.True(t, retry)
			assert.LessOrEqual(t, delay, 16*time.Second)
			assert.GreaterOrEqual(t, delay, time.Duration(0))
		}
	})
}
