package codes

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerateSixCode тестирует формат шестизначного кода
func TestGenerateSixCode(t *testing.T) {
	format := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateSixCode()
		require.NoError(t, err)
		assert.Regexp(t, format, code)
	}
}

func TestGenerateQRToken(t *testing.T) {
	format := regexp.MustCompile(`^[0-9a-f]{32}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateQRToken()
		require.NoError(t, err)
		assert.Regexp(t, format, token)
		assert.False(t, seen[token], "token collision")
		seen[token] = true
	}
}

// TestStore_NoRedis: без Redis резервирование всегда проходит, уникальность
// держит частичный индекс в базе
func TestStore_NoRedis(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, 1, "123456", 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, store.Release(ctx, 1, "123456"))

	code, err := store.GenerateUnique(ctx, 1, 100, time.Minute, 3)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)
}

func TestStore_NilReceiver(t *testing.T) {
	var store *Store
	ctx := context.Background()

	ok, err := store.Reserve(ctx, 1, "123456", 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, store.Release(ctx, 1, "123456"))
}
