package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/dealslot/internal/entity"
)

func backdateClaim(f *fixture, claimID int64) {
	f.store.mu.Lock()
	f.store.claims[claimID].ExpiresAt = time.Now().Add(-time.Minute)
	f.store.mu.Unlock()
}

// TestSweepExpired_ReclaimsInventory тестирует возврат единиц в слот по истечении TTL
func TestSweepExpired_ReclaimsInventory(t *testing.T) {
	f := newFixture(0)
	f.store.addOffer(&entity.Offer{ID: 1, VenueID: 10, Title: "Expiring deal"})
	f.store.addUser(&entity.User{ID: 100, TelegramID: "tg100"})
	slot := f.liveSlot(1, 2)

	claim := reserveOne(t, f, 1, 100)
	require.Equal(t, 1, f.store.slot(slot.ID).QtyRemaining)

	backdateClaim(f, claim.ID)

	result, err := f.sweeper.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredCount)
	assert.Equal(t, 1, result.ReclaimedUnits)
	assert.Equal(t, 0, result.FailedCount)

	assert.Equal(t, entity.ClaimStatusExpired, f.store.claim(claim.ID).Status)
	assert.Equal(t, 2, f.store.slot(slot.ID).QtyRemaining)

	// Уведомление об истечении запланировано
	var kinds []string
	for _, task := range f.publisher.byType(TaskTypeSendNotification) {
		kinds = append(kinds, task.Data["notification_type"].(string))
	}
	assert.Contains(t, kinds, "claim_expired")
}

// TestSweepExpired_Idempotent: повторный проход ничего не возвращает дважды
func TestSweepExpired_Idempotent(t *testing.T) {
	f := newFixture(0)
	f.store.addOffer(&entity.Offer{ID: 1})
	f.store.addUser(&entity.User{ID: 100})
	slot := f.liveSlot(1, 1)

	claim := reserveOne(t, f, 1, 100)
	backdateClaim(f, claim.ID)

	ctx := context.Background()
	first, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReclaimedUnits)

	second, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ExpiredCount)
	assert.Equal(t, 0, second.ReclaimedUnits)

	assert.Equal(t, 1, f.store.slot(slot.ID).QtyRemaining)
}

// TestSweepExpired_SkipsLiveAndTerminal: живые и погашенные заявки не трогаются
func TestSweepExpired_SkipsLiveAndTerminal(t *testing.T) {
	f := newFixture(0)
	f.store.addOffer(&entity.Offer{ID: 1})
	f.store.addUser(&entity.User{ID: 100})
	f.store.addUser(&entity.User{ID: 101})
	f.store.addUser(&entity.User{ID: 500, Role: entity.UserRoleStaff})
	f.liveSlot(1, 3)

	live := reserveOne(t, f, 1, 100)
	redeemed := reserveOne(t, f, 1, 101)

	ctx := context.Background()
	_, err := f.redemption.Redeem(ctx, redeemed.SixCode, 500)
	require.NoError(t, err)

	result, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExpiredCount)

	assert.Equal(t, entity.ClaimStatusReserved, f.store.claim(live.ID).Status)
	assert.Equal(t, entity.ClaimStatusRedeemed, f.store.claim(redeemed.ID).Status)
}

// TestSweepExpired_FailureIsolation: сбой на одной заявке не срывает проход
func TestSweepExpired_FailureIsolation(t *testing.T) {
	f := newFixture(0)
	f.store.addOffer(&entity.Offer{ID: 1})
	f.store.addUser(&entity.User{ID: 100})
	f.store.addUser(&entity.User{ID: 101})
	f.liveSlot(1, 2)

	broken := reserveOne(t, f, 1, 100)
	healthy := reserveOne(t, f, 1, 101)
	backdateClaim(f, broken.ID)
	backdateClaim(f, healthy.ID)

	f.store.mu.Lock()
	f.store.failExpireFor[broken.ID] = true
	f.store.mu.Unlock()

	result, err := f.sweeper.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredCount)
	assert.Equal(t, 1, result.FailedCount)

	assert.Equal(t, entity.ClaimStatusExpired, f.store.claim(healthy.ID).Status)
	assert.Equal(t, entity.ClaimStatusReserved, f.store.claim(broken.ID).Status)
}

// TestSweepExpired_PromotesWaitlist: возвращённая единица уходит голове очереди
func TestSweepExpired_PromotesWaitlist(t *testing.T) {
	f := newFixture(0)
	f.store.addOffer(&entity.Offer{ID: 1})
	f.store.addUser(&entity.User{ID: 100})
	f.store.addUser(&entity.User{ID: 101})
	slot := f.liveSlot(1, 1)

	claim := reserveOne(t, f, 1, 100)

	ctx := context.Background()
	_, err := f.waitlist.Join(ctx, 1, 101, true)
	require.NoError(t, err)

	backdateClaim(f, claim.ID)

	result, err := f.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ReclaimedUnits)

	// Единица не задержалась в общем остатке
	assert.Equal(t, 0, f.store.slot(slot.ID).QtyRemaining)

	claims, err := f.reservation.GetUserClaims(ctx, 101)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, entity.ClaimStatusReserved, claims[0].Status)
}

// TestExpireClaim_SingleTask тестирует точечное истечение из отложенной задачи
func TestExpireClaim_SingleTask(t *testing.T) {
	f := newFixture(0)
	f.store.addOffer(&entity.Offer{ID: 1})
	f.store.addUser(&entity.User{ID: 100})
	slot := f.liveSlot(1, 1)

	claim := reserveOne(t, f, 1, 100)
	ctx := context.Background()

	// Срок ещё не наступил: ничего не происходит
	require.NoError(t, f.sweeper.ExpireClaim(ctx, claim.ID))
	assert.Equal(t, entity.ClaimStatusReserved, f.store.claim(claim.ID).Status)

	backdateClaim(f, claim.ID)

	require.NoError(t, f.sweeper.ExpireClaim(ctx, claim.ID))
	assert.Equal(t, entity.ClaimStatusExpired, f.store.claim(claim.ID).Status)
	assert.Equal(t, 1, f.store.slot(slot.ID).QtyRemaining)

	// Повторный вызов безвреден
	require.NoError(t, f.sweeper.ExpireClaim(ctx, claim.ID))
	assert.Equal(t, 1, f.store.slot(slot.ID).QtyRemaining)

	assert.ErrorIs(t, f.sweeper.ExpireClaim(ctx, 9999), entity.ErrClaimNotFound)
}
