package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membergate/membergate/pkg/subscription"
)

func TestRunPromotionTick_PromotesIntoFreedCapacity(t *testing.T) {
	t.Parallel()

	tiers := map[subscription.Tier]subscription.TierConfig{
		subscription.TierVIP: {Price: 2999, Platform: "paddle", Ceiling: 1, ChurnRate: 0.05},
	}
	f := newFixture(tiers, subscription.Config{}, nil)

	holder := uuid.New()
	held, err := f.svc.RequestSubscription(context.Background(), holder, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	waiting := uuid.New()
	queued, err := f.svc.RequestSubscription(context.Background(), waiting, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	require.NotNil(t, queued.WaitingEntry)

	// Nothing free yet: the tick must not over-admit.
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))
	_, err = f.svc.GetUserSubscription(context.Background(), waiting)
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	// Cancellation frees the slot.
	require.NoError(t, f.svc.CancelSubscription(context.Background(), held.Subscription.ID, "moving on"))
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	promoted, err := f.svc.GetUserSubscription(context.Background(), waiting)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierVIP, promoted.Tier)
	assert.Equal(t, subscription.StatusActive, promoted.Status)
	assert.Equal(t, "waiting_list_promotion", promoted.PaymentMethod)
	assert.Equal(t, 10, promoted.Metadata.DiscountPercent)
	// 2999 minus the 10 percent promotional discount.
	assert.Equal(t, int64(2700), promoted.NextBillingAmount)
	assert.Equal(t, queued.WaitingEntry.ID.String(), promoted.Metadata.OriginalPurchaseID)

	// The entry is consumed.
	_, err = f.svc.GetUserWaitingListStatus(context.Background(), waiting)
	require.ErrorIs(t, err, subscription.ErrEntryNotFound)

	assert.Equal(t, 1, f.notifier.Count(subscription.EventWaitingListPromoted))
}

func TestRunPromotionTick_DequeuesByPriorityThenArrival(t *testing.T) {
	t.Parallel()

	tiers := map[subscription.Tier]subscription.TierConfig{
		subscription.TierVIP: {Price: 2999, Platform: "paddle", Ceiling: 1},
	}
	f := newFixture(tiers, subscription.Config{}, nil)

	holder, err := f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	normalUser := uuid.New()
	urgentUser := uuid.New()

	_, err = f.svc.RequestSubscription(context.Background(), normalUser, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	f.clock.Advance(1)
	_, err = f.svc.RequestSubscription(context.Background(), urgentUser, subscription.TierVIP, subscription.PaymentDetails{
		Priority: subscription.PriorityUrgent,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelSubscription(context.Background(), holder.Subscription.ID, ""))
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	// The urgent entry jumps the earlier normal one.
	_, err = f.svc.GetUserSubscription(context.Background(), urgentUser)
	require.NoError(t, err)
	_, err = f.svc.GetUserSubscription(context.Background(), normalUser)
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	entry, err := f.svc.GetUserWaitingListStatus(context.Background(), normalUser)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Position)
}

func TestRunPromotionTick_StopsAtCeiling(t *testing.T) {
	t.Parallel()

	tiers := map[subscription.Tier]subscription.TierConfig{
		subscription.TierVIP: {Price: 2999, Platform: "paddle", Ceiling: 2},
	}
	f := newFixture(tiers, subscription.Config{}, nil)

	first, err := f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	_, err = f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	for range 3 {
		f.clock.Advance(1)
		_, err = f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
		require.NoError(t, err)
	}

	// One slot frees; exactly one of the three waiting users gets in.
	require.NoError(t, f.svc.CancelSubscription(context.Background(), first.Subscription.ID, ""))
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	_, perTier, err := f.ledger.CountOccupied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, perTier[subscription.TierVIP])

	counts, err := f.waitlist.CountByTier(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[subscription.TierVIP])
}

func TestRunPromotionTick_PendingRenewalKeepsItsSlot(t *testing.T) {
	t.Parallel()

	tiers := map[subscription.Tier]subscription.TierConfig{
		subscription.TierVIP: {Price: 2999, Platform: "paddle", Ceiling: 1},
	}
	payment := decliningPayment("card_declined")
	f := newFixture(tiers, subscription.Config{}, payment)

	holderID := uuid.New()
	holder, err := f.svc.RequestSubscription(context.Background(), holderID, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	waiting := uuid.New()
	_, err = f.svc.RequestSubscription(context.Background(), waiting, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	// A failed renewal parks the holder in pending_renewal. The slot is
	// still theirs while the retry plays out.
	f.clock.Set(holder.Subscription.RenewalDue)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	mid, err := f.svc.GetSubscription(context.Background(), holder.Subscription.ID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusPendingRenewal, mid.Status)

	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	// The waiting user was not promoted into the occupied slot.
	_, err = f.svc.GetUserSubscription(context.Background(), waiting)
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	// The retry succeeds and the holder reactivates without ever
	// sharing the slot.
	payment.charge = nil
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	reactivated, err := f.svc.GetSubscription(context.Background(), holder.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, reactivated.Status)

	total, perTier, err := f.ledger.CountOccupied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, perTier[subscription.TierVIP])

	counts, err := f.waitlist.CountByTier(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[subscription.TierVIP])
}

func TestRunPromotionTick_NoopWithoutDemand(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, nil)

	_, err := f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierPremium, subscription.PaymentDetails{})
	require.NoError(t, err)

	require.NoError(t, f.svc.RunPromotionTick(context.Background()))
	assert.Zero(t, f.notifier.Count(subscription.EventWaitingListPromoted))
}

func TestRunPromotionTick_EmergencyModeBlocksPromotion(t *testing.T) {
	t.Parallel()

	tiers := map[subscription.Tier]subscription.TierConfig{
		subscription.TierVIP: {Price: 2999, Platform: "paddle", Ceiling: 1},
	}
	f := newFixture(tiers, subscription.Config{}, nil)

	holder, err := f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	waiting := uuid.New()
	_, err = f.svc.RequestSubscription(context.Background(), waiting, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelSubscription(context.Background(), holder.Subscription.ID, ""))

	f.svc.SetEmergencyMode(true)
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	// The slot is free but emergency mode holds the line.
	_, err = f.svc.GetUserSubscription(context.Background(), waiting)
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	f.svc.SetEmergencyMode(false)
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	_, err = f.svc.GetUserSubscription(context.Background(), waiting)
	require.NoError(t, err)
}

func TestRunPromotionTick_ClearsDemandFlagWhenDrained(t *testing.T) {
	t.Parallel()

	tiers := map[subscription.Tier]subscription.TierConfig{
		subscription.TierVIP: {Price: 2999, Platform: "paddle", Ceiling: 1},
	}
	f := newFixture(tiers, subscription.Config{}, nil)

	holder, err := f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	_, err = f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)

	status, err := f.svc.GetCapacityStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.WaitingListActive)

	require.NoError(t, f.svc.CancelSubscription(context.Background(), holder.Subscription.ID, ""))
	require.NoError(t, f.svc.RunPromotionTick(context.Background()))

	status, err = f.svc.GetCapacityStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.WaitingListActive)
}
