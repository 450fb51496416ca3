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

// admitOne creates an active subscription and moves the clock to its
// renewal due timestamp.
func admitOne(t *testing.T, f *fixture, userID uuid.UUID) *subscription.Subscription {
	t.Helper()

	result, err := f.svc.RequestSubscription(context.Background(), userID, subscription.TierPremium, subscription.PaymentDetails{})
	require.NoError(t, err)
	require.NotNil(t, result.Subscription)

	f.clock.Set(result.Subscription.RenewalDue)
	return result.Subscription
}

func TestRunRenewalTick_SuccessExtendsPeriod(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, nil)
	userID := uuid.New()
	sub := admitOne(t, f, userID)

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	renewed, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)

	now := f.clock.Now()
	assert.Equal(t, subscription.StatusActive, renewed.Status)
	assert.Equal(t, now.AddDate(0, 1, 0), renewed.PeriodEnd)
	assert.Equal(t, renewed.PeriodEnd.Add(-72*time.Hour), renewed.RenewalDue)
	assert.Zero(t, renewed.RenewalAttempts)
	assert.Empty(t, renewed.FailureReason)
	assert.Equal(t, 1, renewed.Metadata.RenewalCount)
	require.NotNil(t, renewed.LastPaymentAt)
	assert.Equal(t, now, *renewed.LastPaymentAt)

	assert.Equal(t, 1, f.payment.Calls())
	assert.Equal(t, 1, f.notifier.Count(subscription.EventSubscriptionRenewed))
}

func TestRunRenewalTick_FailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, decliningPayment("card_declined"))
	sub := admitOne(t, f, uuid.New())

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	failed, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusPendingRenewal, failed.Status)
	assert.Equal(t, 1, failed.RenewalAttempts)
	assert.Equal(t, "card_declined", failed.FailureReason)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), failed.RenewalDue)
	// The paid period is untouched by a failed attempt.
	assert.Equal(t, sub.PeriodEnd, failed.PeriodEnd)
}

func TestRunRenewalTick_IsIdempotentWithinRetryWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, decliningPayment("card_declined"))
	admitOne(t, f, uuid.New())

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	// The failed attempt pushed the due timestamp a day out, so repeated
	// ticks within the window charge exactly once.
	assert.Equal(t, 1, f.payment.Calls())
}

func TestRunRenewalTick_RecoversAfterTwoFailures(t *testing.T) {
	t.Parallel()

	payment := decliningPayment("insufficient_funds")
	f := newFixture(defaultTiers(), subscription.Config{}, payment)
	sub := admitOne(t, f, uuid.New())

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	mid, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, mid.RenewalAttempts)
	assert.Equal(t, subscription.StatusPendingRenewal, mid.Status)

	// Third attempt goes through.
	payment.charge = nil
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	renewed, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, renewed.Status)
	assert.Zero(t, renewed.RenewalAttempts)
	assert.Equal(t, 1, renewed.Metadata.RenewalCount)
	assert.Equal(t, f.clock.Now().AddDate(0, 1, 0), renewed.PeriodEnd)
	assert.Equal(t, 3, f.payment.Calls())
}

func TestRunRenewalTick_SuspendsAfterExhaustedAttempts(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, decliningPayment("card_declined"))
	userID := uuid.New()
	sub := admitOne(t, f, userID)

	for range 3 {
		require.NoError(t, f.svc.RunRenewalTick(context.Background()))
		f.clock.Advance(24 * time.Hour)
	}

	suspended, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusSuspended, suspended.Status)
	assert.Equal(t, 3, suspended.RenewalAttempts)

	tier, ok := f.catalog.Downgrade(userID)
	require.True(t, ok)
	assert.Equal(t, subscription.TierFree, tier)

	assert.Equal(t, 1, f.notifier.Count(subscription.EventSubscriptionSuspended))
	assert.Equal(t, 3, f.payment.Calls())

	// A suspended subscription is never picked up again.
	f.clock.Advance(48 * time.Hour)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))
	assert.Equal(t, 3, f.payment.Calls())
}

func TestRunRenewalTick_ConcurrentCancellationWins(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, nil)
	sub := admitOne(t, f, uuid.New())

	// Simulate an out-of-process cancellation landing while the charge is
	// in flight: the provider writes the cancelled record straight into
	// the ledger before reporting success.
	f.payment.charge = func(ctx context.Context, req subscription.ChargeRequest) (subscription.ChargeResult, error) {
		current, err := f.ledger.Get(ctx, req.SubscriptionID)
		require.NoError(t, err)
		current.Status = subscription.StatusCancelled
		current.AutoRenewal = false
		require.NoError(t, f.ledger.Save(ctx, current))
		return subscription.ChargeResult{Success: true}, nil
	}

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	final, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, final.Status)
	assert.Zero(t, final.Metadata.RenewalCount)
	assert.Zero(t, f.notifier.Count(subscription.EventSubscriptionRenewed))
}

func TestRunRenewalTick_RetryNeverResurrectsSupersededSubscription(t *testing.T) {
	t.Parallel()

	payment := decliningPayment("card_declined")
	f := newFixture(defaultTiers(), subscription.Config{}, payment)
	userID := uuid.New()
	old := admitOne(t, f, userID)

	// One failed attempt parks the subscription in pending_renewal.
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	// The user buys a different tier while the retry is pending. The
	// mid-renewal record must be superseded like an active one would be.
	payment.charge = nil
	replacement, err := f.svc.RequestSubscription(context.Background(), userID, subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	require.NotNil(t, replacement.Subscription)

	superseded, err := f.svc.GetSubscription(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, superseded.Status)

	// The retry window opens; the cancelled record must stay dead.
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	final, err := f.svc.GetSubscription(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, final.Status)

	current, err := f.svc.GetUserSubscription(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, replacement.Subscription.ID, current.ID)

	total, _, err := f.ledger.CountOccupied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// Only the original failed attempt ever reached the provider.
	assert.Equal(t, 1, f.payment.Calls())
}

func TestRunRenewalTick_SuccessDiscardedWhenReplacementExists(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, nil)
	userID := uuid.New()
	old := admitOne(t, f, userID)

	// An out-of-process writer admits a replacement for the same user
	// while the charge is in flight. The successful charge must not
	// reactivate the old record next to it.
	replacementID := uuid.New()
	f.payment.charge = func(ctx context.Context, req subscription.ChargeRequest) (subscription.ChargeResult, error) {
		now := f.clock.Now()
		require.NoError(t, f.ledger.Save(ctx, &subscription.Subscription{
			ID:          replacementID,
			UserID:      userID,
			Tier:        subscription.TierVIP,
			Status:      subscription.StatusActive,
			AutoRenewal: true,
			StartedAt:   now,
			PeriodEnd:   now.AddDate(0, 1, 0),
			RenewalDue:  now.AddDate(0, 1, 0).Add(-72 * time.Hour),
		}))
		return subscription.ChargeResult{Success: true}, nil
	}

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	final, err := f.svc.GetSubscription(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, final.Status)
	assert.False(t, final.AutoRenewal)

	current, err := f.svc.GetUserSubscription(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, replacementID, current.ID)

	total, _, err := f.ledger.CountOccupied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Zero(t, f.notifier.Count(subscription.EventSubscriptionRenewed))
}

func TestRunRenewalTick_IsolatesPerItemFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, nil)

	good := admitOne(t, f, uuid.New())
	badResult, err := f.svc.RequestSubscription(context.Background(), uuid.New(), subscription.TierVIP, subscription.PaymentDetails{})
	require.NoError(t, err)
	bad := badResult.Subscription

	// Both are due; the charge for one of them blows up with a transport
	// error, the other must still complete.
	if bad.RenewalDue.After(good.RenewalDue) {
		f.clock.Set(bad.RenewalDue)
	}

	f.payment.charge = func(_ context.Context, req subscription.ChargeRequest) (subscription.ChargeResult, error) {
		if req.SubscriptionID == bad.ID {
			return subscription.ChargeResult{Reason: "gateway unreachable"}, nil
		}
		return subscription.ChargeResult{Success: true}, nil
	}

	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	renewed, err := f.svc.GetSubscription(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, renewed.Status)
	assert.Equal(t, 1, renewed.Metadata.RenewalCount)

	failed, err := f.svc.GetSubscription(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPendingRenewal, failed.Status)
	assert.Equal(t, 1, failed.RenewalAttempts)
}

func TestRunRenewalTick_ExpiresCancelledAfterPeriodEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultTiers(), subscription.Config{}, nil)
	userID := uuid.New()

	result, err := f.svc.RequestSubscription(context.Background(), userID, subscription.TierPremium, subscription.PaymentDetails{})
	require.NoError(t, err)
	sub := result.Subscription

	require.NoError(t, f.svc.CancelSubscription(context.Background(), sub.ID, "user request"))

	// Still within the paid period: nothing expires.
	f.clock.Set(sub.PeriodEnd.Add(-time.Hour))
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	current, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, current.Status)
	_, downgraded := f.catalog.Downgrade(userID)
	assert.False(t, downgraded)

	// Past the period end the record terminalizes and the effective tier
	// finally drops.
	f.clock.Set(sub.PeriodEnd)
	require.NoError(t, f.svc.RunRenewalTick(context.Background()))

	expired, err := f.svc.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, expired.Status)

	tier, ok := f.catalog.Downgrade(userID)
	require.True(t, ok)
	assert.Equal(t, subscription.TierFree, tier)
	assert.Equal(t, 1, f.notifier.Count(subscription.EventSubscriptionExpired))
	assert.Zero(t, f.payment.Calls())
}
