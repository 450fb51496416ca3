package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// RunRenewalTick drives the renewal state machine for every subscription
// that is due, then expires subscriptions whose paid period has run out.
// Each subscription is processed independently: one bad record never
// aborts the batch, per-item failures are logged and counted.
func (s *service) RunRenewalTick(ctx context.Context) error {
	now := s.now()

	due, err := s.ledger.ListDueForRenewal(ctx, now)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	var failed int
	for _, sub := range due {
		if err := s.processRenewal(ctx, sub.ID); err != nil {
			failed++
			s.log.ErrorContext(ctx, "renewal processing failed",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	expired, err := s.expireEndedPeriods(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "period expiry sweep failed",
			slog.String("error", err.Error()))
	}

	s.log.InfoContext(ctx, "renewal tick completed",
		slog.Int("due", len(due)),
		slog.Int("failed", failed),
		slog.Int("expired", expired))

	return nil
}

// processRenewal runs one renewal attempt under the subscription lock so a
// concurrent cancellation cannot interleave with the payment commit.
func (s *service) processRenewal(ctx context.Context, id uuid.UUID) error {
	unlock := s.subLocks.lock(id.String())
	defer unlock()

	sub, err := s.ledger.Get(ctx, id)
	if err != nil {
		return err
	}

	// Re-check under the lock: a cancellation or an earlier tick may have
	// resolved this subscription while it sat in the batch.
	now := s.now()
	if !sub.IsRenewable(now) {
		return nil
	}

	if sub.Status == StatusActive {
		if err := transition(sub, StatusPendingRenewal); err != nil {
			return err
		}
		sub.UpdatedAt = now
		// Persist the pending marker before charging so a crash between
		// payment and commit is visible in the ledger.
		if err := s.ledger.Save(ctx, sub); err != nil {
			return errors.Join(ErrLedgerUnavailable, err)
		}
	}

	result := s.attemptCharge(ctx, sub)

	// The payment call released no locks, but an out-of-process writer may
	// have cancelled meanwhile. The cancellation wins: a charge result for
	// a cancelled subscription is discarded, never resurrected.
	current, err := s.ledger.Get(ctx, id)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	if current.Status != StatusPendingRenewal {
		s.log.WarnContext(ctx, "discarding renewal result, subscription no longer pending",
			slog.String("subscription_id", id.String()),
			slog.String("status", string(current.Status)))
		return nil
	}
	sub = current

	if result.Success {
		return s.commitRenewalSuccess(ctx, sub)
	}
	return s.commitRenewalFailure(ctx, sub, result.Reason)
}

// attemptCharge calls the payment collaborator with a bounded timeout.
// Timeouts and transport errors are failed attempts, not crashes.
func (s *service) attemptCharge(ctx context.Context, sub *Subscription) ChargeResult {
	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	result, err := s.payment.AttemptRenewalPayment(chargeCtx, ChargeRequest{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Amount:         sub.NextBillingAmount,
		Platform:       sub.Platform,
		PaymentMethod:  sub.PaymentMethod,
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ErrPaymentTimeout.Error()
		}
		return ChargeResult{Reason: reason}
	}
	return result
}

func (s *service) commitRenewalSuccess(ctx context.Context, sub *Subscription) error {
	now := s.now()

	// An out-of-process writer may have admitted a replacement subscription
	// for this user while the record sat in pending_renewal. The replacement
	// wins: reactivating here would hand the user two subscriptions.
	if current, err := s.ledger.GetCurrentByUser(ctx, sub.UserID); err == nil && current.ID != sub.ID {
		if err := transition(sub, StatusCancelled); err != nil {
			return err
		}
		sub.AutoRenewal = false
		sub.FailureReason = "superseded by new subscription"
		sub.UpdatedAt = now
		if err := s.ledger.Save(ctx, sub); err != nil {
			return errors.Join(ErrLedgerUnavailable, err)
		}
		s.log.WarnContext(ctx, "discarding renewal result, user holds a newer subscription",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("current_id", current.ID.String()))
		return nil
	} else if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	if err := transition(sub, StatusActive); err != nil {
		return err
	}

	// The new period starts from the successful charge, not from the old
	// period end, so retry delays never silently shorten a paid period.
	periodEnd := now.AddDate(0, s.cfg.BillingPeriodMonths, 0)
	sub.PeriodEnd = periodEnd
	sub.RenewalDue = periodEnd.Add(-s.cfg.RenewalLeadTime)
	sub.RenewalAttempts = 0
	sub.FailureReason = ""
	sub.LastPaymentAt = &now
	sub.Metadata.RenewalCount++
	sub.Metadata.LastRenewalSuccess = &now
	sub.UpdatedAt = now

	if err := s.ledger.Save(ctx, sub); err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	s.notify(ctx, sub.UserID, EventSubscriptionRenewed, map[string]any{
		"subscription_id": sub.ID.String(),
		"tier":            string(sub.Tier),
		"period_end":      sub.PeriodEnd,
	})

	s.log.InfoContext(ctx, "subscription renewed",
		slog.String("subscription_id", sub.ID.String()),
		slog.Int("renewal_count", sub.Metadata.RenewalCount))

	return nil
}

func (s *service) commitRenewalFailure(ctx context.Context, sub *Subscription, reason string) error {
	now := s.now()

	sub.RenewalAttempts++
	sub.FailureReason = reason
	sub.Metadata.LastRenewalFailure = &now
	sub.UpdatedAt = now

	if sub.RenewalAttempts >= s.cfg.MaxRenewalAttempts {
		if err := transition(sub, StatusSuspended); err != nil {
			return err
		}
		if err := s.ledger.Save(ctx, sub); err != nil {
			return errors.Join(ErrLedgerUnavailable, err)
		}

		if err := s.catalog.DowngradeMembership(ctx, sub.UserID, TierFree); err != nil {
			s.log.WarnContext(ctx, "failed to downgrade membership after suspension",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("error", err.Error()))
		}

		s.notify(ctx, sub.UserID, EventSubscriptionSuspended, map[string]any{
			"subscription_id": sub.ID.String(),
			"tier":            string(sub.Tier),
			"reason":          reason,
		})

		s.log.WarnContext(ctx, "subscription suspended after exhausted renewal attempts",
			slog.String("subscription_id", sub.ID.String()),
			slog.Int("attempts", sub.RenewalAttempts))

		return nil
	}

	// Retry stays in pending_renewal with the due timestamp pushed out, so
	// the subscription is not reprocessed until the retry window opens.
	if err := transition(sub, StatusPendingRenewal); err != nil {
		return err
	}
	sub.RenewalDue = now.Add(s.cfg.RenewalRetryInterval)

	if err := s.ledger.Save(ctx, sub); err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	s.log.InfoContext(ctx, "renewal attempt failed, retry scheduled",
		slog.String("subscription_id", sub.ID.String()),
		slog.Int("attempts", sub.RenewalAttempts),
		slog.Time("retry_at", sub.RenewalDue))

	return nil
}

// expireEndedPeriods terminalizes subscriptions whose paid period has run
// out with no renewal programmed: cancelled records past their period end,
// and active records with auto-renewal disabled. This is also where the
// deferred downgrade promised at cancellation time actually happens.
func (s *service) expireEndedPeriods(ctx context.Context) (int, error) {
	ended, err := s.ledger.ListEndedPeriods(ctx, s.now())
	if err != nil {
		return 0, errors.Join(ErrLedgerUnavailable, err)
	}

	expired := 0
	for _, sub := range ended {
		if sub.Status == StatusActive && sub.AutoRenewal {
			continue // renewal machinery owns these
		}
		if err := s.expireSubscription(ctx, sub.ID); err != nil {
			s.log.ErrorContext(ctx, "failed to expire subscription",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *service) expireSubscription(ctx context.Context, id uuid.UUID) error {
	unlock := s.subLocks.lock(id.String())
	defer unlock()

	sub, err := s.ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	if !sub.PeriodEnded(now) || !canTransition(sub.Status, StatusExpired) {
		return nil
	}

	if err := transition(sub, StatusExpired); err != nil {
		return err
	}
	sub.AutoRenewal = false
	sub.UpdatedAt = now

	if err := s.ledger.Save(ctx, sub); err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	if err := s.catalog.DowngradeMembership(ctx, sub.UserID, TierFree); err != nil {
		s.log.WarnContext(ctx, "failed to downgrade membership after expiry",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
	}

	s.notify(ctx, sub.UserID, EventSubscriptionExpired, map[string]any{
		"subscription_id": sub.ID.String(),
		"tier":            string(sub.Tier),
	})

	return nil
}
