package subscription

import (
	"context"
	"errors"
	"log/slog"
)

// RunPromotionTick pops waiting users into freed capacity, highest
// priority first, tier by tier. Promotion stops for a tier as soon as the
// capacity registry denies further admission, so one pass never
// over-admits. The tick is a no-op while the waiting list is inactive.
func (s *service) RunPromotionTick(ctx context.Context) error {
	total, _, err := s.ledger.CountOccupied(ctx)
	if err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}
	if !s.waitingListActive(total) && !s.waitlistLatch.Load() {
		return nil
	}

	counts, err := s.waitlist.CountByTier(ctx)
	if err != nil {
		return errors.Join(ErrWaitingListUnavailable, err)
	}

	promoted := 0
	for _, tier := range PaidTiers() {
		if counts[tier] == 0 {
			continue
		}

		tierCfg, err := s.catalog.GetTierConfig(ctx, tier)
		if err != nil {
			s.log.ErrorContext(ctx, "skipping promotion for unconfigured tier",
				slog.String("tier", string(tier)),
				slog.String("error", err.Error()))
			continue
		}

		for {
			sub, ok, err := s.promoteNext(ctx, tier, tierCfg)
			if err != nil {
				s.log.ErrorContext(ctx, "promotion failed",
					slog.String("tier", string(tier)),
					slog.String("error", err.Error()))
				break
			}
			if !ok {
				break
			}
			promoted++
			s.log.InfoContext(ctx, "promoted from waiting list",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("user_id", sub.UserID.String()),
				slog.String("tier", string(tier)))
		}
	}

	// Drop the demand latch once the queue has fully drained.
	if remaining, err := s.waitlist.CountByTier(ctx); err == nil {
		empty := true
		for _, n := range remaining {
			if n > 0 {
				empty = false
				break
			}
		}
		if empty {
			s.waitlistLatch.Store(false)
		}
	}

	if promoted > 0 {
		s.log.InfoContext(ctx, "promotion tick completed", slog.Int("promoted", promoted))
	}

	return nil
}

// promoteNext converts the head of a tier's queue into an active
// subscription with the promotional discount applied. The capacity check,
// dequeue, and ledger write all happen under the tier lock. Returns false
// when the queue is empty or capacity denies further admission.
func (s *service) promoteNext(ctx context.Context, tier Tier, tierCfg TierConfig) (*Subscription, bool, error) {
	unlock := s.tierLocks.lock(string(tier))
	defer unlock()

	decision, err := s.checkCapacity(ctx, tier, tierCfg)
	if err != nil {
		return nil, false, err
	}
	if !decision.allowed {
		return nil, false, nil
	}

	entries, err := s.waitlist.ListByTier(ctx, tier)
	if err != nil {
		return nil, false, errors.Join(ErrWaitingListUnavailable, err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}
	head := entries[0]

	if err := s.waitlist.Delete(ctx, head.ID); err != nil {
		return nil, false, errors.Join(ErrWaitingListUnavailable, err)
	}

	sub, err := s.admit(ctx, head.UserID, tier, tierCfg, PaymentDetails{
		Method:          "waiting_list_promotion",
		PurchaseID:      head.ID.String(), // originating waiting list entry
		DiscountPercent: s.cfg.PromotionDiscountPercent,
	})
	if err != nil {
		// Put the entry back so the user keeps their place in line.
		if saveErr := s.waitlist.Save(ctx, head); saveErr != nil {
			s.log.ErrorContext(ctx, "failed to restore waiting list entry after promotion failure",
				slog.String("entry_id", head.ID.String()),
				slog.String("error", saveErr.Error()))
		}
		return nil, false, err
	}

	s.notify(ctx, head.UserID, EventWaitingListPromoted, map[string]any{
		"subscription_id":  sub.ID.String(),
		"tier":             string(tier),
		"discount_percent": s.cfg.PromotionDiscountPercent,
	})

	return sub, true, nil
}
