package subscription

import (
	"context"
	"errors"
)

// Denial reasons surfaced by the capacity registry, in priority order.
const (
	DenialReasonEmergencyMode = "emergency mode"
	DenialReasonGlobalCeiling = "global capacity reached"
	DenialReasonTierCeiling   = "tier capacity reached"
)

// capacityDecision is the outcome of a single admission check.
type capacityDecision struct {
	allowed bool
	reason  string
}

// checkCapacity recomputes occupied counts from the ledger and decides
// whether one more subscription for the tier fits. A mid-renewal record
// counts as occupying its slot, so a holder whose retry is pending never
// loses the slot to a promotion. Counts are never cached across a
// decision boundary; callers must hold the tier lock so the
// read-compare-write sequence is atomic against concurrent admissions.
func (s *service) checkCapacity(ctx context.Context, tier Tier, cfg TierConfig) (capacityDecision, error) {
	if s.emergencyMode.Load() {
		return capacityDecision{reason: DenialReasonEmergencyMode}, nil
	}

	total, perTier, err := s.ledger.CountOccupied(ctx)
	if err != nil {
		return capacityDecision{}, errors.Join(ErrLedgerUnavailable, err)
	}

	if total >= s.cfg.GlobalCeiling {
		return capacityDecision{reason: DenialReasonGlobalCeiling}, nil
	}
	if cfg.Ceiling > 0 && perTier[tier] >= cfg.Ceiling {
		return capacityDecision{reason: DenialReasonTierCeiling}, nil
	}

	return capacityDecision{allowed: true}, nil
}

// waitingListActive reports whether promotion runs at all. The flag is
// derived from utilization, engaged once the overall occupied count
// exceeds the configured fraction of the global ceiling.
func (s *service) waitingListActive(total int) bool {
	return float64(total) > float64(s.cfg.GlobalCeiling)*s.cfg.WaitlistActivationRatio
}
