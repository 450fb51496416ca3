package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription represents one paid membership instance. Records are never
// deleted; terminal statuses are kept for audit continuity.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Tier   Tier
	Status Status

	Platform      string // billing platform identifier from the tier config
	PaymentMethod string

	StartedAt  time.Time
	PeriodEnd  time.Time // end of the currently paid billing period
	RenewalDue time.Time // next renewal attempt, 3 days before PeriodEnd

	AutoRenewal       bool
	NextBillingAmount int64 // smallest currency unit
	RenewalAttempts   int   // consecutive failures, reset to 0 on success
	FailureReason     string
	LastPaymentAt     *time.Time

	Metadata Metadata

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metadata holds renewal bookkeeping and purchase provenance.
type Metadata struct {
	OriginalPurchaseID string
	DiscountPercent    int
	PromotionCode      string
	RenewalCount       int
	LastRenewalSuccess *time.Time
	LastRenewalFailure *time.Time
}

// IsActive reports whether the subscription currently grants its tier.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsRenewable reports whether the renewal scheduler should pick up this
// subscription at the given time. Records already past their due timestamp
// but mid-attempt keep Status pending_renewal with RenewalDue pushed into
// the future, so they are not picked up twice within one due window.
func (s *Subscription) IsRenewable(now time.Time) bool {
	if !s.AutoRenewal {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusPendingRenewal {
		return false
	}
	return !s.RenewalDue.After(now)
}

// PeriodEnded reports whether the paid period has run out at the given time.
func (s *Subscription) PeriodEnded(now time.Time) bool {
	return !s.PeriodEnd.After(now)
}
