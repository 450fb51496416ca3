package subscription

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// WaitingListEntry is a deferred admission request. An entry exists only
// between a denied admission and either promotion or withdrawal.
type WaitingListEntry struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Email         string
	Username      string
	RequestedTier Tier
	JoinedAt      time.Time
	Priority      Priority

	// Position and EstimatedWaitDays are derived on read, never
	// authoritative; they must not feed back into admission decisions.
	Position          int
	EstimatedWaitDays int

	Notifications   NotificationPreferences
	ReferralSource  string
	SpecialRequests string
}

// Before reports whether this entry is dequeued ahead of other.
// Higher priority class wins; ties break by arrival, oldest first.
func (e *WaitingListEntry) Before(other *WaitingListEntry) bool {
	if e.Priority.Rank() != other.Priority.Rank() {
		return e.Priority.Rank() < other.Priority.Rank()
	}
	return e.JoinedAt.Before(other.JoinedAt)
}

// preferredEntry picks which of a user's entries GetByUser lookups
// surface when the user waits in several tiers: the highest requested
// tier wins, ties break by arrival, oldest first. Store implementations
// share this rule so lookups stay deterministic across backends.
func preferredEntry(a, b *WaitingListEntry) *WaitingListEntry {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.RequestedTier.Rank() != b.RequestedTier.Rank() {
		if a.RequestedTier.Rank() > b.RequestedTier.Rank() {
			return a
		}
		return b
	}
	if b.JoinedAt.Before(a.JoinedAt) {
		return b
	}
	return a
}

// SortEntries orders entries into dequeue order in place.
func SortEntries(entries []*WaitingListEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Before(entries[j])
	})
}

// EstimateWaitDays estimates how long a queue position takes to clear,
// assuming slots free up at the tier's historical monthly churn rate.
// Surfaced to users as guidance only; carries no correctness guarantee.
func EstimateWaitDays(cfg TierConfig, position int) int {
	churn := cfg.ChurnRate
	if churn <= 0 {
		churn = defaultChurnRate
	}
	slotsPerMonth := int(math.Ceil(float64(cfg.Ceiling) * churn))
	if slotsPerMonth < 1 {
		slotsPerMonth = 1
	}
	return int(math.Ceil(float64(position) / float64(slotsPerMonth) * 30))
}

const defaultChurnRate = 0.05
