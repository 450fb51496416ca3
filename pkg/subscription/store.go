package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LedgerStore persists subscription records. Implementations should index
// by user ID and by (status, renewal_due) so renewal scans stay cheap.
type LedgerStore interface {
	// Get retrieves a subscription by ID.
	// Returns ErrSubscriptionNotFound if no record exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetCurrentByUser returns the user's capacity-occupying subscription:
	// the active one if present, otherwise one in pending_renewal.
	// Returns ErrSubscriptionNotFound when the user has neither.
	GetCurrentByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Save creates or updates a subscription keyed by ID.
	Save(ctx context.Context, sub *Subscription) error

	// ListDueForRenewal returns subscriptions with auto-renewal enabled,
	// status active or pending_renewal, and renewal due at or before now.
	ListDueForRenewal(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListEndedPeriods returns active and cancelled subscriptions whose
	// period end is at or before now, for the expiry sweep.
	ListEndedPeriods(ctx context.Context, now time.Time) ([]*Subscription, error)

	// CountOccupied returns the number of subscriptions holding a capacity
	// slot, overall and per tier. A record in pending_renewal still
	// occupies its slot: its user keeps access while the retry plays out,
	// so admission must not hand the slot to someone else. Counts are
	// recomputed from the ledger, not cached.
	CountOccupied(ctx context.Context) (total int, perTier map[Tier]int, err error)
}

// WaitingListStore persists deferred admission requests. Implementations
// must support ordered reads per tier (priority class, then arrival).
type WaitingListStore interface {
	// Save creates or updates an entry keyed by ID.
	Save(ctx context.Context, entry *WaitingListEntry) error

	// Delete removes an entry after promotion or withdrawal.
	// Returns ErrEntryNotFound if no entry exists.
	Delete(ctx context.Context, id uuid.UUID) error

	// Get retrieves an entry by ID.
	// Returns ErrEntryNotFound if no entry exists.
	Get(ctx context.Context, id uuid.UUID) (*WaitingListEntry, error)

	// GetByUser returns the user's outstanding entry, if any.
	// Returns ErrEntryNotFound when the user is not waiting.
	GetByUser(ctx context.Context, userID uuid.UUID) (*WaitingListEntry, error)

	// GetByUserAndTier returns the user's entry for a specific tier.
	// Returns ErrEntryNotFound when no such entry exists.
	GetByUserAndTier(ctx context.Context, userID uuid.UUID, tier Tier) (*WaitingListEntry, error)

	// ListByTier returns all entries for a tier in dequeue order.
	ListByTier(ctx context.Context, tier Tier) ([]*WaitingListEntry, error)

	// CountByTier returns the number of waiting entries per tier.
	CountByTier(ctx context.Context) (map[Tier]int, error)
}
