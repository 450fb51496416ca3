package subscription

// Tier represents an ordered membership level.
// Higher tiers grant more entitlements and have tighter capacity ceilings.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// Rank returns the ordering of a tier, lowest first.
// Unknown tiers rank below free so they never pass capacity checks by accident.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPremium:
		return 2
	case TierVIP:
		return 3
	default:
		return 0
	}
}

// IsPaid reports whether the tier requires a billed subscription.
func (t Tier) IsPaid() bool {
	return t == TierPremium || t == TierVIP
}

// PaidTiers lists the tiers that are subject to admission control,
// lowest first.
func PaidTiers() []Tier {
	return []Tier{TierPremium, TierVIP}
}

// Status represents the lifecycle state of a subscription.
type Status string

const (
	StatusActive         Status = "active"
	StatusPendingRenewal Status = "pending_renewal"
	StatusSuspended      Status = "suspended"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
)

// IsTerminal reports whether no further renewal processing applies.
// Terminal subscriptions are kept in the ledger for audit continuity.
func (s Status) IsTerminal() bool {
	return s == StatusSuspended || s == StatusCancelled || s == StatusExpired
}

// Priority classifies waiting-list entries. Urgent entries are dequeued
// before high, high before normal, regardless of arrival time.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the dequeue ordering of a priority, lowest value first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// PaymentDetails carries the billing context of an admission request.
// Amounts are in the smallest currency unit (cents for USD).
type PaymentDetails struct {
	Method          string   // payment method reference, e.g. provider price/method ID
	PurchaseID      string   // originating purchase, kept in subscription metadata
	PromotionCode   string
	DiscountPercent int      // 0-100, applied to the tier price
	Priority        Priority // waiting-list priority if admission is deferred
	ReferralSource  string
	SpecialRequests string
}

// NotificationPreferences controls which channels a waiting user wants
// to be reached on. Delivery itself is best-effort.
type NotificationPreferences struct {
	Email bool
	InApp bool
}

// CapacityStatus is a point-in-time snapshot derived from the ledger and
// waiting list. It is recomputed on every read and never persisted.
// Occupied counts cover active and mid-renewal subscriptions, both of
// which hold their capacity slot.
type CapacityStatus struct {
	GlobalCeiling     int
	TierCeilings      map[Tier]int
	OccupiedTotal     int
	OccupiedPerTier   map[Tier]int
	WaitingPerTier    map[Tier]int
	WaitingListActive bool
	EmergencyMode     bool
}
