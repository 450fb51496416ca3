package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Service is the public interface for subscription admission control,
// cancellation, and the background renewal/promotion entry points.
type Service interface {
	// RequestSubscription admits the user into the tier immediately when
	// capacity allows, otherwise enqueues a waiting list entry. Exactly
	// one of the result fields is set.
	RequestSubscription(ctx context.Context, userID uuid.UUID, tier Tier, details PaymentDetails) (*AdmissionResult, error)

	// CancelSubscription disables auto-renewal and marks the subscription
	// cancelled. The paid period is honored until its natural end; the
	// effective tier downgrade happens during the renewal scan afterwards.
	CancelSubscription(ctx context.Context, id uuid.UUID, reason string) error

	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetUserSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetUserWaitingListStatus(ctx context.Context, userID uuid.UUID) (*WaitingListEntry, error)

	// WithdrawFromWaitingList removes an outstanding entry before promotion.
	WithdrawFromWaitingList(ctx context.Context, entryID uuid.UUID) error

	// GetCapacityStatus returns a snapshot derived from the ledger and
	// waiting list. Never cached.
	GetCapacityStatus(ctx context.Context) (*CapacityStatus, error)

	// SetEmergencyMode toggles the global admission override. While set,
	// every admission is denied regardless of remaining capacity.
	SetEmergencyMode(enabled bool)

	// RunRenewalTick drives due renewals once. Invoked by the host's
	// timer facility, typically hourly.
	RunRenewalTick(ctx context.Context) error

	// RunPromotionTick promotes waiting users into freed capacity once.
	// Invoked by the host's timer facility, typically every 30 minutes.
	RunPromotionTick(ctx context.Context) error
}

// AdmissionResult is the outcome of a subscription request: either an
// immediately active subscription or a waiting list entry.
type AdmissionResult struct {
	Subscription *Subscription
	WaitingEntry *WaitingListEntry
}

type service struct {
	catalog  Catalog
	payment  PaymentProvider
	notifier Notifier
	ledger   LedgerStore
	waitlist WaitingListStore

	cfg Config
	log *slog.Logger
	now func() time.Time

	emergencyMode atomic.Bool
	waitlistLatch atomic.Bool

	tierLocks *keyedMutex
	subLocks  *keyedMutex
}

// NewService creates a Service with the given collaborators.
// Panics if a required collaborator is nil to fail fast during
// initialization instead of surfacing nil dereferences at runtime.
func NewService(catalog Catalog, payment PaymentProvider, ledger LedgerStore, waitlist WaitingListStore, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("subscription: Catalog is required")
	}
	if payment == nil {
		panic("subscription: PaymentProvider is required")
	}
	if ledger == nil {
		panic("subscription: LedgerStore is required")
	}
	if waitlist == nil {
		panic("subscription: WaitingListStore is required")
	}

	s := &service{
		catalog:   catalog,
		payment:   payment,
		ledger:    ledger,
		waitlist:  waitlist,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		tierLocks: newKeyedMutex(),
		subLocks:  newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.cfg = withDefaults(s.cfg)

	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.log)
	}

	return s
}

// withDefaults fills zero config fields so partially populated configs
// behave like the documented defaults.
func withDefaults(cfg Config) Config {
	if cfg.GlobalCeiling <= 0 {
		cfg.GlobalCeiling = 10000
	}
	if cfg.BillingPeriodMonths <= 0 {
		cfg.BillingPeriodMonths = 1
	}
	if cfg.RenewalLeadTime <= 0 {
		cfg.RenewalLeadTime = 72 * time.Hour
	}
	if cfg.RenewalRetryInterval <= 0 {
		cfg.RenewalRetryInterval = 24 * time.Hour
	}
	if cfg.MaxRenewalAttempts <= 0 {
		cfg.MaxRenewalAttempts = 3
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 30 * time.Second
	}
	if cfg.PromotionDiscountPercent <= 0 {
		cfg.PromotionDiscountPercent = 10
	}
	if cfg.WaitlistActivationRatio <= 0 {
		cfg.WaitlistActivationRatio = 0.9
	}
	return cfg
}

// RequestSubscription is the single admission path: capacity check and
// ledger write execute under the tier lock so concurrent requests cannot
// both be admitted past the ceiling.
func (s *service) RequestSubscription(ctx context.Context, userID uuid.UUID, tier Tier, details PaymentDetails) (*AdmissionResult, error) {
	if !tier.IsPaid() {
		return nil, ErrTierNotPaid
	}

	// Resolve tier config before touching any state: a configuration
	// error must leave neither a subscription nor a waiting list entry.
	tierCfg, err := s.catalog.GetTierConfig(ctx, tier)
	if err != nil {
		return nil, err
	}

	unlock := s.tierLocks.lock(string(tier))
	defer unlock()

	decision, err := s.checkCapacity(ctx, tier, tierCfg)
	if err != nil {
		return nil, err
	}

	if !decision.allowed {
		entry, err := s.enqueueWaiting(ctx, userID, tier, tierCfg, details, decision.reason)
		if err != nil {
			return nil, err
		}
		return &AdmissionResult{WaitingEntry: entry}, nil
	}

	sub, err := s.admit(ctx, userID, tier, tierCfg, details)
	if err != nil {
		return nil, err
	}
	return &AdmissionResult{Subscription: sub}, nil
}

// admit creates the subscription record. This is the only path that
// creates one. Caller holds the tier lock.
func (s *service) admit(ctx context.Context, userID uuid.UUID, tier Tier, tierCfg TierConfig, details PaymentDetails) (*Subscription, error) {
	now := s.now()

	// One capacity-occupying subscription per user: an existing active or
	// mid-renewal subscription is cancelled before the replacement is
	// written. Cancelling a pending_renewal record also stops its retry
	// from reactivating it later.
	if prev, err := s.ledger.GetCurrentByUser(ctx, userID); err == nil {
		if err := transition(prev, StatusCancelled); err != nil {
			return nil, err
		}
		prev.AutoRenewal = false
		prev.FailureReason = "superseded by new subscription"
		prev.UpdatedAt = now
		if err := s.ledger.Save(ctx, prev); err != nil {
			return nil, errors.Join(ErrLedgerUnavailable, err)
		}
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	amount := tierCfg.Price
	if details.DiscountPercent > 0 {
		amount -= amount * int64(details.DiscountPercent) / 100
	}

	method := details.Method
	if method == "" {
		method = "default"
	}

	periodEnd := now.AddDate(0, s.cfg.BillingPeriodMonths, 0)
	sub := &Subscription{
		ID:                uuid.New(),
		UserID:            userID,
		Tier:              tier,
		Status:            StatusActive,
		Platform:          tierCfg.Platform,
		PaymentMethod:     method,
		StartedAt:         now,
		PeriodEnd:         periodEnd,
		RenewalDue:        periodEnd.Add(-s.cfg.RenewalLeadTime),
		AutoRenewal:       true,
		NextBillingAmount: amount,
		Metadata: Metadata{
			OriginalPurchaseID: details.PurchaseID,
			DiscountPercent:    details.DiscountPercent,
			PromotionCode:      details.PromotionCode,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ledger.Save(ctx, sub); err != nil {
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	// The ledger is the source of truth; a failed membership update is
	// reconciled by the next renewal scan, not rolled back.
	if err := s.catalog.UpgradeMembership(ctx, userID, tier); err != nil {
		s.log.WarnContext(ctx, "failed to upgrade membership after admission",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}

	s.log.InfoContext(ctx, "subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("user_id", userID.String()),
		slog.String("tier", string(tier)))

	return sub, nil
}

// enqueueWaiting defers a denied admission. A user keeps at most one
// outstanding entry per tier; repeat requests return the existing entry
// with a refreshed position.
func (s *service) enqueueWaiting(ctx context.Context, userID uuid.UUID, tier Tier, tierCfg TierConfig, details PaymentDetails, reason string) (*WaitingListEntry, error) {
	if existing, err := s.waitlist.GetByUserAndTier(ctx, userID, tier); err == nil {
		if err := s.fillPosition(ctx, existing, tierCfg); err != nil {
			return nil, err
		}
		return existing, nil
	} else if !errors.Is(err, ErrEntryNotFound) {
		return nil, errors.Join(ErrWaitingListUnavailable, err)
	}

	user, err := s.catalog.GetUser(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "failed to resolve user for waiting list entry",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}

	priority := details.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	entry := &WaitingListEntry{
		ID:            uuid.New(),
		UserID:        userID,
		Email:         user.Email,
		Username:      user.Username,
		RequestedTier: tier,
		JoinedAt:      s.now(),
		Priority:      priority,
		Notifications: NotificationPreferences{Email: true, InApp: true},

		ReferralSource:  details.ReferralSource,
		SpecialRequests: details.SpecialRequests,
	}

	if err := s.waitlist.Save(ctx, entry); err != nil {
		return nil, errors.Join(ErrWaitingListUnavailable, err)
	}

	// Someone queued up means demand exceeds supply; keep promotion
	// running until the queue drains even if utilization dips.
	s.waitlistLatch.Store(true)

	if err := s.fillPosition(ctx, entry, tierCfg); err != nil {
		return nil, err
	}

	s.notify(ctx, userID, EventWaitingListJoined, map[string]any{
		"tier":                string(tier),
		"position":            entry.Position,
		"estimated_wait_days": entry.EstimatedWaitDays,
		"reason":              reason,
	})

	s.log.InfoContext(ctx, "admission deferred to waiting list",
		slog.String("user_id", userID.String()),
		slog.String("tier", string(tier)),
		slog.Int("position", entry.Position),
		slog.String("reason", reason))

	return entry, nil
}

// fillPosition computes the derived queue fields on an entry.
func (s *service) fillPosition(ctx context.Context, entry *WaitingListEntry, tierCfg TierConfig) error {
	entries, err := s.waitlist.ListByTier(ctx, entry.RequestedTier)
	if err != nil {
		return errors.Join(ErrWaitingListUnavailable, err)
	}
	entry.Position = len(entries) // fallback when the entry is not found below
	for i, e := range entries {
		if e.ID == entry.ID {
			entry.Position = i + 1
			break
		}
	}
	entry.EstimatedWaitDays = EstimateWaitDays(tierCfg, entry.Position)
	return nil
}

func (s *service) CancelSubscription(ctx context.Context, id uuid.UUID, reason string) error {
	unlock := s.subLocks.lock(id.String())
	defer unlock()

	sub, err := s.ledger.Get(ctx, id)
	if err != nil {
		return err
	}

	// Repeat cancellations are a no-op, not an error.
	if sub.Status == StatusCancelled {
		return nil
	}

	if err := transition(sub, StatusCancelled); err != nil {
		return err
	}
	sub.AutoRenewal = false
	if reason != "" {
		sub.FailureReason = reason
	}
	sub.UpdatedAt = s.now()

	if err := s.ledger.Save(ctx, sub); err != nil {
		return errors.Join(ErrLedgerUnavailable, err)
	}

	// No downgrade here: the paid period is honored until its natural
	// end, when the renewal scan expires the record.
	s.notify(ctx, sub.UserID, EventSubscriptionCancelled, map[string]any{
		"subscription_id": sub.ID.String(),
		"tier":            string(sub.Tier),
		"period_end":      sub.PeriodEnd,
	})

	s.log.InfoContext(ctx, "subscription cancelled",
		slog.String("subscription_id", id.String()),
		slog.String("reason", reason))

	return nil
}

func (s *service) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.ledger.Get(ctx, id)
}

func (s *service) GetUserSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.ledger.GetCurrentByUser(ctx, userID)
}

func (s *service) GetUserWaitingListStatus(ctx context.Context, userID uuid.UUID) (*WaitingListEntry, error) {
	entry, err := s.waitlist.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	tierCfg, err := s.catalog.GetTierConfig(ctx, entry.RequestedTier)
	if err != nil {
		return nil, err
	}
	if err := s.fillPosition(ctx, entry, tierCfg); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) WithdrawFromWaitingList(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.waitlist.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if err := s.waitlist.Delete(ctx, entryID); err != nil {
		return errors.Join(ErrWaitingListUnavailable, err)
	}

	s.log.InfoContext(ctx, "waiting list entry withdrawn",
		slog.String("entry_id", entryID.String()),
		slog.String("user_id", entry.UserID.String()),
		slog.String("tier", string(entry.RequestedTier)))

	return nil
}

func (s *service) GetCapacityStatus(ctx context.Context) (*CapacityStatus, error) {
	total, perTier, err := s.ledger.CountOccupied(ctx)
	if err != nil {
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	waiting, err := s.waitlist.CountByTier(ctx)
	if err != nil {
		return nil, errors.Join(ErrWaitingListUnavailable, err)
	}

	ceilings := make(map[Tier]int)
	for _, tier := range PaidTiers() {
		tierCfg, err := s.catalog.GetTierConfig(ctx, tier)
		if err != nil {
			continue // unconfigured tiers simply have no ceiling to report
		}
		ceilings[tier] = tierCfg.Ceiling
	}

	return &CapacityStatus{
		GlobalCeiling:     s.cfg.GlobalCeiling,
		TierCeilings:      ceilings,
		OccupiedTotal:     total,
		OccupiedPerTier:   perTier,
		WaitingPerTier:    waiting,
		WaitingListActive: s.waitingListActive(total) || s.waitlistLatch.Load(),
		EmergencyMode:     s.emergencyMode.Load(),
	}, nil
}

func (s *service) SetEmergencyMode(enabled bool) {
	s.emergencyMode.Store(enabled)
	s.log.Info("emergency mode toggled", slog.Bool("enabled", enabled))
}

// notify dispatches a best-effort notification: failures are logged and
// never propagated to the caller.
func (s *service) notify(ctx context.Context, userID uuid.UUID, kind EventKind, payload map[string]any) {
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.log.WarnContext(ctx, "failed to deliver notification",
			slog.String("user_id", userID.String()),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}
}
