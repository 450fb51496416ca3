// Package subscription implements capacity-controlled membership admission
// with a waiting list, automatic periodic renewal, and bounded-retry
// suspension.
//
// The package decides whether a user may activate a paid tier right now,
// defers them onto an ordered waiting list when capacity is exhausted,
// promotes waiting users as capacity frees up, and drives the renewal
// state machine for active subscriptions. Tier catalog data, payment
// execution, and notification delivery stay behind collaborator
// interfaces so the package owns nothing but its ledger and queue.
//
// # Architecture
//
//   - Service: admission, cancellation, lookups, and the background tick
//     entry points
//   - LedgerStore: persists subscription records (memory and PostgreSQL
//     implementations included)
//   - WaitingListStore: persists deferred admissions in dequeue order
//     (memory and Redis implementations included)
//   - Catalog: membership/tier collaborator (config, user lookup,
//     effective-tier changes)
//   - PaymentProvider: payment execution collaborator (Paddle
//     implementation included)
//   - Notifier: fire-and-forget notification dispatch
//
// Capacity is always recomputed from the ledger: occupied counts (active
// plus mid-renewal, since a pending retry keeps its slot) are never
// cached across an admission decision, and the check-then-write sequence
// runs under a per-tier lock so concurrent requests cannot be admitted
// past a ceiling.
//
// # Lifecycle
//
// A subscription starts active with a one-month paid period and a renewal
// due three days before period end. The renewal tick moves due records to
// pending_renewal, charges the payment collaborator with a bounded
// timeout, and then either reactivates (extending the period from the
// moment of payment), schedules a retry 24 hours out, or suspends after
// three consecutive failures and downgrades the user to the free tier.
// Cancellation disables auto-renewal immediately but honors the paid
// period; the renewal tick expires the record and performs the downgrade
// once the period ends. Terminal records are kept for audit.
//
// # Quick start
//
//	catalog := &subscription.StaticCatalog{
//		Tiers: map[subscription.Tier]subscription.TierConfig{
//			subscription.TierPremium: {Price: 1999, Platform: "paddle", Ceiling: 3000, ChurnRate: 0.05},
//			subscription.TierVIP:     {Price: 9999, Platform: "paddle", Ceiling: 500, ChurnRate: 0.03},
//		},
//	}
//
//	provider, err := subscription.NewPaddleProvider(paddleCfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := subscription.NewService(
//		catalog,
//		provider,
//		subscription.NewMemoryLedgerStore(),
//		subscription.NewMemoryWaitingListStore(),
//		subscription.WithLogger(logger),
//	)
//
//	result, err := svc.RequestSubscription(ctx, userID, subscription.TierVIP, subscription.PaymentDetails{
//		Method:     "pri_abc123",
//		PurchaseID: "txn_original",
//	})
//	switch {
//	case err != nil:
//		// configuration or persistence failure, nothing was written
//	case result.Subscription != nil:
//		// admitted immediately
//	case result.WaitingEntry != nil:
//		// deferred; entry carries position and estimated wait
//	}
//
// The background ticks are plain methods so a host can drive them from
// any timer facility; pkg/scheduler provides one:
//
//	sched := scheduler.New(scheduler.WithLogger(logger))
//	sched.Add("subscription-renewals", time.Hour, svc.RunRenewalTick)
//	sched.Add("waitlist-promotions", 30*time.Minute, svc.RunPromotionTick)
//	go sched.Start(ctx)
//
// Tests inject a clock with WithClock and call the ticks directly to
// advance virtual time deterministically.
package subscription
