package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/membergate/membergate/pkg/subscription"
)

// testClock is a manually advanced time source for deterministic
// scheduler-driven tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// stubPayment delegates to a function field and counts invocations.
type stubPayment struct {
	mu     sync.Mutex
	calls  int
	charge func(ctx context.Context, req subscription.ChargeRequest) (subscription.ChargeResult, error)
}

func (p *stubPayment) AttemptRenewalPayment(ctx context.Context, req subscription.ChargeRequest) (subscription.ChargeResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.charge == nil {
		return subscription.ChargeResult{Success: true}, nil
	}
	return p.charge(ctx, req)
}

func (p *stubPayment) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func approvingPayment() *stubPayment {
	return &stubPayment{}
}

func decliningPayment(reason string) *stubPayment {
	return &stubPayment{charge: func(context.Context, subscription.ChargeRequest) (subscription.ChargeResult, error) {
		return subscription.ChargeResult{Reason: reason}, nil
	}}
}

// recordingCatalog is a StaticCatalog that records membership changes.
type recordingCatalog struct {
	subscription.StaticCatalog

	mu         sync.Mutex
	upgrades   map[uuid.UUID]subscription.Tier
	downgrades map[uuid.UUID]subscription.Tier
}

func newRecordingCatalog(tiers map[subscription.Tier]subscription.TierConfig) *recordingCatalog {
	return &recordingCatalog{
		StaticCatalog: subscription.StaticCatalog{Tiers: tiers},
		upgrades:      make(map[uuid.UUID]subscription.Tier),
		downgrades:    make(map[uuid.UUID]subscription.Tier),
	}
}

func (c *recordingCatalog) UpgradeMembership(_ context.Context, userID uuid.UUID, tier subscription.Tier) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upgrades[userID] = tier
	return nil
}

func (c *recordingCatalog) DowngradeMembership(_ context.Context, userID uuid.UUID, tier subscription.Tier) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downgrades[userID] = tier
	return nil
}

func (c *recordingCatalog) Upgrade(userID uuid.UUID) (subscription.Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tier, ok := c.upgrades[userID]
	return tier, ok
}

func (c *recordingCatalog) Downgrade(userID uuid.UUID) (subscription.Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tier, ok := c.downgrades[userID]
	return tier, ok
}

// recordingNotifier captures dispatched events in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	UserID  uuid.UUID
	Kind    subscription.EventKind
	Payload map[string]any
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind subscription.EventKind, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

func (n *recordingNotifier) Kinds() []subscription.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]subscription.EventKind, len(n.events))
	for i, e := range n.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (n *recordingNotifier) Count(kind subscription.EventKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

func defaultTiers() map[subscription.Tier]subscription.TierConfig {
	return map[subscription.Tier]subscription.TierConfig{
		subscription.TierPremium: {Price: 999, Platform: "paddle", Ceiling: 3000, ChurnRate: 0.05},
		subscription.TierVIP:     {Price: 2999, Platform: "paddle", Ceiling: 500, ChurnRate: 0.03},
	}
}

// fixture bundles a service wired with in-memory collaborators.
type fixture struct {
	svc      subscription.Service
	catalog  *recordingCatalog
	payment  *stubPayment
	notifier *recordingNotifier
	ledger   *subscription.MemoryLedgerStore
	waitlist *subscription.MemoryWaitingListStore
	clock    *testClock
}

func newFixture(tiers map[subscription.Tier]subscription.TierConfig, cfg subscription.Config, payment *stubPayment) *fixture {
	if payment == nil {
		payment = approvingPayment()
	}

	f := &fixture{
		catalog:  newRecordingCatalog(tiers),
		payment:  payment,
		notifier: &recordingNotifier{},
		ledger:   subscription.NewMemoryLedgerStore(),
		waitlist: subscription.NewMemoryWaitingListStore(),
		clock:    newTestClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}

	f.svc = subscription.NewService(f.catalog, f.payment, f.ledger, f.waitlist,
		subscription.WithConfig(cfg),
		subscription.WithClock(f.clock.Now),
		subscription.WithNotifier(f.notifier),
		subscription.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}
