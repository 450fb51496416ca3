package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedgerStore implements LedgerStore for testing and local development.
type MemoryLedgerStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewMemoryLedgerStore creates an empty in-memory ledger.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (ms *MemoryLedgerStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	sub, ok := ms.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	subCopy := *sub
	return &subCopy, nil
}

func (ms *MemoryLedgerStore) GetCurrentByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var pending *Subscription
	for _, sub := range ms.subs {
		if sub.UserID != userID {
			continue
		}
		switch sub.Status {
		case StatusActive:
			subCopy := *sub
			return &subCopy, nil
		case StatusPendingRenewal:
			pending = sub
		}
	}
	if pending != nil {
		subCopy := *pending
		return &subCopy, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (ms *MemoryLedgerStore) Save(_ context.Context, sub *Subscription) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Clone to prevent external modifications after save
	subCopy := *sub
	ms.subs[sub.ID] = &subCopy
	return nil
}

func (ms *MemoryLedgerStore) ListDueForRenewal(_ context.Context, now time.Time) ([]*Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var due []*Subscription
	for _, sub := range ms.subs {
		if sub.IsRenewable(now) {
			subCopy := *sub
			due = append(due, &subCopy)
		}
	}
	return due, nil
}

func (ms *MemoryLedgerStore) ListEndedPeriods(_ context.Context, now time.Time) ([]*Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var ended []*Subscription
	for _, sub := range ms.subs {
		if sub.Status != StatusActive && sub.Status != StatusCancelled {
			continue
		}
		if sub.PeriodEnded(now) {
			subCopy := *sub
			ended = append(ended, &subCopy)
		}
	}
	return ended, nil
}

func (ms *MemoryLedgerStore) CountOccupied(_ context.Context) (int, map[Tier]int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	total := 0
	perTier := make(map[Tier]int)
	for _, sub := range ms.subs {
		if sub.Status == StatusActive || sub.Status == StatusPendingRenewal {
			total++
			perTier[sub.Tier]++
		}
	}
	return total, perTier, nil
}

// MemoryWaitingListStore implements WaitingListStore for testing and local
// development.
type MemoryWaitingListStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*WaitingListEntry
}

// NewMemoryWaitingListStore creates an empty in-memory waiting list.
func NewMemoryWaitingListStore() *MemoryWaitingListStore {
	return &MemoryWaitingListStore{entries: make(map[uuid.UUID]*WaitingListEntry)}
}

func (ms *MemoryWaitingListStore) Save(_ context.Context, entry *WaitingListEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entryCopy := *entry
	ms.entries[entry.ID] = &entryCopy
	return nil
}

func (ms *MemoryWaitingListStore) Delete(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(ms.entries, id)
	return nil
}

func (ms *MemoryWaitingListStore) Get(_ context.Context, id uuid.UUID) (*WaitingListEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entry, ok := ms.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	entryCopy := *entry
	return &entryCopy, nil
}

func (ms *MemoryWaitingListStore) GetByUser(_ context.Context, userID uuid.UUID) (*WaitingListEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var best *WaitingListEntry
	for _, entry := range ms.entries {
		if entry.UserID == userID {
			best = preferredEntry(best, entry)
		}
	}
	if best == nil {
		return nil, ErrEntryNotFound
	}
	entryCopy := *best
	return &entryCopy, nil
}

func (ms *MemoryWaitingListStore) GetByUserAndTier(_ context.Context, userID uuid.UUID, tier Tier) (*WaitingListEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, entry := range ms.entries {
		if entry.UserID == userID && entry.RequestedTier == tier {
			entryCopy := *entry
			return &entryCopy, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (ms *MemoryWaitingListStore) ListByTier(_ context.Context, tier Tier) ([]*WaitingListEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var entries []*WaitingListEntry
	for _, entry := range ms.entries {
		if entry.RequestedTier == tier {
			entryCopy := *entry
			entries = append(entries, &entryCopy)
		}
	}
	SortEntries(entries)
	return entries, nil
}

func (ms *MemoryWaitingListStore) CountByTier(_ context.Context) (map[Tier]int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	counts := make(map[Tier]int)
	for _, entry := range ms.entries {
		counts[entry.RequestedTier]++
	}
	return counts, nil
}
