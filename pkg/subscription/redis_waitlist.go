package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWaitingListStore implements WaitingListStore on Redis. Each tier's
// queue is a sorted set whose score encodes (priority class, arrival), so
// dequeue order comes straight from ZRANGE. Entry bodies are stored as
// JSON, and a per-user hash maps tier to entry ID for the uniqueness
// checks.
type RedisWaitingListStore struct {
	client redis.UniversalClient
}

// NewRedisWaitingListStore creates a waiting list store backed by the
// given Redis client.
func NewRedisWaitingListStore(client redis.UniversalClient) *RedisWaitingListStore {
	return &RedisWaitingListStore{client: client}
}

func queueKey(tier Tier) string            { return "waitlist:queue:" + string(tier) }
func entryKey(id uuid.UUID) string         { return "waitlist:entry:" + id.String() }
func userIndexKey(userID uuid.UUID) string { return "waitlist:user:" + userID.String() }

// queueScore orders urgent before high before normal, then by arrival.
// Millisecond arrival keeps ties deterministic within float64 precision.
func queueScore(entry *WaitingListEntry) float64 {
	return float64(entry.Priority.Rank())*1e14 + float64(entry.JoinedAt.UnixMilli())
}

func (s *RedisWaitingListStore) Save(ctx context.Context, entry *WaitingListEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal waiting list entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(entry.ID), body, 0)
	pipe.ZAdd(ctx, queueKey(entry.RequestedTier), redis.Z{
		Score:  queueScore(entry),
		Member: entry.ID.String(),
	})
	pipe.HSet(ctx, userIndexKey(entry.UserID), string(entry.RequestedTier), entry.ID.String())
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisWaitingListStore) Delete(ctx context.Context, id uuid.UUID) error {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	pipe.ZRem(ctx, queueKey(entry.RequestedTier), id.String())
	pipe.HDel(ctx, userIndexKey(entry.UserID), string(entry.RequestedTier))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisWaitingListStore) Get(ctx context.Context, id uuid.UUID) (*WaitingListEntry, error) {
	body, err := s.client.Get(ctx, entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	var entry WaitingListEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal waiting list entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisWaitingListStore) GetByUser(ctx context.Context, userID uuid.UUID) (*WaitingListEntry, error) {
	ids, err := s.client.HVals(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	// HVals order is arbitrary; resolve every entry and apply the shared
	// preference rule so the result does not depend on map iteration.
	var best *WaitingListEntry
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		entry, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				continue
			}
			return nil, err
		}
		best = preferredEntry(best, entry)
	}
	if best == nil {
		return nil, ErrEntryNotFound
	}
	return best, nil
}

func (s *RedisWaitingListStore) GetByUserAndTier(ctx context.Context, userID uuid.UUID, tier Tier) (*WaitingListEntry, error) {
	raw, err := s.client.HGet(ctx, userIndexKey(userID), string(tier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrEntryNotFound
	}
	return s.Get(ctx, id)
}

func (s *RedisWaitingListStore) ListByTier(ctx context.Context, tier Tier) ([]*WaitingListEntry, error) {
	ids, err := s.client.ZRange(ctx, queueKey(tier), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*WaitingListEntry, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		entry, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				continue // queue member without a body, skip it
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisWaitingListStore) CountByTier(ctx context.Context) (map[Tier]int, error) {
	counts := make(map[Tier]int)
	for _, tier := range PaidTiers() {
		n, err := s.client.ZCard(ctx, queueKey(tier)).Result()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts[tier] = int(n)
		}
	}
	return counts, nil
}
