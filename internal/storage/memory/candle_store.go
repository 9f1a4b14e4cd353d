package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by composite key
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// candleKey generates a unique key for a candle.
func candleKey(tokenID int64, intervalMinutes int, bucketStart int64) string {
	return fmt.Sprintf("%d|%d|%d", tokenID, intervalMinutes, bucketStart)
}

// GetLatest retrieves the candle with the greatest bucket start for a
// (token, interval) pair.
func (s *CandleStore) GetLatest(_ context.Context, tokenID int64, intervalMinutes int) (*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Candle
	for _, c := range s.data {
		if c.TokenID != tokenID || c.IntervalMinutes != intervalMinutes {
			continue
		}
		if latest == nil || c.BucketStart > latest.BucketStart {
			latest = c
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}
	copy := *latest
	return &copy, nil
}

// Upsert inserts or replaces a candle keyed by (token, interval, bucket start).
func (s *CandleStore) Upsert(_ context.Context, c *domain.Candle) error {
	if c == nil || c.TokenID == 0 || c.IntervalMinutes == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *c
	s.data[candleKey(c.TokenID, c.IntervalMinutes, c.BucketStart)] = &copy
	return nil
}

// GetRange retrieves candles within [from, to] inclusive, ordered by
// bucket start ASC.
func (s *CandleStore) GetRange(_ context.Context, tokenID int64, intervalMinutes int, from, to int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.TokenID == tokenID && c.IntervalMinutes == intervalMinutes &&
			c.BucketStart >= from && c.BucketStart <= to {
			copy := *c
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})

	return result, nil
}
