package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	nextID int64
	bySig  map[string]*domain.Trade
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		nextID: 1,
		bySig:  make(map[string]*domain.Trade),
	}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertIfAbsent adds a trade keyed by signature. Returns false without
// error when the signature already exists.
func (s *TradeStore) InsertIfAbsent(_ context.Context, t *domain.Trade) (bool, error) {
	if t == nil || t.Signature == "" || t.TokenID == 0 {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySig[t.Signature]; exists {
		return false, nil
	}

	t.ID = s.nextID
	s.nextID++
	copy := *t
	s.bySig[t.Signature] = &copy
	return true, nil
}

// GetByTokenSince retrieves trades for a token with timestamp >= fromTs,
// ordered by timestamp ASC.
func (s *TradeStore) GetByTokenSince(_ context.Context, tokenID int64, fromTs int64) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.bySig {
		if t.TokenID == tokenID && t.Timestamp >= fromTs {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// CountByTokenSince counts trades for a token with timestamp >= fromTs.
func (s *TradeStore) CountByTokenSince(_ context.Context, tokenID int64, fromTs int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.bySig {
		if t.TokenID == tokenID && t.Timestamp >= fromTs {
			n++
		}
	}
	return n, nil
}

// ActiveTokensSince returns the IDs of tokens with at least minTrades
// trades since fromTs, ordered by token ID ASC.
func (s *TradeStore) ActiveTokensSince(_ context.Context, fromTs int64, minTrades int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int64)
	for _, t := range s.bySig {
		if t.Timestamp >= fromTs {
			counts[t.TokenID]++
		}
	}

	var result []int64
	for tokenID, n := range counts {
		if n >= minTrades {
			result = append(result, tokenID)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}
