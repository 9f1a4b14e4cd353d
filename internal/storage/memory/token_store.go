package memory

import (
	"context"
	"sync"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	nextID int64
	byMint map[string]*domain.Token
	prices map[int64]*domain.TokenPrice
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		nextID: 1,
		byMint: make(map[string]*domain.Token),
		prices: make(map[int64]*domain.TokenPrice),
	}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts the token or updates its metadata fields if the mint exists.
func (s *TokenStore) Upsert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byMint[t.Mint]; ok {
		// Keep the original ID and first-seen timestamp; metadata fields
		// only move from empty to set.
		t.ID = existing.ID
		if t.FirstSeenTs == 0 || (existing.FirstSeenTs != 0 && existing.FirstSeenTs < t.FirstSeenTs) {
			t.FirstSeenTs = existing.FirstSeenTs
		}
		merged := *t
		fillEmpty(&merged, existing)
		s.byMint[t.Mint] = &merged
		*t = merged
		return nil
	}

	t.ID = s.nextID
	s.nextID++
	copy := *t
	s.byMint[t.Mint] = &copy
	return nil
}

// fillEmpty copies metadata fields from old where dst left them empty.
func fillEmpty(dst, old *domain.Token) {
	if dst.Name == "" {
		dst.Name = old.Name
	}
	if dst.Symbol == "" {
		dst.Symbol = old.Symbol
	}
	if dst.ImageURI == "" {
		dst.ImageURI = old.ImageURI
	}
	if dst.MetadataURI == "" {
		dst.MetadataURI = old.MetadataURI
	}
	if dst.Twitter == "" {
		dst.Twitter = old.Twitter
	}
	if dst.Telegram == "" {
		dst.Telegram = old.Telegram
	}
	if dst.Website == "" {
		dst.Website = old.Website
	}
	if dst.CreatedTs == 0 {
		dst.CreatedTs = old.CreatedTs
	}
}

// GetByMint retrieves a token by mint address.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byMint[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

// UpsertPrice inserts or replaces the latest-price record for a token.
func (s *TokenStore) UpsertPrice(_ context.Context, p *domain.TokenPrice) error {
	if p == nil || p.TokenID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.prices[p.TokenID] = &copy
	return nil
}

// GetPrice retrieves the latest-price record for a token.
// Not part of storage.TokenStore; used by tests.
func (s *TokenStore) GetPrice(tokenID int64) (*domain.TokenPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[tokenID]
	if !ok {
		return nil, false
	}
	copy := *p
	return &copy, true
}
