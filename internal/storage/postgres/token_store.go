package postgres

import (
	"context"
	"fmt"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts the token or updates its metadata fields if the mint
// already exists. Metadata columns only move from empty to set so a later
// sparse event cannot blank out previously enriched fields.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			mint, name, symbol, image_uri, metadata_uri, twitter, telegram, website, created_ts, first_seen_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (mint) DO UPDATE SET
			name         = COALESCE(NULLIF(tokens.name, ''), EXCLUDED.name),
			symbol       = COALESCE(NULLIF(tokens.symbol, ''), EXCLUDED.symbol),
			image_uri    = COALESCE(NULLIF(tokens.image_uri, ''), EXCLUDED.image_uri),
			metadata_uri = COALESCE(NULLIF(tokens.metadata_uri, ''), EXCLUDED.metadata_uri),
			twitter      = COALESCE(NULLIF(tokens.twitter, ''), EXCLUDED.twitter),
			telegram     = COALESCE(NULLIF(tokens.telegram, ''), EXCLUDED.telegram),
			website      = COALESCE(NULLIF(tokens.website, ''), EXCLUDED.website),
			created_ts   = CASE WHEN tokens.created_ts = 0 THEN EXCLUDED.created_ts ELSE tokens.created_ts END,
			first_seen_ts = LEAST(tokens.first_seen_ts, EXCLUDED.first_seen_ts)
		RETURNING id, first_seen_ts
	`

	err := s.pool.QueryRow(ctx, query,
		t.Mint, t.Name, t.Symbol, t.ImageURI, t.MetadataURI,
		t.Twitter, t.Telegram, t.Website, t.CreatedTs, t.FirstSeenTs,
	).Scan(&t.ID, &t.FirstSeenTs)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	query := `
		SELECT id, mint, name, symbol, image_uri, metadata_uri, twitter, telegram, website, created_ts, first_seen_ts
		FROM tokens
		WHERE mint = $1
	`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, mint).Scan(
		&t.ID, &t.Mint, &t.Name, &t.Symbol, &t.ImageURI, &t.MetadataURI,
		&t.Twitter, &t.Telegram, &t.Website, &t.CreatedTs, &t.FirstSeenTs,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by mint: %w", err)
	}
	return &t, nil
}

// UpsertPrice inserts or replaces the latest-price record for a token.
func (s *TokenStore) UpsertPrice(ctx context.Context, p *domain.TokenPrice) error {
	if p == nil || p.TokenID == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_prices (token_id, price_sol, price_usd, last_trade_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO UPDATE SET
			price_sol     = EXCLUDED.price_sol,
			price_usd     = EXCLUDED.price_usd,
			last_trade_ts = EXCLUDED.last_trade_ts
	`

	_, err := s.pool.Exec(ctx, query,
		p.TokenID, p.PriceSol.String(), p.PriceUsd.String(), p.LastTradeTs,
	)
	if err != nil {
		return fmt.Errorf("upsert token price: %w", err)
	}
	return nil
}
