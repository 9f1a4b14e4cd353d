package storage

import (
	"context"

	"solana-trade-feed/internal/domain"
)

// TokenStore provides access to tokens and their latest-price records.
type TokenStore interface {
	// Upsert inserts the token or updates its metadata fields if the mint
	// already exists. It never fails on an existing mint. The token's ID is
	// populated on return.
	Upsert(ctx context.Context, t *domain.Token) error

	// GetByMint retrieves a token by mint address. Returns ErrNotFound if
	// not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// UpsertPrice inserts or replaces the latest-price record for a token.
	UpsertPrice(ctx context.Context, p *domain.TokenPrice) error
}

// TradeStore provides access to the trades table.
type TradeStore interface {
	// InsertIfAbsent adds a trade keyed by its transaction signature.
	// A trade with the same signature already present is a no-op, not an
	// error: idempotency is part of the contract, not exception handling.
	// Returns true if the trade was inserted, false if it already existed.
	InsertIfAbsent(ctx context.Context, t *domain.Trade) (bool, error)

	// GetByTokenSince retrieves trades for a token with timestamp >= fromTs,
	// ordered by timestamp ASC.
	GetByTokenSince(ctx context.Context, tokenID int64, fromTs int64) ([]*domain.Trade, error)

	// CountByTokenSince counts trades for a token with timestamp >= fromTs.
	CountByTokenSince(ctx context.Context, tokenID int64, fromTs int64) (int64, error)

	// ActiveTokensSince returns the IDs of tokens with at least minTrades
	// trades since fromTs.
	ActiveTokensSince(ctx context.Context, fromTs int64, minTrades int64) ([]int64, error)
}

// CandleStore provides access to OHLCV candles.
type CandleStore interface {
	// GetLatest retrieves the candle with the greatest bucket start for a
	// (token, interval) pair. Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, tokenID int64, intervalMinutes int) (*domain.Candle, error)

	// Upsert inserts or replaces a candle keyed by
	// (token, interval, bucket start).
	Upsert(ctx context.Context, c *domain.Candle) error

	// GetRange retrieves candles for a (token, interval) pair with bucket
	// start within [from, to] inclusive, ordered by bucket start ASC.
	GetRange(ctx context.Context, tokenID int64, intervalMinutes int, from, to int64) ([]*domain.Candle, error)
}

// TradeArchive is an append-only sink for raw decoded trade events,
// written in batches. Implementations do not deduplicate.
type TradeArchive interface {
	AppendBatch(ctx context.Context, events []*domain.TradeEvent, receivedMs int64) error
}
