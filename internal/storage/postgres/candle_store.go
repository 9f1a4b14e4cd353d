package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

const candleColumns = `
	token_id, interval_minutes, bucket_start_ms,
	open::text, high::text, low::text, close::text, volume::text
`

// GetLatest retrieves the candle with the greatest bucket start for a
// (token, interval) pair. Returns ErrNotFound if none exists.
func (s *CandleStore) GetLatest(ctx context.Context, tokenID int64, intervalMinutes int) (*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE token_id = $1 AND interval_minutes = $2
		ORDER BY bucket_start_ms DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, tokenID, intervalMinutes)
	c, err := scanCandle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest candle: %w", err)
	}
	return c, nil
}

// Upsert inserts or replaces a candle keyed by (token, interval, bucket start).
func (s *CandleStore) Upsert(ctx context.Context, c *domain.Candle) error {
	if c == nil || c.TokenID == 0 || c.IntervalMinutes == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO candles (
			token_id, interval_minutes, bucket_start_ms, open, high, low, close, volume
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_id, interval_minutes, bucket_start_ms) DO UPDATE SET
			open   = EXCLUDED.open,
			high   = EXCLUDED.high,
			low    = EXCLUDED.low,
			close  = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	_, err := s.pool.Exec(ctx, query,
		c.TokenID, c.IntervalMinutes, c.BucketStart,
		c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// GetRange retrieves candles within [from, to] inclusive, ordered by
// bucket start ASC.
func (s *CandleStore) GetRange(ctx context.Context, tokenID int64, intervalMinutes int, from, to int64) ([]*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE token_id = $1 AND interval_minutes = $2
		  AND bucket_start_ms >= $3 AND bucket_start_ms <= $4
		ORDER BY bucket_start_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, intervalMinutes, from, to)
	if err != nil {
		return nil, fmt.Errorf("get candle range: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}

// scanCandle scans a single candle row.
func scanCandle(row pgx.Row) (*domain.Candle, error) {
	var c domain.Candle
	var open, high, low, closePrice, volume string

	err := row.Scan(
		&c.TokenID, &c.IntervalMinutes, &c.BucketStart,
		&open, &high, &low, &closePrice, &volume,
	)
	if err != nil {
		return nil, err
	}

	if c.Open, err = decimal.NewFromString(open); err != nil {
		return nil, fmt.Errorf("parse open: %w", err)
	}
	if c.High, err = decimal.NewFromString(high); err != nil {
		return nil, fmt.Errorf("parse high: %w", err)
	}
	if c.Low, err = decimal.NewFromString(low); err != nil {
		return nil, fmt.Errorf("parse low: %w", err)
	}
	if c.Close, err = decimal.NewFromString(closePrice); err != nil {
		return nil, fmt.Errorf("parse close: %w", err)
	}
	if c.Volume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("parse volume: %w", err)
	}

	return &c, nil
}
