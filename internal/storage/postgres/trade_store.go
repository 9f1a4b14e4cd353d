package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertIfAbsent adds a trade keyed by its transaction signature.
// ON CONFLICT DO NOTHING makes the duplicate path explicit instead of
// catching a unique violation: the insert is a no-op and the method
// reports inserted=false.
func (s *TradeStore) InsertIfAbsent(ctx context.Context, t *domain.Trade) (bool, error) {
	if t == nil || t.Signature == "" || t.TokenID == 0 {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			token_id, signature, side, sol_amount, token_amount, price_sol, price_usd, trader, is_wallet, timestamp_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signature) DO NOTHING
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		t.TokenID, t.Signature, t.Side,
		t.SolAmount.String(), t.TokenAmount.String(),
		t.PriceSol.String(), t.PriceUsd.String(),
		t.Trader, t.IsWallet, t.Timestamp,
	).Scan(&t.ID)
	if err != nil {
		if isNotFoundError(err) {
			// Conflict path: no row returned, trade already present.
			return false, nil
		}
		if isDuplicateKeyError(err) {
			// Unique violation raced past ON CONFLICT (concurrent insert
			// committed between planning and execution). Same outcome.
			return false, nil
		}
		return false, fmt.Errorf("insert trade: %w", err)
	}
	return true, nil
}

// GetByTokenSince retrieves trades for a token with timestamp >= fromTs,
// ordered by timestamp ASC.
func (s *TradeStore) GetByTokenSince(ctx context.Context, tokenID int64, fromTs int64) ([]*domain.Trade, error) {
	query := `
		SELECT id, token_id, signature, side,
		       sol_amount::text, token_amount::text, price_sol::text, price_usd::text,
		       trader, is_wallet, timestamp_ms
		FROM trades
		WHERE token_id = $1 AND timestamp_ms >= $2
		ORDER BY timestamp_ms ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, fromTs)
	if err != nil {
		return nil, fmt.Errorf("get trades since: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountByTokenSince counts trades for a token with timestamp >= fromTs.
func (s *TradeStore) CountByTokenSince(ctx context.Context, tokenID int64, fromTs int64) (int64, error) {
	query := `SELECT COUNT(*) FROM trades WHERE token_id = $1 AND timestamp_ms >= $2`

	var n int64
	if err := s.pool.QueryRow(ctx, query, tokenID, fromTs).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trades since: %w", err)
	}
	return n, nil
}

// ActiveTokensSince returns the IDs of tokens with at least minTrades
// trades since fromTs, ordered by token ID ASC.
func (s *TradeStore) ActiveTokensSince(ctx context.Context, fromTs int64, minTrades int64) ([]int64, error) {
	query := `
		SELECT token_id
		FROM trades
		WHERE timestamp_ms >= $1
		GROUP BY token_id
		HAVING COUNT(*) >= $2
		ORDER BY token_id ASC
	`

	rows, err := s.pool.Query(ctx, query, fromTs, minTrades)
	if err != nil {
		return nil, fmt.Errorf("active tokens since: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan token id: %w", err)
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token ids: %w", err)
	}
	return result, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		var solAmount, tokenAmount, priceSol, priceUsd string

		err := rows.Scan(
			&t.ID, &t.TokenID, &t.Signature, &t.Side,
			&solAmount, &tokenAmount, &priceSol, &priceUsd,
			&t.Trader, &t.IsWallet, &t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		if t.SolAmount, err = decimal.NewFromString(solAmount); err != nil {
			return nil, fmt.Errorf("parse sol_amount: %w", err)
		}
		if t.TokenAmount, err = decimal.NewFromString(tokenAmount); err != nil {
			return nil, fmt.Errorf("parse token_amount: %w", err)
		}
		if t.PriceSol, err = decimal.NewFromString(priceSol); err != nil {
			return nil, fmt.Errorf("parse price_sol: %w", err)
		}
		if t.PriceUsd, err = decimal.NewFromString(priceUsd); err != nil {
			return nil, fmt.Errorf("parse price_usd: %w", err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
