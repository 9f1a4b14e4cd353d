package clickhouse

import (
	"context"
	"fmt"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

// TradeArchive implements storage.TradeArchive using ClickHouse.
// The archive is append-only: MergeTree does not enforce uniqueness and
// deduplication happens downstream by signature, so retransmitted events
// may appear more than once here. That is acceptable for replay and
// analytics use.
type TradeArchive struct {
	conn *Conn
}

// NewTradeArchive creates a new TradeArchive.
func NewTradeArchive(conn *Conn) *TradeArchive {
	return &TradeArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// AppendBatch inserts a batch of raw decoded events.
func (a *TradeArchive) AppendBatch(ctx context.Context, events []*domain.TradeEvent, receivedMs int64) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO trade_archive (
			signature, mint, side, sol_amount, token_amount, trader, timestamp_ms, received_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Signature, e.Mint, e.Side(),
			e.SolAmount, e.TokenAmount,
			e.Trader, uint64(e.Timestamp), uint64(receivedMs),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
