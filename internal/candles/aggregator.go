// Package candles implements incremental OHLCV aggregation over
// persisted trades.
package candles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/observability"
	"solana-trade-feed/internal/storage"
)

// Config controls an aggregation run.
type Config struct {
	// Intervals in minutes to aggregate. Defaults to domain.CandleIntervals.
	Intervals []int
	// MinTrades is the activity threshold: tokens with fewer trades in
	// the active window are skipped by Run (but not by AggregateToken).
	MinTrades int64
	// ActiveWindow is how far back token activity is measured.
	ActiveWindow time.Duration
	// ColdStartLookback bounds the trade scan for a (token, interval)
	// pair that has no candles yet. Zero means scan all history.
	ColdStartLookback time.Duration
}

// Aggregator folds trades into OHLCV candles. Each (token, interval)
// pair carries a watermark, the bucket start of its latest candle; a
// run re-reads trades from the watermark on, rebuilds every touched
// bucket from scratch and upserts the results. Re-running over the
// same trades converges to identical candles, so crashes and overlaps
// are harmless.
type Aggregator struct {
	trades  storage.TradeStore
	candles storage.CandleStore
	cfg     Config
	logger  *log.Logger
	now     func() time.Time
}

// New creates an Aggregator.
func New(trades storage.TradeStore, candles storage.CandleStore, cfg Config, logger *log.Logger) *Aggregator {
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = domain.CandleIntervals
	}
	if cfg.MinTrades < 1 {
		cfg.MinTrades = 1
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{
		trades:  trades,
		candles: candles,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run aggregates all tokens that cleared the activity threshold in the
// active window. A failing (token, interval) pair is logged and skipped;
// it never blocks the other pairs. The returned error joins all pair
// failures.
func (a *Aggregator) Run(ctx context.Context) error {
	start := a.now()
	fromTs := start.Add(-a.cfg.ActiveWindow).UnixMilli()

	tokenIDs, err := a.trades.ActiveTokensSince(ctx, fromTs, a.cfg.MinTrades)
	if err != nil {
		observability.RecordAggregationRun("error", a.now().Sub(start).Seconds(), a.now().Unix())
		return fmt.Errorf("select active tokens: %w", err)
	}

	var errs []error
	for _, tokenID := range tokenIDs {
		for _, interval := range a.cfg.Intervals {
			if err := a.aggregatePair(ctx, tokenID, interval); err != nil {
				a.logger.Printf("Aggregation failed for token %d interval %dm: %v", tokenID, interval, err)
				errs = append(errs, err)
			}
		}
	}

	status := "ok"
	if len(errs) > 0 {
		status = "partial"
	}
	observability.RecordAggregationRun(status, a.now().Sub(start).Seconds(), a.now().Unix())
	return errors.Join(errs...)
}

// AggregateToken aggregates every configured interval for one token,
// regardless of the activity threshold.
func (a *Aggregator) AggregateToken(ctx context.Context, tokenID int64) error {
	var errs []error
	for _, interval := range a.cfg.Intervals {
		if err := a.aggregatePair(ctx, tokenID, interval); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// aggregatePair rebuilds all buckets touched by trades at or after the
// pair's watermark. The watermark bucket itself is always rebuilt in
// full: its trades are re-read from the watermark on, so a candle that
// was open during the previous run picks up its late trades.
func (a *Aggregator) aggregatePair(ctx context.Context, tokenID int64, intervalMinutes int) error {
	fromTs, err := a.watermark(ctx, tokenID, intervalMinutes)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}

	trades, err := a.trades.GetByTokenSince(ctx, tokenID, fromTs)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	buckets := fold(trades, tokenID, intervalMinutes)

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	for _, start := range starts {
		if err := a.candles.Upsert(ctx, buckets[start]); err != nil {
			return fmt.Errorf("upsert candle at %d: %w", start, err)
		}
		observability.RecordCandleUpserted(strconv.Itoa(intervalMinutes))
	}
	return nil
}

// watermark returns the trade-scan lower bound for a pair: the bucket
// start of its latest candle, or the cold start bound when the pair has
// no candles yet.
func (a *Aggregator) watermark(ctx context.Context, tokenID int64, intervalMinutes int) (int64, error) {
	latest, err := a.candles.GetLatest(ctx, tokenID, intervalMinutes)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if a.cfg.ColdStartLookback > 0 {
				return a.now().Add(-a.cfg.ColdStartLookback).UnixMilli(), nil
			}
			return 0, nil
		}
		return 0, err
	}
	return latest.BucketStart, nil
}

// fold builds complete candles from trades, which must be ordered by
// timestamp ascending. Open is the first trade's price, Close the last,
// High and Low the extremes, Volume the summed quote amount.
func fold(trades []*domain.Trade, tokenID int64, intervalMinutes int) map[int64]*domain.Candle {
	buckets := make(map[int64]*domain.Candle)

	for _, trade := range trades {
		start := domain.BucketStartFor(trade.Timestamp, intervalMinutes)
		c, ok := buckets[start]
		if !ok {
			buckets[start] = &domain.Candle{
				TokenID:         tokenID,
				IntervalMinutes: intervalMinutes,
				BucketStart:     start,
				Open:            trade.PriceSol,
				High:            trade.PriceSol,
				Low:             trade.PriceSol,
				Close:           trade.PriceSol,
				Volume:          trade.SolAmount,
			}
			continue
		}
		if trade.PriceSol.GreaterThan(c.High) {
			c.High = trade.PriceSol
		}
		if trade.PriceSol.LessThan(c.Low) {
			c.Low = trade.PriceSol
		}
		c.Close = trade.PriceSol
		c.Volume = c.Volume.Add(trade.SolAmount)
	}

	return buckets
}
