package domain

import "github.com/shopspring/decimal"

// Candle is one OHLCV bucket for a (token, interval) pair. Keyed by
// (TokenID, IntervalMinutes, BucketStart). Open is fixed at creation;
// High/Low/Close/Volume are updated while trades keep mapping into the
// bucket. Candles are never deleted.
//
// All fields use decimal to avoid cumulative rounding drift across
// thousands of folded trades.
type Candle struct {
	TokenID         int64
	IntervalMinutes int
	BucketStart     int64 // Unix timestamp in milliseconds, floor-aligned to the interval
	Open            decimal.Decimal
	High            decimal.Decimal
	Low             decimal.Decimal
	Close           decimal.Decimal
	Volume          decimal.Decimal // cumulative quote-asset (SOL) amount
}

// Supported candle interval granularities (in minutes).
var CandleIntervals = []int{1, 5, 60, 360, 1440}

// BucketStartFor returns the bucket start timestamp for a trade timestamp
// and interval: floor(ts / intervalMs) * intervalMs.
func BucketStartFor(timestampMs int64, intervalMinutes int) int64 {
	intervalMs := int64(intervalMinutes) * 60_000
	return (timestampMs / intervalMs) * intervalMs
}
