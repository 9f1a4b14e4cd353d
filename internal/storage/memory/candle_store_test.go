package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

func TestCandleStore_GetLatest(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, 1, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on empty store, got %v", err)
	}

	for _, start := range []int64{60000, 180000, 120000} {
		c := &domain.Candle{
			TokenID:         1,
			IntervalMinutes: 1,
			BucketStart:     start,
			Open:            decimal.NewFromInt(1),
			High:            decimal.NewFromInt(1),
			Low:             decimal.NewFromInt(1),
			Close:           decimal.NewFromInt(1),
		}
		if err := store.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.BucketStart != 180000 {
		t.Errorf("Expected latest bucket 180000, got %d", latest.BucketStart)
	}
}

func TestCandleStore_UpsertReplaces(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	c := &domain.Candle{
		TokenID:         2,
		IntervalMinutes: 5,
		BucketStart:     300000,
		Open:            decimal.NewFromInt(1),
		High:            decimal.NewFromInt(2),
		Low:             decimal.NewFromInt(1),
		Close:           decimal.NewFromInt(2),
		Volume:          decimal.NewFromInt(10),
	}
	if err := store.Upsert(ctx, c); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	c.Close = decimal.RequireFromString("1.5")
	c.Volume = decimal.NewFromInt(25)
	if err := store.Upsert(ctx, c); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	candles, err := store.GetRange(ctx, 2, 5, 0, 600000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("Expected 1 candle after upsert, got %d", len(candles))
	}
	if !candles[0].Volume.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Volume not replaced: got %s", candles[0].Volume)
	}
}

func TestCandleStore_GetRangeOrdering(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	for _, start := range []int64{120000, 0, 60000} {
		c := &domain.Candle{TokenID: 3, IntervalMinutes: 1, BucketStart: start}
		if err := store.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	candles, err := store.GetRange(ctx, 3, 1, 0, 120000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i-1].BucketStart >= candles[i].BucketStart {
			t.Errorf("Candles not ordered ascending at index %d", i)
		}
	}
}
