package postgres_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
	pgstore "solana-trade-feed/internal/storage/postgres"
)

func testCandle(tokenID int64, interval int, bucketStart int64) *domain.Candle {
	return &domain.Candle{
		TokenID:         tokenID,
		IntervalMinutes: interval,
		BucketStart:     bucketStart,
		Open:            decimal.RequireFromString("1.0"),
		High:            decimal.RequireFromString("1.5"),
		Low:             decimal.RequireFromString("0.8"),
		Close:           decimal.RequireFromString("1.2"),
		Volume:          decimal.RequireFromString("42.5"),
	}
}

func TestCandleStore_UpsertAndGetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token := createTestToken(t, ctx, pool, "Mint1")
	store := pgstore.NewCandleStore(pool)

	base := int64(1704067200000)
	require.NoError(t, store.Upsert(ctx, testCandle(token.ID, 1, base)))
	require.NoError(t, store.Upsert(ctx, testCandle(token.ID, 1, base+60_000)))

	latest, err := store.GetLatest(ctx, token.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, base+60_000, latest.BucketStart)
	assert.True(t, latest.Open.Equal(decimal.RequireFromString("1.0")))
	assert.True(t, latest.Volume.Equal(decimal.RequireFromString("42.5")))
}

func TestCandleStore_GetLatestNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token := createTestToken(t, ctx, pool, "Mint1")
	store := pgstore.NewCandleStore(pool)

	_, err := store.GetLatest(ctx, token.ID, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// An interval with no candles is independent of others.
	require.NoError(t, store.Upsert(ctx, testCandle(token.ID, 5, 1704067200000)))
	_, err = store.GetLatest(ctx, token.ID, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandleStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token := createTestToken(t, ctx, pool, "Mint1")
	store := pgstore.NewCandleStore(pool)

	base := int64(1704067200000)
	require.NoError(t, store.Upsert(ctx, testCandle(token.ID, 1, base)))

	updated := testCandle(token.ID, 1, base)
	updated.High = decimal.RequireFromString("2.0")
	updated.Close = decimal.RequireFromString("1.9")
	updated.Volume = decimal.RequireFromString("100")
	require.NoError(t, store.Upsert(ctx, updated))

	got, err := store.GetLatest(ctx, token.ID, 1)
	require.NoError(t, err)
	assert.True(t, got.High.Equal(decimal.RequireFromString("2.0")))
	assert.True(t, got.Close.Equal(decimal.RequireFromString("1.9")))
	assert.True(t, got.Volume.Equal(decimal.RequireFromString("100")))

	count, err := store.GetRange(ctx, token.ID, 1, 0, base+60_000)
	require.NoError(t, err)
	assert.Len(t, count, 1)
}

func TestCandleStore_GetRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	token := createTestToken(t, ctx, pool, "Mint1")
	store := pgstore.NewCandleStore(pool)

	base := int64(1704067200000)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Upsert(ctx, testCandle(token.ID, 1, base+int64(i)*60_000)))
	}

	// Inclusive bounds, ascending order.
	candles, err := store.GetRange(ctx, token.ID, 1, base+60_000, base+2*60_000)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, base+60_000, candles[0].BucketStart)
	assert.Equal(t, base+2*60_000, candles[1].BucketStart)
}
