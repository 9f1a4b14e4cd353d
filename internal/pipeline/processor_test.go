package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/candles"
	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/feed"
	"solana-trade-feed/internal/storage/memory"
)

// Well-formed 32-byte base58 addresses.
const (
	testMint   = "So11111111111111111111111111111111111111112"
	testTrader = "11111111111111111111111111111111"
)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testEvent(sig string, ts int64) *domain.TradeEvent {
	return &domain.TradeEvent{
		Mint:        testMint,
		Signature:   sig,
		IsBuy:       true,
		SolAmount:   decimal.NewFromInt(10),
		TokenAmount: decimal.NewFromInt(100),
		Timestamp:   ts,
		Trader:      testTrader,
		Name:        "Test Token",
		Symbol:      "TEST",
	}
}

func testProcessor(t *testing.T) (*Processor, *feed.EventQueue, *memory.TokenStore, *memory.TradeStore) {
	t.Helper()
	tokens := memory.NewTokenStore()
	trades := memory.NewTradeStore()
	queue := feed.NewEventQueue()
	proc := NewProcessor(tokens, trades, nil, queue, nil, nil, discard())
	return proc, queue, tokens, trades
}

func TestProcessor_PersistsTrade(t *testing.T) {
	proc, queue, tokens, trades := testProcessor(t)
	ctx := context.Background()

	ts := int64(1704067200000)
	queue.PushBack(testEvent("sig1", ts))

	n, err := proc.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 persisted, got %d", n)
	}

	token, err := tokens.GetByMint(ctx, testMint)
	if err != nil {
		t.Fatalf("Token not created: %v", err)
	}
	if token.Name != "Test Token" || token.Symbol != "TEST" {
		t.Errorf("Bad token metadata: %+v", token)
	}

	stored, err := trades.GetByTokenSince(ctx, token.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(stored))
	}

	tr := stored[0]
	if tr.Side != domain.TradeSideBuy {
		t.Errorf("Side = %q, want buy", tr.Side)
	}
	// Price is quote over base: 10 SOL / 100 tokens.
	if !tr.PriceSol.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("PriceSol = %s, want 0.1", tr.PriceSol)
	}
	if tr.Timestamp != ts {
		t.Errorf("Timestamp = %d, want %d", tr.Timestamp, ts)
	}
}

func TestProcessor_DuplicateIsConsumed(t *testing.T) {
	proc, queue, _, trades := testProcessor(t)
	ctx := context.Background()

	queue.PushBack(testEvent("sig1", 1704067200000))
	queue.PushBack(testEvent("sig1", 1704067200000))

	if _, err := proc.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if queue.Len() != 0 {
		t.Errorf("Duplicate should be consumed, %d still queued", queue.Len())
	}

	count, err := trades.CountByTokenSince(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 stored trade, got %d", count)
	}
}

func TestProcessor_InvalidEventsDropped(t *testing.T) {
	proc, queue, _, _ := testProcessor(t)
	ctx := context.Background()

	noSig := testEvent("", 1704067200000)
	badMint := testEvent("sig1", 1704067200000)
	badMint.Mint = "not-base58!!"
	zeroBase := testEvent("sig2", 1704067200000)
	zeroBase.TokenAmount = decimal.Zero

	queue.PushBack(noSig)
	queue.PushBack(badMint)
	queue.PushBack(zeroBase)

	n, err := proc.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 persisted, got %d", n)
	}
	if queue.Len() != 0 {
		t.Errorf("Invalid events must be consumed, %d still queued", queue.Len())
	}
}

func TestProcessor_SecondsTimestampNormalized(t *testing.T) {
	proc, queue, tokens, trades := testProcessor(t)
	ctx := context.Background()

	// Timestamp in seconds, as some event paths emit.
	queue.PushBack(testEvent("sig1", 1704067200))
	if _, err := proc.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	token, err := tokens.GetByMint(ctx, testMint)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := trades.GetByTokenSince(ctx, token.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].Timestamp != 1704067200000 {
		t.Errorf("Timestamp = %d, want milliseconds", stored[0].Timestamp)
	}
}

// failingTradeStore errors on insert while failures remains positive.
type failingTradeStore struct {
	*memory.TradeStore
	failures int
}

func (s *failingTradeStore) InsertIfAbsent(ctx context.Context, tr *domain.Trade) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("storage down")
	}
	return s.TradeStore.InsertIfAbsent(ctx, tr)
}

func TestProcessor_RequeueOnStorageFailure(t *testing.T) {
	tokens := memory.NewTokenStore()
	trades := &failingTradeStore{TradeStore: memory.NewTradeStore(), failures: 1}
	queue := feed.NewEventQueue()
	proc := NewProcessor(tokens, trades, nil, queue, nil, nil, discard())
	ctx := context.Background()

	queue.PushBack(testEvent("sig1", 1704067200000))
	queue.PushBack(testEvent("sig2", 1704067201000))

	n, err := proc.Drain(ctx)
	if err == nil {
		t.Fatal("Expected drain error")
	}
	if n != 0 {
		t.Errorf("Expected 0 persisted, got %d", n)
	}
	// Both events back on the queue, original order preserved.
	if queue.Len() != 2 {
		t.Fatalf("Expected 2 requeued, got %d", queue.Len())
	}
	batch := queue.PopBatch(2)
	if batch[0].Signature != "sig1" || batch[1].Signature != "sig2" {
		t.Errorf("Requeue broke ordering: %s, %s", batch[0].Signature, batch[1].Signature)
	}
}

func TestProcessor_SingleFlightDrain(t *testing.T) {
	proc, queue, _, _ := testProcessor(t)

	queue.PushBack(testEvent("sig1", 1704067200000))

	// Simulate an in-flight drain.
	proc.draining.Store(true)
	n, err := proc.Drain(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Overlapping drain should be a no-op, got n=%d err=%v", n, err)
	}
	if queue.Len() != 1 {
		t.Errorf("Overlapping drain must not touch the queue")
	}
	proc.draining.Store(false)
}

func TestIngestToCandle(t *testing.T) {
	tokens := memory.NewTokenStore()
	trades := memory.NewTradeStore()
	candleStore := memory.NewCandleStore()
	queue := feed.NewEventQueue()
	proc := NewProcessor(tokens, trades, nil, queue, nil, nil, discard())
	agg := candles.New(trades, candleStore, candles.Config{
		Intervals:    []int{1},
		ActiveWindow: 100000 * time.Hour,
	}, discard())
	ctx := context.Background()

	// One buy: 100 base units for 10 SOL.
	ts := int64(1704067200000)
	queue.PushBack(testEvent("sig1", ts))

	if _, err := proc.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if err := agg.Run(ctx); err != nil {
		t.Fatalf("Aggregation failed: %v", err)
	}

	token, err := tokens.GetByMint(ctx, testMint)
	if err != nil {
		t.Fatal(err)
	}
	c, err := candleStore.GetLatest(ctx, token.ID, 1)
	if err != nil {
		t.Fatalf("Expected a candle: %v", err)
	}

	want := decimal.RequireFromString("0.1")
	if !c.Open.Equal(want) || !c.High.Equal(want) || !c.Low.Equal(want) || !c.Close.Equal(want) {
		t.Errorf("Candle OHLC should all be 0.1: %+v", c)
	}
	if !c.Volume.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Volume = %s, want 10", c.Volume)
	}
	if c.BucketStart != domain.BucketStartFor(ts, 1) {
		t.Errorf("Bucket start = %d", c.BucketStart)
	}
}
