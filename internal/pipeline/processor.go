// Package pipeline turns queued trade events into persisted trades:
// validation, pricing, token upsert, enrichment and idempotent insert.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/feed"
	"solana-trade-feed/internal/observability"
	"solana-trade-feed/internal/storage"
)

// DefaultBatchSize is how many events one drain pass takes off the queue.
const DefaultBatchSize = 25

// priceScale is the decimal precision of derived per-unit prices.
const priceScale = 18

// Processor drains the event queue in batches and persists trades.
// Validation failures and duplicates consume the event; only storage
// errors leave it on the queue for retry.
type Processor struct {
	tokens  storage.TokenStore
	trades  storage.TradeStore
	archive storage.TradeArchive // optional, nil disables archiving

	queue    *feed.EventQueue
	solPrice *SolPrice
	enricher *Enricher
	logger   *log.Logger

	batchSize int
	draining  atomic.Bool
	now       func() time.Time
}

// NewProcessor creates a Processor. archive, solPrice and enricher may
// be nil to disable the corresponding step.
func NewProcessor(
	tokens storage.TokenStore,
	trades storage.TradeStore,
	archive storage.TradeArchive,
	queue *feed.EventQueue,
	solPrice *SolPrice,
	enricher *Enricher,
	logger *log.Logger,
) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{
		tokens:    tokens,
		trades:    trades,
		archive:   archive,
		queue:     queue,
		solPrice:  solPrice,
		enricher:  enricher,
		logger:    logger,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

// Drain processes one batch off the queue and returns how many events
// were persisted. Only one drain runs at a time: a call overlapping a
// running drain returns immediately. On a storage error the failed
// event and the unprocessed remainder are requeued at the head, in
// order, and the error is returned so the caller can back off.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	if p.draining.Swap(true) {
		return 0, nil
	}
	defer p.draining.Store(false)

	events := p.queue.PopBatch(p.batchSize)
	if len(events) == 0 {
		return 0, nil
	}
	defer observability.UpdateQueueDepth(p.queue.Len())

	start := p.now()
	persisted := 0

	for i, ev := range events {
		if err := p.processEvent(ctx, ev); err != nil {
			// Requeue the failed event and everything after it, head first
			// so original order is preserved.
			for j := len(events) - 1; j >= i; j-- {
				p.queue.PushFront(events[j])
			}
			observability.RecordRequeue()
			return persisted, fmt.Errorf("process event %s: %w", ev.Signature, err)
		}
		persisted++
	}

	if p.archive != nil {
		// Best effort: the archive is a secondary sink and must not hold
		// events hostage once they are in primary storage.
		if err := p.archive.AppendBatch(ctx, events, p.now().UnixMilli()); err != nil {
			p.logger.Printf("Trade archive append failed: %v", err)
		}
	}

	observability.RecordBatch(p.now().Sub(start).Seconds())
	return persisted, nil
}

// processEvent validates, prices and persists one trade event. A nil
// return means the event is consumed, whether persisted, duplicate or
// dropped invalid. An error means storage failed and the event must be
// retried.
func (p *Processor) processEvent(ctx context.Context, ev *domain.TradeEvent) error {
	reason, ok := validate(ev)
	if !ok {
		observability.RecordTradeInvalid(reason)
		return nil
	}

	ts := normalizeTimestamp(ev.Timestamp)
	priceSol := ev.SolAmount.DivRound(ev.TokenAmount, priceScale)

	priceUsd := decimal.Zero
	if p.solPrice != nil {
		if rate, ok := p.solPrice.Rate(ctx); ok {
			priceUsd = priceSol.Mul(rate)
		}
	}

	token, err := p.upsertToken(ctx, ev, ts)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", ev.Mint, err)
	}

	trade := &domain.Trade{
		TokenID:     token.ID,
		Signature:   ev.Signature,
		Side:        ev.Side(),
		SolAmount:   ev.SolAmount,
		TokenAmount: ev.TokenAmount,
		PriceSol:    priceSol,
		PriceUsd:    priceUsd,
		Trader:      ev.Trader,
		IsWallet:    isWalletAddress(ev.Trader),
		Timestamp:   ts,
	}

	inserted, err := p.trades.InsertIfAbsent(ctx, trade)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	if !inserted {
		observability.RecordTradeDuplicate()
		return nil
	}
	observability.RecordTradePersisted(p.now().Unix())

	price := &domain.TokenPrice{
		TokenID:     token.ID,
		PriceSol:    priceSol,
		PriceUsd:    priceUsd,
		LastTradeTs: ts,
	}
	if err := p.tokens.UpsertPrice(ctx, price); err != nil {
		// The trade is already durable; a stale latest-price record is
		// corrected by the next trade on this token.
		p.logger.Printf("Latest price update failed for token %d: %v", token.ID, err)
	}

	return nil
}

// upsertToken builds the token row from the event, enriching missing
// metadata from the off-chain document when one is referenced.
func (p *Processor) upsertToken(ctx context.Context, ev *domain.TradeEvent, ts int64) (*domain.Token, error) {
	token := &domain.Token{
		Mint:        ev.Mint,
		Name:        ev.Name,
		Symbol:      ev.Symbol,
		ImageURI:    rewriteIPFS(ev.ImageURI),
		MetadataURI: ev.MetadataURI,
		CreatedTs:   normalizeTimestamp(ev.CreatedTs),
		FirstSeenTs: ts,
	}

	if p.enricher != nil && needsEnrichment(token) {
		meta, err := p.enricher.Fetch(ctx, ev.MetadataURI)
		if err == nil && meta != nil {
			applyMetadata(token, meta)
		}
	}

	if err := p.tokens.Upsert(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func needsEnrichment(t *domain.Token) bool {
	if t.MetadataURI == "" {
		return false
	}
	return t.Name == "" || t.Symbol == "" || t.ImageURI == ""
}

func applyMetadata(t *domain.Token, meta *domain.TokenMetadata) {
	if t.Name == "" {
		t.Name = meta.Name
	}
	if t.Symbol == "" {
		t.Symbol = meta.Symbol
	}
	if t.ImageURI == "" {
		t.ImageURI = meta.Image
	}
	t.Twitter = meta.Twitter
	t.Telegram = meta.Telegram
	t.Website = meta.Website
}

// validate checks the event for the fields persistence depends on.
// Returns the drop reason and false when the event must be discarded.
func validate(ev *domain.TradeEvent) (string, bool) {
	switch {
	case ev.Signature == "":
		return "missing_signature", false
	case !isValidAddress(ev.Mint):
		return "bad_mint", false
	case !isValidAddress(ev.Trader):
		return "bad_trader", false
	case ev.TokenAmount.LessThanOrEqual(decimal.Zero):
		return "non_positive_base", false
	case ev.SolAmount.IsNegative():
		return "negative_quote", false
	case ev.Timestamp <= 0:
		return "bad_timestamp", false
	}
	return "", true
}

// normalizeTimestamp coerces a feed timestamp to milliseconds. Some
// event paths emit seconds; anything below 1e12 cannot be a plausible
// millisecond timestamp for this system's lifetime.
func normalizeTimestamp(ts int64) int64 {
	if ts > 0 && ts < 1_000_000_000_000 {
		return ts * 1000
	}
	return ts
}
