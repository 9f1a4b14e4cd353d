package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage"
)

func TestTokenStore_UpsertAssignsID(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	token := &domain.Token{Mint: "M1", Symbol: "AAA", FirstSeenTs: 1000}
	if err := store.Upsert(ctx, token); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if token.ID == 0 {
		t.Fatal("Expected ID to be assigned")
	}

	// Upserting the same mint keeps the ID and never fails.
	again := &domain.Token{Mint: "M1", Name: "Token One", FirstSeenTs: 2000}
	if err := store.Upsert(ctx, again); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if again.ID != token.ID {
		t.Errorf("ID changed on upsert: got %d, want %d", again.ID, token.ID)
	}

	got, err := store.GetByMint(ctx, "M1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if got.Symbol != "AAA" {
		t.Errorf("Existing symbol lost on upsert: got %q", got.Symbol)
	}
	if got.Name != "Token One" {
		t.Errorf("New name not applied on upsert: got %q", got.Name)
	}
	if got.FirstSeenTs != 1000 {
		t.Errorf("FirstSeenTs should keep earliest value: got %d", got.FirstSeenTs)
	}
}

func TestTokenStore_GetByMintNotFound(t *testing.T) {
	store := NewTokenStore()

	_, err := store.GetByMint(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTokenStore_UpsertPrice(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	token := &domain.Token{Mint: "M1"}
	if err := store.Upsert(ctx, token); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	price := &domain.TokenPrice{
		TokenID:     token.ID,
		PriceSol:    decimal.RequireFromString("0.5"),
		PriceUsd:    decimal.RequireFromString("75"),
		LastTradeTs: 1234,
	}
	if err := store.UpsertPrice(ctx, price); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}

	price.PriceSol = decimal.RequireFromString("0.6")
	price.LastTradeTs = 5678
	if err := store.UpsertPrice(ctx, price); err != nil {
		t.Fatalf("Second UpsertPrice failed: %v", err)
	}

	got, ok := store.GetPrice(token.ID)
	if !ok {
		t.Fatal("Expected price record")
	}
	if !got.PriceSol.Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("Price not replaced: got %s", got.PriceSol)
	}
	if got.LastTradeTs != 5678 {
		t.Errorf("LastTradeTs not replaced: got %d", got.LastTradeTs)
	}
}
