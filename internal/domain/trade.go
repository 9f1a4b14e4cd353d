package domain

import "github.com/shopspring/decimal"

// TradeEvent is the decoded form of one data frame payload from the
// realtime feed. SolAmount is the quote side (SOL), TokenAmount the base
// side in raw token units.
type TradeEvent struct {
	Mint         string          `json:"mint"`
	Signature    string          `json:"signature"`
	IsBuy        bool            `json:"is_buy"`
	SolAmount    decimal.Decimal `json:"sol_amount"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	Timestamp    int64           `json:"timestamp"` // Unix timestamp in milliseconds
	Trader       string          `json:"user"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	MetadataURI  string          `json:"uri"`
	ImageURI     string          `json:"image_uri"`
	CreatedTs    int64           `json:"created_timestamp"`
	VirtualSol   decimal.Decimal `json:"virtual_sol_reserves"`
	VirtualToken decimal.Decimal `json:"virtual_token_reserves"`
}

// Side returns the normalized trade side string.
func (e *TradeEvent) Side() string {
	if e.IsBuy {
		return TradeSideBuy
	}
	return TradeSideSell
}

// Trade is the canonical persisted trade, keyed by transaction signature.
// Corresponds to the trades table in PostgreSQL. Immutable once written.
type Trade struct {
	ID          int64
	TokenID     int64
	Signature   string // Solana transaction signature, unique
	Side        string // "buy" | "sell"
	SolAmount   decimal.Decimal
	TokenAmount decimal.Decimal
	PriceSol    decimal.Decimal // SOL per raw token unit
	PriceUsd    decimal.Decimal
	Trader      string
	IsWallet    bool  // trader address is an on-curve ed25519 key
	Timestamp   int64 // Unix timestamp in milliseconds
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)
