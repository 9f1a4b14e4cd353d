package domain

import "github.com/shopspring/decimal"

// Token is a traded token, created on first sight of a trade referencing
// its mint. Corresponds to the tokens table in PostgreSQL.
type Token struct {
	ID          int64
	Mint        string // base58 mint address, unique
	Name        string
	Symbol      string
	ImageURI    string
	MetadataURI string
	Twitter     string
	Telegram    string
	Website     string
	CreatedTs   int64 // token creation timestamp from the feed (ms), 0 if unknown
	FirstSeenTs int64 // first trade observed for this mint (ms)
}

// TokenPrice is the denormalized latest-price record for a token,
// updated on every new trade.
type TokenPrice struct {
	TokenID     int64
	PriceSol    decimal.Decimal
	PriceUsd    decimal.Decimal
	LastTradeTs int64 // Unix timestamp in milliseconds
}

// TokenMetadata is the off-chain metadata document referenced by a trade
// event's URI field. All fields are optional.
type TokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Image    string `json:"image"`
	Twitter  string `json:"twitter"`
	Telegram string `json:"telegram"`
	Website  string `json:"website"`
}
