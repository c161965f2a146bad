// Package model defines the core domain types shared across the marketplace.
// Monetary values are shopspring decimals, never float64.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TokenID identifies one token within a collection.
type TokenID uint32

// SaleType is the sale policy of an ask.
type SaleType string

const (
	// FixedPrice settles as soon as a bid matches the ask price exactly.
	FixedPrice SaleType = "fixed_price"
	// Auction accumulates bids; the seller settles by accepting one.
	Auction SaleType = "auction"
)

// Valid reports whether t is a known sale policy.
func (t SaleType) Valid() bool {
	return t == FixedPrice || t == Auction
}

func (t SaleType) String() string { return string(t) }

// Coin is an integer amount in one denomination.
type Coin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// NewCoin builds a coin from an integer amount.
func NewCoin(amount int64, denom string) Coin {
	return Coin{Denom: denom, Amount: decimal.NewFromInt(amount)}
}

func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

// AskKey is the primary key of an ask: one ask per (collection, token).
type AskKey struct {
	Collection string  `json:"collection"`
	TokenID    TokenID `json:"token_id"`
}

func (k AskKey) String() string {
	return fmt.Sprintf("%s/%d", k.Collection, k.TokenID)
}

// BidKey is the primary key of a bid: one bid per (collection, token, bidder).
type BidKey struct {
	Collection string  `json:"collection"`
	TokenID    TokenID `json:"token_id"`
	Bidder     string  `json:"bidder"`
}

func (k BidKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Collection, k.TokenID, k.Bidder)
}

// Ask is a standing offer to sell one token.
type Ask struct {
	SaleType       SaleType        `json:"sale_type"`
	Collection     string          `json:"collection"`
	TokenID        TokenID         `json:"token_id"`
	Seller         string          `json:"seller"`
	Price          decimal.Decimal `json:"price"`
	FundsRecipient string          `json:"funds_recipient,omitempty"`
	ReserveFor     string          `json:"reserve_for,omitempty"`
	FindersFeeBps  *uint64         `json:"finders_fee_bps,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	IsActive       bool            `json:"is_active"`
}

// Key returns the ask's primary key.
func (a Ask) Key() AskKey {
	return AskKey{Collection: a.Collection, TokenID: a.TokenID}
}

// IsExpired reports whether the ask can no longer be matched at now.
func (a Ask) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Recipient is the address that receives the seller's proceeds.
func (a Ask) Recipient() string {
	if a.FundsRecipient != "" {
		return a.FundsRecipient
	}
	return a.Seller
}

// Bid is a standing offer from one bidder to buy one token. The bid price
// is held in escrow until the bid is refunded or consumed by a sale.
type Bid struct {
	Collection    string          `json:"collection"`
	TokenID       TokenID         `json:"token_id"`
	Bidder        string          `json:"bidder"`
	Price         decimal.Decimal `json:"price"`
	Finder        string          `json:"finder,omitempty"`
	FindersFeeBps *uint64         `json:"finders_fee_bps,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Key returns the bid's primary key.
func (b Bid) Key() BidKey {
	return BidKey{Collection: b.Collection, TokenID: b.TokenID, Bidder: b.Bidder}
}

// IsExpired reports whether the bid can no longer be accepted at now.
func (b Bid) IsExpired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}
