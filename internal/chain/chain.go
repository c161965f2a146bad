// Package chain is the marketplace's view of the token-ownership registry
// and the collection-metadata provider. Both are queried synchronously
// before a request's effects are emitted.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/model"
)

var (
	ErrUnknownToken      = errors.New("chain: unknown token")
	ErrUnknownCollection = errors.New("chain: unknown collection")
)

// Tokens answers ownership and approval questions for individual tokens.
type Tokens interface {
	OwnerOf(ctx context.Context, collection string, token model.TokenID) (string, error)
	// Approved reports whether operator may transfer the token on the
	// owner's behalf.
	Approved(ctx context.Context, collection string, token model.TokenID, operator string) (bool, error)
}

// Collections returns collection-level terms.
type Collections interface {
	Info(ctx context.Context, collection string) (CollectionInfo, error)
}

// CollectionInfo holds the royalty terms and trading start of a collection.
// A zero RoyaltyShare or empty RoyaltyRecipient means no royalty; a nil
// TradingStartsAt means trading is open.
type CollectionInfo struct {
	RoyaltyShare     decimal.Decimal `json:"royalty_share"`
	RoyaltyRecipient string          `json:"royalty_recipient,omitempty"`
	TradingStartsAt  *time.Time      `json:"trading_starts_at,omitempty"`
}

// HasRoyalty reports whether sales in the collection pay a royalty.
func (c CollectionInfo) HasRoyalty() bool {
	return c.RoyaltyRecipient != "" &&
		c.RoyaltyShare.IsPositive() &&
		c.RoyaltyShare.LessThanOrEqual(decimal.NewFromInt(1))
}

// Tradable reports whether trading is open at now.
func (c CollectionInfo) Tradable(now time.Time) bool {
	return c.TradingStartsAt == nil || !c.TradingStartsAt.After(now)
}
