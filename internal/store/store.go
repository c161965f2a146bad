// Package store defines the Order Store: indexed tables of asks and bids.
// Implementations include PostgreSQL, Pebble (embedded ordered KV) and
// in-memory (for testing and development).
package store

import (
	"context"
	"errors"
	"iter"

	"github.com/atmx/nft-marketplace/internal/model"
)

var (
	// ErrNotFound is returned by point lookups and removals of absent keys.
	ErrNotFound = errors.New("store: not found")

	// ErrReadOnly is returned by writes attempted inside View.
	ErrReadOnly = errors.New("store: read-only transaction")
)

// Store hands out transactions. Update commits the writes made through tx
// only when fn returns nil; any error discards all of them.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the per-request view of the order tables.
//
// Scans are lazy: nothing is read until the sequence is ranged, and ranging
// the same sequence again restarts it. A scan must be fully consumed or
// abandoned before the next call on the same Tx.
type Tx interface {
	// --- Asks, keyed by (collection, token) ---

	GetAsk(ctx context.Context, key model.AskKey) (model.Ask, error)
	PutAsk(ctx context.Context, ask model.Ask) error
	// RemoveAsk deletes the ask and returns what was stored.
	RemoveAsk(ctx context.Context, key model.AskKey) (model.Ask, error)

	AsksByCollection(ctx context.Context, collection string) iter.Seq2[model.Ask, error]
	// AsksByCollectionPrice yields asks in ascending price order.
	AsksByCollectionPrice(ctx context.Context, collection string) iter.Seq2[model.Ask, error]
	AsksBySeller(ctx context.Context, seller string) iter.Seq2[model.Ask, error]

	// --- Bids, keyed by (collection, token, bidder) ---

	GetBid(ctx context.Context, key model.BidKey) (model.Bid, error)
	PutBid(ctx context.Context, bid model.Bid) error
	// RemoveBid deletes the bid and returns what was stored.
	RemoveBid(ctx context.Context, key model.BidKey) (model.Bid, error)

	BidsByToken(ctx context.Context, key model.AskKey) iter.Seq2[model.Bid, error]
	BidsByCollection(ctx context.Context, collection string) iter.Seq2[model.Bid, error]
	// BidsByCollectionPrice yields bids in ascending price order.
	BidsByCollectionPrice(ctx context.Context, collection string) iter.Seq2[model.Bid, error]
	BidsByBidder(ctx context.Context, bidder string) iter.Seq2[model.Bid, error]
}

// Collect drains a scan into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
