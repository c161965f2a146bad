package market

import (
	"context"
	"iter"

	"github.com/atmx/nft-marketplace/internal/model"
	"github.com/atmx/nft-marketplace/internal/store"
)

// Ask returns the ask stored for a token.
func (e *Engine) Ask(ctx context.Context, key model.AskKey) (model.Ask, error) {
	var ask model.Ask
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		ask, err = tx.GetAsk(ctx, key)
		return err
	})
	return ask, err
}

// AsksByCollection lists a collection's asks by token, or by ascending
// price when byPrice is set.
func (e *Engine) AsksByCollection(ctx context.Context, collection string, byPrice bool) ([]model.Ask, error) {
	return collect(ctx, e.store, func(tx store.Tx) iter.Seq2[model.Ask, error] {
		if byPrice {
			return tx.AsksByCollectionPrice(ctx, collection)
		}
		return tx.AsksByCollection(ctx, collection)
	})
}

// AsksBySeller lists a seller's asks.
func (e *Engine) AsksBySeller(ctx context.Context, seller string) ([]model.Ask, error) {
	return collect(ctx, e.store, func(tx store.Tx) iter.Seq2[model.Ask, error] {
		return tx.AsksBySeller(ctx, seller)
	})
}

// BidsByToken lists the standing bids on one token.
func (e *Engine) BidsByToken(ctx context.Context, key model.AskKey) ([]model.Bid, error) {
	return collect(ctx, e.store, func(tx store.Tx) iter.Seq2[model.Bid, error] {
		return tx.BidsByToken(ctx, key)
	})
}

// BidsByCollection lists a collection's bids by token, or by ascending
// price when byPrice is set.
func (e *Engine) BidsByCollection(ctx context.Context, collection string, byPrice bool) ([]model.Bid, error) {
	return collect(ctx, e.store, func(tx store.Tx) iter.Seq2[model.Bid, error] {
		if byPrice {
			return tx.BidsByCollectionPrice(ctx, collection)
		}
		return tx.BidsByCollection(ctx, collection)
	})
}

// BidsByBidder lists a bidder's standing bids.
func (e *Engine) BidsByBidder(ctx context.Context, bidder string) ([]model.Bid, error) {
	return collect(ctx, e.store, func(tx store.Tx) iter.Seq2[model.Bid, error] {
		return tx.BidsByBidder(ctx, bidder)
	})
}

func collect[T any](ctx context.Context, st store.Store, scan func(store.Tx) iter.Seq2[T, error]) ([]T, error) {
	var out []T
	err := st.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = store.Collect(scan(tx))
		return err
	})
	if out == nil && err == nil {
		out = []T{}
	}
	return out, err
}
