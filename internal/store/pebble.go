package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/cockroachdb/pebble"

	"github.com/atmx/nft-marketplace/internal/model"
)

// PebbleStore implements Store on an embedded Pebble database.
//
// Key layout:
//
//	ask/<pk>                      -> JSON ask
//	bid/<pk>                      -> JSON bid
//	ask_idx/<index>/<field>\0<pk> -> pk
//	bid_idx/<index>/<field>\0<pk> -> pk
//
// Index keys are written in the same batch as the row they point to.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) a Pebble database in dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) View(_ context.Context, fn func(tx Tx) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()
	return fn(&pebbleTx{r: snap})
}

// Update stages all writes in an indexed batch so reads inside fn observe
// them; the batch is committed only if fn succeeds.
func (s *PebbleStore) Update(_ context.Context, fn func(tx Tx) error) error {
	b := s.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(&pebbleTx{r: b, w: b}); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// pebbleReader is the read surface shared by snapshots and indexed batches.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleTx struct {
	r pebbleReader
	w *pebble.Batch // nil for read-only
}

const (
	askPrefix    = "ask/"
	bidPrefix    = "bid/"
	askIdxPrefix = "ask_idx/"
	bidIdxPrefix = "bid_idx/"
)

func (tx *pebbleTx) GetAsk(_ context.Context, key model.AskKey) (model.Ask, error) {
	var a model.Ask
	err := tx.getJSON(askPrefix+askPK(key), &a)
	return a, err
}

func (tx *pebbleTx) PutAsk(ctx context.Context, ask model.Ask) error {
	if tx.w == nil {
		return ErrReadOnly
	}
	pk := askPK(ask.Key())
	if old, err := tx.GetAsk(ctx, ask.Key()); err == nil {
		if err := deleteIndexes(tx.w, askIdxPrefix, askFields(), pk, old); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := tx.setJSON(askPrefix+pk, ask); err != nil {
		return err
	}
	return setIndexes(tx.w, askIdxPrefix, askFields(), pk, ask)
}

func (tx *pebbleTx) RemoveAsk(ctx context.Context, key model.AskKey) (model.Ask, error) {
	if tx.w == nil {
		return model.Ask{}, ErrReadOnly
	}
	old, err := tx.GetAsk(ctx, key)
	if err != nil {
		return model.Ask{}, err
	}
	pk := askPK(key)
	if err := tx.w.Delete([]byte(askPrefix+pk), nil); err != nil {
		return model.Ask{}, err
	}
	return old, deleteIndexes(tx.w, askIdxPrefix, askFields(), pk, old)
}

func (tx *pebbleTx) AsksByCollection(_ context.Context, collection string) iter.Seq2[model.Ask, error] {
	return scanIndex[model.Ask](tx, askIdxPrefix+"collection/"+collection+sep, askPrefix)
}

func (tx *pebbleTx) AsksByCollectionPrice(_ context.Context, collection string) iter.Seq2[model.Ask, error] {
	return scanIndex[model.Ask](tx, askIdxPrefix+"collection_price/"+collection+sep, askPrefix)
}

func (tx *pebbleTx) AsksBySeller(_ context.Context, seller string) iter.Seq2[model.Ask, error] {
	return scanIndex[model.Ask](tx, askIdxPrefix+"seller/"+seller+sep, askPrefix)
}

func (tx *pebbleTx) GetBid(_ context.Context, key model.BidKey) (model.Bid, error) {
	var b model.Bid
	err := tx.getJSON(bidPrefix+bidPK(key), &b)
	return b, err
}

func (tx *pebbleTx) PutBid(ctx context.Context, bid model.Bid) error {
	if tx.w == nil {
		return ErrReadOnly
	}
	pk := bidPK(bid.Key())
	if old, err := tx.GetBid(ctx, bid.Key()); err == nil {
		if err := deleteIndexes(tx.w, bidIdxPrefix, bidFields(), pk, old); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := tx.setJSON(bidPrefix+pk, bid); err != nil {
		return err
	}
	return setIndexes(tx.w, bidIdxPrefix, bidFields(), pk, bid)
}

func (tx *pebbleTx) RemoveBid(ctx context.Context, key model.BidKey) (model.Bid, error) {
	if tx.w == nil {
		return model.Bid{}, ErrReadOnly
	}
	old, err := tx.GetBid(ctx, key)
	if err != nil {
		return model.Bid{}, err
	}
	pk := bidPK(key)
	if err := tx.w.Delete([]byte(bidPrefix+pk), nil); err != nil {
		return model.Bid{}, err
	}
	return old, deleteIndexes(tx.w, bidIdxPrefix, bidFields(), pk, old)
}

func (tx *pebbleTx) BidsByToken(_ context.Context, key model.AskKey) iter.Seq2[model.Bid, error] {
	return scanIndex[model.Bid](tx, bidIdxPrefix+"token/"+askPK(key)+sep, bidPrefix)
}

func (tx *pebbleTx) BidsByCollection(_ context.Context, collection string) iter.Seq2[model.Bid, error] {
	return scanIndex[model.Bid](tx, bidIdxPrefix+"collection/"+collection+sep, bidPrefix)
}

func (tx *pebbleTx) BidsByCollectionPrice(_ context.Context, collection string) iter.Seq2[model.Bid, error] {
	return scanIndex[model.Bid](tx, bidIdxPrefix+"collection_price/"+collection+sep, bidPrefix)
}

func (tx *pebbleTx) BidsByBidder(_ context.Context, bidder string) iter.Seq2[model.Bid, error] {
	return scanIndex[model.Bid](tx, bidIdxPrefix+"bidder/"+bidder+sep, bidPrefix)
}

// --- Helpers ---

func (tx *pebbleTx) getJSON(key string, v any) error {
	val, closer, err := tx.r.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, v)
}

func (tx *pebbleTx) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.w.Set([]byte(key), data, nil)
}

func setIndexes[T any](w *pebble.Batch, prefix string, fields map[string]func(T) string, pk string, v T) error {
	for name, f := range fields {
		if err := w.Set([]byte(prefix+name+"/"+f(v)+sep+pk), []byte(pk), nil); err != nil {
			return err
		}
	}
	return nil
}

func deleteIndexes[T any](w *pebble.Batch, prefix string, fields map[string]func(T) string, pk string, v T) error {
	for name, f := range fields {
		if err := w.Delete([]byte(prefix+name+"/"+f(v)+sep+pk), nil); err != nil {
			return err
		}
	}
	return nil
}

// scanIndex iterates index keys under prefix and loads each referenced row.
// The iterator is opened when the sequence is ranged and closed when the
// range ends.
func scanIndex[T any](tx *pebbleTx, prefix, rowPrefix string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		it, err := tx.r.NewIter(&pebble.IterOptions{
			LowerBound: []byte(prefix),
			UpperBound: prefixEnd([]byte(prefix)),
		})
		if err != nil {
			yield(zero, err)
			return
		}
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			var v T
			if err := tx.getJSON(rowPrefix+string(it.Value()), &v); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(zero, err)
		}
	}
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
