package store

import (
	"context"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/atmx/nft-marketplace/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Rows live in a map keyed by encoded primary key; each secondary index is a
// sorted slice of "field NUL pk" entries updated on every put and remove.
type MemoryStore struct {
	mu   sync.RWMutex
	asks *table[model.Ask]
	bids *table[model.Bid]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		asks: newTable(askFields()),
		bids: newTable(bidFields()),
	}
}

func (s *MemoryStore) View(_ context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s})
}

// Update runs fn under the write lock and replays the undo log in reverse
// if fn fails, so no partial write survives.
func (s *MemoryStore) Update(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, writable: true}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

type memTx struct {
	s        *MemoryStore
	writable bool
	undo     []func()
}

func (tx *memTx) GetAsk(_ context.Context, key model.AskKey) (model.Ask, error) {
	a, ok := tx.s.asks.rows[askPK(key)]
	if !ok {
		return model.Ask{}, ErrNotFound
	}
	return a, nil
}

func (tx *memTx) PutAsk(_ context.Context, ask model.Ask) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.undo = append(tx.undo, tx.s.asks.put(askPK(ask.Key()), ask))
	return nil
}

func (tx *memTx) RemoveAsk(_ context.Context, key model.AskKey) (model.Ask, error) {
	if !tx.writable {
		return model.Ask{}, ErrReadOnly
	}
	a, ok, undo := tx.s.asks.remove(askPK(key))
	if !ok {
		return model.Ask{}, ErrNotFound
	}
	tx.undo = append(tx.undo, undo)
	return a, nil
}

func (tx *memTx) AsksByCollection(_ context.Context, collection string) iter.Seq2[model.Ask, error] {
	return tx.s.asks.scan("collection", collection+sep)
}

func (tx *memTx) AsksByCollectionPrice(_ context.Context, collection string) iter.Seq2[model.Ask, error] {
	return tx.s.asks.scan("collection_price", collection+sep)
}

func (tx *memTx) AsksBySeller(_ context.Context, seller string) iter.Seq2[model.Ask, error] {
	return tx.s.asks.scan("seller", seller+sep)
}

func (tx *memTx) GetBid(_ context.Context, key model.BidKey) (model.Bid, error) {
	b, ok := tx.s.bids.rows[bidPK(key)]
	if !ok {
		return model.Bid{}, ErrNotFound
	}
	return b, nil
}

func (tx *memTx) PutBid(_ context.Context, bid model.Bid) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.undo = append(tx.undo, tx.s.bids.put(bidPK(bid.Key()), bid))
	return nil
}

func (tx *memTx) RemoveBid(_ context.Context, key model.BidKey) (model.Bid, error) {
	if !tx.writable {
		return model.Bid{}, ErrReadOnly
	}
	b, ok, undo := tx.s.bids.remove(bidPK(key))
	if !ok {
		return model.Bid{}, ErrNotFound
	}
	tx.undo = append(tx.undo, undo)
	return b, nil
}

func (tx *memTx) BidsByToken(_ context.Context, key model.AskKey) iter.Seq2[model.Bid, error] {
	return tx.s.bids.scan("token", askPK(key)+sep)
}

func (tx *memTx) BidsByCollection(_ context.Context, collection string) iter.Seq2[model.Bid, error] {
	return tx.s.bids.scan("collection", collection+sep)
}

func (tx *memTx) BidsByCollectionPrice(_ context.Context, collection string) iter.Seq2[model.Bid, error] {
	return tx.s.bids.scan("collection_price", collection+sep)
}

func (tx *memTx) BidsByBidder(_ context.Context, bidder string) iter.Seq2[model.Bid, error] {
	return tx.s.bids.scan("bidder", bidder+sep)
}

// --- Indexed table ---

type table[T any] struct {
	rows    map[string]T
	fields  map[string]func(T) string
	indexes map[string]*sortedIndex
}

func newTable[T any](fields map[string]func(T) string) *table[T] {
	t := &table[T]{
		rows:    make(map[string]T),
		fields:  fields,
		indexes: make(map[string]*sortedIndex, len(fields)),
	}
	for name := range fields {
		t.indexes[name] = &sortedIndex{}
	}
	return t
}

// put stores v under pk and returns the function that reverts it.
func (t *table[T]) put(pk string, v T) func() {
	old, had := t.rows[pk]
	if had {
		t.unindex(pk, old)
	}
	t.rows[pk] = v
	t.index(pk, v)

	return func() {
		t.unindex(pk, v)
		delete(t.rows, pk)
		if had {
			t.rows[pk] = old
			t.index(pk, old)
		}
	}
}

func (t *table[T]) remove(pk string) (T, bool, func()) {
	old, had := t.rows[pk]
	if !had {
		var zero T
		return zero, false, nil
	}
	t.unindex(pk, old)
	delete(t.rows, pk)

	return old, true, func() {
		t.rows[pk] = old
		t.index(pk, old)
	}
}

func (t *table[T]) index(pk string, v T) {
	for name, f := range t.fields {
		t.indexes[name].insert(f(v)+sep+pk, pk)
	}
}

func (t *table[T]) unindex(pk string, v T) {
	for name, f := range t.fields {
		t.indexes[name].delete(f(v) + sep + pk)
	}
}

// scan snapshots the matching primary keys when ranged, then yields the
// rows still present.
func (t *table[T]) scan(index, prefix string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, pk := range t.indexes[index].prefix(prefix) {
			v, ok := t.rows[pk]
			if !ok {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

type sortedIndex struct {
	entries []string
	pks     map[string]string
}

func (ix *sortedIndex) insert(entry, pk string) {
	if ix.pks == nil {
		ix.pks = make(map[string]string)
	}
	i := sort.SearchStrings(ix.entries, entry)
	if i < len(ix.entries) && ix.entries[i] == entry {
		return
	}
	ix.entries = slices.Insert(ix.entries, i, entry)
	ix.pks[entry] = pk
}

func (ix *sortedIndex) delete(entry string) {
	i := sort.SearchStrings(ix.entries, entry)
	if i < len(ix.entries) && ix.entries[i] == entry {
		ix.entries = slices.Delete(ix.entries, i, i+1)
		delete(ix.pks, entry)
	}
}

func (ix *sortedIndex) prefix(p string) []string {
	lo := sort.SearchStrings(ix.entries, p)
	var pks []string
	for i := lo; i < len(ix.entries) && strings.HasPrefix(ix.entries[i], p); i++ {
		pks = append(pks, ix.pks[ix.entries[i]])
	}
	return pks
}
