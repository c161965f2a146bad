package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/model"
)

// PostgresStore implements Store using PostgreSQL. Prices are stored as
// NUMERIC for exact integer precision; every request runs in one pgx.Tx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.withTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.withTx(ctx, pgx.TxOptions{}, fn)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, opts pgx.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

const askColumns = `sale_type, collection, token_id, seller, price::TEXT,
	funds_recipient, reserve_for, finders_fee_bps, expires_at, is_active`

const bidColumns = `collection, token_id, bidder, price::TEXT,
	finder, finders_fee_bps, expires_at`

func (p *pgTx) GetAsk(ctx context.Context, key model.AskKey) (model.Ask, error) {
	row := p.tx.QueryRow(ctx,
		`SELECT `+askColumns+` FROM asks WHERE collection = $1 AND token_id = $2`,
		key.Collection, int64(key.TokenID))
	a, err := scanAsk(row)
	if err != nil {
		return model.Ask{}, fmt.Errorf("get ask %s: %w", key, err)
	}
	return a, nil
}

func (p *pgTx) PutAsk(ctx context.Context, a model.Ask) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO asks (sale_type, collection, token_id, seller, price,
		                   funds_recipient, reserve_for, finders_fee_bps, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10)
		 ON CONFLICT (collection, token_id) DO UPDATE SET
		   sale_type = EXCLUDED.sale_type, seller = EXCLUDED.seller, price = EXCLUDED.price,
		   funds_recipient = EXCLUDED.funds_recipient, reserve_for = EXCLUDED.reserve_for,
		   finders_fee_bps = EXCLUDED.finders_fee_bps, expires_at = EXCLUDED.expires_at,
		   is_active = EXCLUDED.is_active`,
		string(a.SaleType), a.Collection, int64(a.TokenID), a.Seller, a.Price.String(),
		a.FundsRecipient, a.ReserveFor, nullableBps(a.FindersFeeBps), a.ExpiresAt, a.IsActive,
	)
	return err
}

func (p *pgTx) RemoveAsk(ctx context.Context, key model.AskKey) (model.Ask, error) {
	row := p.tx.QueryRow(ctx,
		`DELETE FROM asks WHERE collection = $1 AND token_id = $2 RETURNING `+askColumns,
		key.Collection, int64(key.TokenID))
	a, err := scanAsk(row)
	if err != nil {
		return model.Ask{}, fmt.Errorf("remove ask %s: %w", key, err)
	}
	return a, nil
}

func (p *pgTx) AsksByCollection(ctx context.Context, collection string) iter.Seq2[model.Ask, error] {
	return queryAll(ctx, p.tx, scanAsk,
		`SELECT `+askColumns+` FROM asks WHERE collection = $1 ORDER BY token_id`, collection)
}

func (p *pgTx) AsksByCollectionPrice(ctx context.Context, collection string) iter.Seq2[model.Ask, error] {
	return queryAll(ctx, p.tx, scanAsk,
		`SELECT `+askColumns+` FROM asks WHERE collection = $1 ORDER BY price, token_id`, collection)
}

func (p *pgTx) AsksBySeller(ctx context.Context, seller string) iter.Seq2[model.Ask, error] {
	return queryAll(ctx, p.tx, scanAsk,
		`SELECT `+askColumns+` FROM asks WHERE seller = $1 ORDER BY collection, token_id`, seller)
}

func (p *pgTx) GetBid(ctx context.Context, key model.BidKey) (model.Bid, error) {
	row := p.tx.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE collection = $1 AND token_id = $2 AND bidder = $3`,
		key.Collection, int64(key.TokenID), key.Bidder)
	b, err := scanBid(row)
	if err != nil {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", key, err)
	}
	return b, nil
}

func (p *pgTx) PutBid(ctx context.Context, b model.Bid) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO bids (collection, token_id, bidder, price, finder, finders_fee_bps, expires_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)
		 ON CONFLICT (collection, token_id, bidder) DO UPDATE SET
		   price = EXCLUDED.price, finder = EXCLUDED.finder,
		   finders_fee_bps = EXCLUDED.finders_fee_bps, expires_at = EXCLUDED.expires_at`,
		b.Collection, int64(b.TokenID), b.Bidder, b.Price.String(),
		b.Finder, nullableBps(b.FindersFeeBps), b.ExpiresAt,
	)
	return err
}

func (p *pgTx) RemoveBid(ctx context.Context, key model.BidKey) (model.Bid, error) {
	row := p.tx.QueryRow(ctx,
		`DELETE FROM bids WHERE collection = $1 AND token_id = $2 AND bidder = $3 RETURNING `+bidColumns,
		key.Collection, int64(key.TokenID), key.Bidder)
	b, err := scanBid(row)
	if err != nil {
		return model.Bid{}, fmt.Errorf("remove bid %s: %w", key, err)
	}
	return b, nil
}

func (p *pgTx) BidsByToken(ctx context.Context, key model.AskKey) iter.Seq2[model.Bid, error] {
	return queryAll(ctx, p.tx, scanBid,
		`SELECT `+bidColumns+` FROM bids WHERE collection = $1 AND token_id = $2 ORDER BY bidder`,
		key.Collection, int64(key.TokenID))
}

func (p *pgTx) BidsByCollection(ctx context.Context, collection string) iter.Seq2[model.Bid, error] {
	return queryAll(ctx, p.tx, scanBid,
		`SELECT `+bidColumns+` FROM bids WHERE collection = $1 ORDER BY token_id, bidder`, collection)
}

func (p *pgTx) BidsByCollectionPrice(ctx context.Context, collection string) iter.Seq2[model.Bid, error] {
	return queryAll(ctx, p.tx, scanBid,
		`SELECT `+bidColumns+` FROM bids WHERE collection = $1 ORDER BY price, token_id, bidder`, collection)
}

func (p *pgTx) BidsByBidder(ctx context.Context, bidder string) iter.Seq2[model.Bid, error] {
	return queryAll(ctx, p.tx, scanBid,
		`SELECT `+bidColumns+` FROM bids WHERE bidder = $1 ORDER BY collection, token_id`, bidder)
}

// --- Scanning ---

func scanAsk(row pgx.Row) (model.Ask, error) {
	var a model.Ask
	var saleType, price string
	var tokenID int64
	var bps *int64

	if err := row.Scan(&saleType, &a.Collection, &tokenID, &a.Seller, &price,
		&a.FundsRecipient, &a.ReserveFor, &bps, &a.ExpiresAt, &a.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ask{}, ErrNotFound
		}
		return model.Ask{}, err
	}
	a.SaleType = model.SaleType(saleType)
	a.TokenID = model.TokenID(tokenID)
	p, err := parsePrice(price)
	if err != nil {
		return model.Ask{}, fmt.Errorf("ask %s/%d: %w", a.Collection, tokenID, err)
	}
	a.Price = p
	a.FindersFeeBps = bpsFromNullable(bps)
	return a, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var b model.Bid
	var price string
	var tokenID int64
	var bps *int64

	if err := row.Scan(&b.Collection, &tokenID, &b.Bidder, &price,
		&b.Finder, &bps, &b.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, ErrNotFound
		}
		return model.Bid{}, err
	}
	b.TokenID = model.TokenID(tokenID)
	p, err := parsePrice(price)
	if err != nil {
		return model.Bid{}, fmt.Errorf("bid %s/%d/%s: %w", b.Collection, tokenID, b.Bidder, err)
	}
	b.Price = p
	b.FindersFeeBps = bpsFromNullable(bps)
	return b, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("store: price column %q: %w", s, err)
	}
	return p, nil
}

// queryAll runs the query when the sequence is ranged and streams rows
// through scan; rows are closed when the range ends.
func queryAll[T any](ctx context.Context, tx pgx.Tx, scan func(pgx.Row) (T, error), sql string, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			yield(zero, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}

func nullableBps(bps *uint64) *int64 {
	if bps == nil {
		return nil
	}
	v := int64(*bps)
	return &v
}

func bpsFromNullable(bps *int64) *uint64 {
	if bps == nil {
		return nil
	}
	v := uint64(*bps)
	return &v
}
