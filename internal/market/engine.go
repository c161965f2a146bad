// Package market is the matching engine: it validates incoming asks and
// bids, moves each (collection, token) between its order states and, on a
// match, hands the sale to the payout engine.
//
// Every request runs inside one store transaction and produces a
// model.Batch. A failed request writes nothing and produces no batch.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/chain"
	"github.com/atmx/nft-marketplace/internal/clock"
	"github.com/atmx/nft-marketplace/internal/config"
	"github.com/atmx/nft-marketplace/internal/hooks"
	"github.com/atmx/nft-marketplace/internal/metrics"
	"github.com/atmx/nft-marketplace/internal/model"
	"github.com/atmx/nft-marketplace/internal/payout"
	"github.com/atmx/nft-marketplace/internal/store"
)

// Engine runs marketplace requests. Requests are serialized from the first
// registry read to the last applied effect; the store transaction gives
// each one all-or-nothing semantics.
type Engine struct {
	store       store.Store
	tokens      chain.Tokens
	collections chain.Collections
	owners      OwnershipApplier
	hooks       *hooks.Dispatcher
	params      config.Market
	clock       clock.Clock
	logger      *slog.Logger
	mu          sync.Mutex
}

// OwnershipApplier executes ownership-transfer effects.
type OwnershipApplier interface {
	TransferOwnership(ctx context.Context, t model.OwnershipTransfer) error
}

// NewEngine creates an engine. params is read-only for the engine's lifetime.
func NewEngine(
	st store.Store,
	tokens chain.Tokens,
	collections chain.Collections,
	dispatcher *hooks.Dispatcher,
	params config.Market,
	clk clock.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:       st,
		tokens:      tokens,
		collections: collections,
		hooks:       dispatcher,
		params:      params,
		clock:       clk,
		logger:      logger.With(slog.String("component", "engine")),
	}
}

// WithOwnershipApplier makes the engine apply each committed batch's
// ownership transfers before the next request starts. Set it when the
// engine's token registry is the system of record, as with chain.Registry.
func (e *Engine) WithOwnershipApplier(a OwnershipApplier) *Engine {
	e.owners = a
	return e
}

// Params returns the marketplace parameters the engine runs with.
func (e *Engine) Params() config.Market { return e.params }

// --- Requests ---

// SetAskRequest lists a token for sale.
type SetAskRequest struct {
	Sender         string         `json:"sender"`
	SaleType       model.SaleType `json:"sale_type"`
	Collection     string         `json:"collection"`
	TokenID        model.TokenID  `json:"token_id"`
	Price          model.Coin     `json:"price"`
	FundsRecipient string         `json:"funds_recipient,omitempty"`
	ReserveFor     string         `json:"reserve_for,omitempty"`
	FindersFeeBps  *uint64        `json:"finders_fee_bps,omitempty"`
	ExpiresAt      time.Time      `json:"expires"`
}

// SetBidRequest places a bid. Payment is the escrowed amount attached to
// the request and is the bid price.
type SetBidRequest struct {
	Sender        string        `json:"sender"`
	Collection    string        `json:"collection"`
	TokenID       model.TokenID `json:"token_id"`
	Payment       model.Coin    `json:"payment"`
	Finder        string        `json:"finder,omitempty"`
	FindersFeeBps *uint64       `json:"finders_fee_bps,omitempty"`
	ExpiresAt     time.Time     `json:"expires"`
}

// AcceptBidRequest is a token owner accepting a standing bid. Finder, when
// set, replaces the finder recorded on the bid.
type AcceptBidRequest struct {
	Sender     string        `json:"sender"`
	Collection string        `json:"collection"`
	TokenID    model.TokenID `json:"token_id"`
	Bidder     string        `json:"bidder"`
	Finder     string        `json:"finder,omitempty"`
}

// --- Set-Ask ---

// SetAsk validates and writes an active ask, replacing any ask already
// stored for the token.
func (e *Engine) SetAsk(ctx context.Context, req SetAskRequest) (*model.Batch, error) {
	const op = "set_ask"
	defer e.observe(op, time.Now())

	b, outcome, err := e.setAsk(ctx, req)
	if err != nil {
		return nil, e.reject(ctx, op, err)
	}

	metrics.AsksSet.WithLabelValues(string(req.SaleType), outcome).Inc()
	e.logger.InfoContext(ctx, "ask set",
		"collection", req.Collection,
		"token_id", req.TokenID,
		"seller", req.Sender,
		"sale_type", req.SaleType,
		"price", req.Price.String(),
		"outcome", outcome,
	)
	return b, nil
}

func (e *Engine) setAsk(ctx context.Context, req SetAskRequest) (*model.Batch, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ValidatePrice(req.Price, e.params); err != nil {
		return nil, "", err
	}
	if !req.SaleType.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidSaleType, req.SaleType)
	}
	if err := ValidateReservation(req.Sender, req.ReserveFor, req.SaleType); err != nil {
		return nil, "", err
	}
	if err := ValidateFindersFee(req.FindersFeeBps, e.params); err != nil {
		return nil, "", err
	}
	now := e.clock.Now()
	if !req.ExpiresAt.After(now) {
		return nil, "", fmt.Errorf("%w: ask expires at %s", ErrInvalidExpiration, req.ExpiresAt.Format(time.RFC3339))
	}
	if err := e.requireOwner(ctx, req.Collection, req.TokenID, req.Sender); err != nil {
		return nil, "", err
	}
	approved, err := e.tokens.Approved(ctx, req.Collection, req.TokenID, e.params.MarketplaceAddress)
	if err != nil {
		return nil, "", fmt.Errorf("approval lookup %s/%d: %w", req.Collection, req.TokenID, err)
	}
	if !approved {
		return nil, "", fmt.Errorf("%w: %s/%d", ErrNotApproved, req.Collection, req.TokenID)
	}

	ask := model.Ask{
		SaleType:       req.SaleType,
		Collection:     req.Collection,
		TokenID:        req.TokenID,
		Seller:         req.Sender,
		Price:          req.Price.Amount,
		FundsRecipient: req.FundsRecipient,
		ReserveFor:     req.ReserveFor,
		FindersFeeBps:  req.FindersFeeBps,
		ExpiresAt:      req.ExpiresAt,
		IsActive:       true,
	}

	b := model.NewBatch()
	outcome := "created"
	err = e.store.Update(ctx, func(tx store.Tx) error {
		action := model.HookCreate
		if _, err := tx.GetAsk(ctx, ask.Key()); err == nil {
			action, outcome = model.HookUpdate, "updated"
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := tx.PutAsk(ctx, ask); err != nil {
			return err
		}
		calls, err := e.hooks.AskHooks(ctx, action, ask)
		if err := e.addHooks(ctx, b, calls, err); err != nil {
			return err
		}

		event := model.NewEvent("set-ask").
			Add("collection", ask.Collection).
			Add("token_id", fmt.Sprint(ask.TokenID)).
			Add("sale_type", ask.SaleType.String())
		if ask.ReserveFor != "" {
			event = event.Add("reserve_for", ask.ReserveFor)
		}
		b.AddEvent(event.
			Add("seller", ask.Seller).
			Add("price", req.Price.String()).
			Add("expires", ask.ExpiresAt.UTC().Format(time.RFC3339)))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return b, outcome, nil
}

// --- Set-Bid / Buy-Now ---

// SetBid places a standing bid, or settles immediately when it matches a
// fixed-price ask exactly.
func (e *Engine) SetBid(ctx context.Context, req SetBidRequest) (*model.Batch, error) {
	return e.placeBid(ctx, "set_bid", req, false)
}

// BuyNow is SetBid that requires an ask to exist for the token.
func (e *Engine) BuyNow(ctx context.Context, req SetBidRequest) (*model.Batch, error) {
	return e.placeBid(ctx, "buy_now", req, true)
}

func (e *Engine) placeBid(ctx context.Context, op string, req SetBidRequest, buyNow bool) (*model.Batch, error) {
	defer e.observe(op, time.Now())

	b, res, err := e.bid(ctx, req, buyNow)
	if err != nil {
		return nil, e.reject(ctx, op, err)
	}

	outcome := "stored"
	if res.settled {
		outcome = "settled"
		metrics.Settlements.WithLabelValues("fixed_price").Inc()
		metrics.SettlementVolume.WithLabelValues(req.Collection).Add(req.Payment.Amount.InexactFloat64())
	}
	metrics.BidsPlaced.WithLabelValues(outcome, fmt.Sprint(res.superseded)).Inc()

	msg := "bid stored"
	if res.settled {
		msg = "sale finalized"
	}
	e.logger.InfoContext(ctx, msg,
		"op", op,
		"collection", req.Collection,
		"token_id", req.TokenID,
		"bidder", req.Sender,
		"price", req.Payment.String(),
		"superseded", res.superseded,
	)
	return b, nil
}

type bidResult struct {
	settled    bool
	superseded bool
}

func (e *Engine) bid(ctx context.Context, req SetBidRequest, buyNow bool) (*model.Batch, bidResult, error) {
	var res bidResult

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ValidatePrice(req.Payment, e.params); err != nil {
		return nil, res, err
	}
	now := e.clock.Now()
	bid := model.Bid{
		Collection:    req.Collection,
		TokenID:       req.TokenID,
		Bidder:        req.Sender,
		Price:         req.Payment.Amount,
		Finder:        req.Finder,
		FindersFeeBps: req.FindersFeeBps,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := ValidateBid(bid, now, e.params); err != nil {
		return nil, res, err
	}

	b := model.NewBatch()
	err := e.store.Update(ctx, func(tx store.Tx) error {
		res = bidResult{}

		// A bidder holds at most one bid per token: refund the old one first.
		old, err := tx.RemoveBid(ctx, bid.Key())
		switch {
		case err == nil:
			res.superseded = true
			b.AddTransfer(model.FundTransfer{
				Recipient: old.Bidder,
				Amount:    model.Coin{Denom: e.params.Denom, Amount: old.Price},
				Reason:    "refund",
			})
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		ask, err := tx.GetAsk(ctx, model.AskKey{Collection: bid.Collection, TokenID: bid.TokenID})
		hasAsk := err == nil
		switch {
		case errors.Is(err, store.ErrNotFound):
			if buyNow {
				return fmt.Errorf("%w: %s/%d", ErrItemNotForSale, bid.Collection, bid.TokenID)
			}
		case err != nil:
			return err
		}

		if hasAsk {
			if err := ValidateAskForBid(ask, bid.Bidder, now); err != nil {
				return err
			}
			switch ask.SaleType {
			case model.FixedPrice:
				switch bid.Price.Cmp(ask.Price) {
				case 1:
					return fmt.Errorf("%w: bid %s above fixed price %s", ErrInvalidPrice, bid.Price, ask.Price)
				case 0:
					res.settled = true
				}
			case model.Auction:
				if bid.Price.LessThan(ask.Price) {
					return fmt.Errorf("%w: bid %s below reserve %s", ErrInvalidPrice, bid.Price, ask.Price)
				}
			}
		}

		if res.settled {
			if err := e.finalizeFixedPrice(ctx, tx, b, ask, bid); err != nil {
				return err
			}
			if res.superseded {
				calls, err := e.hooks.BidHooks(ctx, model.HookDelete, old)
				if err := e.addHooks(ctx, b, calls, err); err != nil {
					return err
				}
			}
		} else {
			if err := tx.PutBid(ctx, bid); err != nil {
				return err
			}
			action := model.HookCreate
			if res.superseded {
				action = model.HookUpdate
			}
			calls, err := e.hooks.BidHooks(ctx, action, bid)
			if err := e.addHooks(ctx, b, calls, err); err != nil {
				return err
			}
		}

		event := model.NewEvent("set-bid").
			Add("collection", bid.Collection).
			Add("token_id", fmt.Sprint(bid.TokenID)).
			Add("bidder", bid.Bidder).
			Add("bid_price", req.Payment.String()).
			Add("expires", bid.ExpiresAt.UTC().Format(time.RFC3339))
		if bid.Finder != "" {
			event = event.Add("finder", bid.Finder)
		}
		b.AddEvent(event)
		return nil
	})
	if err != nil {
		return nil, res, err
	}
	e.applyOwnership(ctx, b)
	return b, res, nil
}

// finalizeFixedPrice settles a bid that matched a fixed-price ask exactly.
// The ask is removed; no bid record is stored.
func (e *Engine) finalizeFixedPrice(ctx context.Context, tx store.Tx, b *model.Batch, ask model.Ask, bid model.Bid) error {
	if _, err := tx.RemoveAsk(ctx, ask.Key()); err != nil {
		return err
	}

	owner, err := e.tokens.OwnerOf(ctx, ask.Collection, ask.TokenID)
	switch {
	case errors.Is(err, chain.ErrUnknownToken):
		return fmt.Errorf("%w: %s no longer exists", ErrInvalidListing, ask.Key())
	case err != nil:
		return fmt.Errorf("owner lookup %s: %w", ask.Key(), err)
	case owner != ask.Seller:
		return fmt.Errorf("%w: %s is owned by %s, listed by %s", ErrInvalidListing, ask.Key(), owner, ask.Seller)
	}

	info, _ := e.collectionInfo(ctx, ask.Collection)
	if err := e.settle(ctx, b, payout.Sale{
		Ask:     ask,
		Price:   bid.Price,
		Buyer:   bid.Bidder,
		Finder:  bid.Finder,
		Royalty: royaltyOf(info),
	}); err != nil {
		return err
	}

	calls, err := e.hooks.AskHooks(ctx, model.HookDelete, ask)
	if err := e.addHooks(ctx, b, calls, err); err != nil {
		return err
	}
	return nil
}

// --- Accept-Bid ---

// AcceptBid settles a standing bid at its price on behalf of the token owner.
func (e *Engine) AcceptBid(ctx context.Context, req AcceptBidRequest) (*model.Batch, error) {
	const op = "accept_bid"
	defer e.observe(op, time.Now())

	b, price, err := e.acceptBid(ctx, req)
	if err != nil {
		return nil, e.reject(ctx, op, err)
	}

	metrics.Settlements.WithLabelValues("accept_bid").Inc()
	metrics.SettlementVolume.WithLabelValues(req.Collection).Add(price.InexactFloat64())
	e.logger.InfoContext(ctx, "bid accepted",
		"collection", req.Collection,
		"token_id", req.TokenID,
		"seller", req.Sender,
		"bidder", req.Bidder,
		"price", price.String(),
	)
	return b, nil
}

func (e *Engine) acceptBid(ctx context.Context, req AcceptBidRequest) (*model.Batch, decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Finder != "" && req.Finder == req.Bidder {
		return nil, decimal.Zero, fmt.Errorf("%w: %s is the bidder", ErrInvalidFinder, req.Finder)
	}
	if err := e.requireOwner(ctx, req.Collection, req.TokenID, req.Sender); err != nil {
		return nil, decimal.Zero, err
	}

	now := e.clock.Now()
	info, ok := e.collectionInfo(ctx, req.Collection)
	if ok && !info.Tradable(now) {
		return nil, decimal.Zero, fmt.Errorf("%w: %s opens at %s",
			ErrCollectionNotTradable, req.Collection, info.TradingStartsAt.Format(time.RFC3339))
	}

	b := model.NewBatch()
	var price decimal.Decimal
	key := model.BidKey{Collection: req.Collection, TokenID: req.TokenID, Bidder: req.Bidder}
	err := e.store.Update(ctx, func(tx store.Tx) error {
		bid, err := tx.GetBid(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBidNotFound, key)
		}
		if err != nil {
			return err
		}
		if bid.IsExpired(now) {
			return fmt.Errorf("%w: %s expired at %s", ErrBidExpired, key, bid.ExpiresAt.Format(time.RFC3339))
		}

		if _, err := tx.RemoveAsk(ctx, model.AskKey{Collection: req.Collection, TokenID: req.TokenID}); err != nil &&
			!errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := tx.RemoveBid(ctx, key); err != nil {
			return err
		}

		finder := bid.Finder
		if req.Finder != "" {
			finder = req.Finder
		}
		// Transient ask carrying the bid's terms; never stored.
		ask := model.Ask{
			SaleType:       model.Auction,
			Collection:     req.Collection,
			TokenID:        req.TokenID,
			Seller:         req.Sender,
			Price:          bid.Price,
			FundsRecipient: req.Sender,
			FindersFeeBps:  bid.FindersFeeBps,
			ExpiresAt:      bid.ExpiresAt,
			IsActive:       true,
		}
		if err := e.settle(ctx, b, payout.Sale{
			Ask:     ask,
			Price:   bid.Price,
			Buyer:   bid.Bidder,
			Finder:  finder,
			Royalty: royaltyOf(info),
		}); err != nil {
			return err
		}

		calls, err := e.hooks.BidHooks(ctx, model.HookDelete, bid)
		if err := e.addHooks(ctx, b, calls, err); err != nil {
			return err
		}

		b.AddEvent(model.NewEvent("accept-bid").
			Add("collection", req.Collection).
			Add("token_id", fmt.Sprint(req.TokenID)).
			Add("bidder", bid.Bidder).
			Add("seller", req.Sender).
			Add("price", model.Coin{Denom: e.params.Denom, Amount: bid.Price}.String()))
		price = bid.Price
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	e.applyOwnership(ctx, b)
	return b, price, nil
}

// --- Shared helpers ---

// settle queues the payout and the sale hooks for one sale.
func (e *Engine) settle(ctx context.Context, b *model.Batch, sale payout.Sale) error {
	params := payout.Params{
		Denom:             e.params.Denom,
		TradingFeePercent: e.params.TradingFeePercent,
		FeeBurnAddress:    e.params.FeeBurnAddress,
	}
	if _, err := payout.Settle(b, params, sale); err != nil {
		return err
	}

	calls, err := e.hooks.SaleHooks(ctx, hooks.SaleMsg{
		Collection: sale.Ask.Collection,
		TokenID:    sale.Ask.TokenID,
		Price:      model.Coin{Denom: e.params.Denom, Amount: sale.Price},
		Seller:     sale.Ask.Seller,
		Buyer:      sale.Buyer,
	})
	return e.addHooks(ctx, b, calls, err)
}

// addHooks queues prepared hook calls. When the subscriber registry cannot
// be read the calls are dropped and the request proceeds without them.
func (e *Engine) addHooks(ctx context.Context, b *model.Batch, calls []model.HookCall, err error) error {
	if errors.Is(err, hooks.ErrRegistryUnavailable) {
		e.logger.WarnContext(ctx, "hook subscribers unavailable, skipping hooks",
			"batch_id", b.ID,
			"error", err,
		)
		return nil
	}
	if err != nil {
		return err
	}
	b.AddHooks(calls)
	return nil
}

// applyOwnership runs after commit with e.mu held. A failure cannot undo
// the committed batch, so it is logged.
func (e *Engine) applyOwnership(ctx context.Context, b *model.Batch) {
	if e.owners == nil {
		return
	}
	for _, o := range b.Ownerships() {
		if err := e.owners.TransferOwnership(ctx, o); err != nil {
			e.logger.ErrorContext(ctx, "ownership transfer failed",
				"batch_id", b.ID,
				"collection", o.Collection,
				"token_id", o.TokenID,
				"error", err,
			)
		}
	}
}

func (e *Engine) requireOwner(ctx context.Context, collection string, token model.TokenID, sender string) error {
	owner, err := e.tokens.OwnerOf(ctx, collection, token)
	if errors.Is(err, chain.ErrUnknownToken) {
		return fmt.Errorf("%w: %s/%d does not exist", ErrUnauthorizedOwner, collection, token)
	}
	if err != nil {
		return fmt.Errorf("owner lookup %s/%d: %w", collection, token, err)
	}
	if owner != sender {
		return fmt.Errorf("%w: %s does not own %s/%d", ErrUnauthorizedOwner, sender, collection, token)
	}
	return nil
}

// collectionInfo returns the collection's terms. A failed lookup is logged
// and reported as !ok; callers then trade without royalty or start time.
func (e *Engine) collectionInfo(ctx context.Context, collection string) (chain.CollectionInfo, bool) {
	info, err := e.collections.Info(ctx, collection)
	if err != nil {
		e.logger.WarnContext(ctx, "collection info unavailable, using permissive defaults",
			"collection", collection,
			"error", err,
		)
		return chain.CollectionInfo{}, false
	}
	return info, true
}

func royaltyOf(info chain.CollectionInfo) *payout.Royalty {
	if !info.HasRoyalty() {
		return nil
	}
	return &payout.Royalty{Share: info.RoyaltyShare, Recipient: info.RoyaltyRecipient}
}

func (e *Engine) reject(ctx context.Context, op string, err error) error {
	class := Classify(err)
	metrics.Rejections.WithLabelValues(op, string(class)).Inc()
	level := slog.LevelInfo
	if class == ClassInternal {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "request rejected", "op", op, "class", class, "error", err)
	return err
}

func (e *Engine) observe(op string, start time.Time) {
	metrics.EngineLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
