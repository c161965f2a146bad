// Package payout computes how a sale payment is split and queues the
// resulting transfers. Every component is floored from the same integer
// payment and the seller receives the remainder, so the components always
// sum to the payment exactly.
package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/model"
)

var ErrFeesExceedPayment = errors.New("payout: fees exceed payment")

// Transfer reasons.
const (
	ReasonNetworkFee = "network_fee"
	ReasonFindersFee = "finders_fee"
	ReasonRoyalty    = "royalty"
	ReasonSeller     = "seller"
)

// Params are the marketplace-wide settlement parameters.
type Params struct {
	Denom             string
	TradingFeePercent decimal.Decimal
	FeeBurnAddress    string
}

// Royalty is a collection's royalty term.
type Royalty struct {
	Share     decimal.Decimal
	Recipient string
}

// Sale is the settlement record handed over by the matching engine. Ask is
// either the stored ask or a transient one built for an accepted bid; its
// FindersFeeBps is the finder's rate.
type Sale struct {
	Ask     model.Ask
	Price   decimal.Decimal
	Buyer   string
	Finder  string
	Royalty *Royalty
}

// Plan is the computed split of one payment.
type Plan struct {
	Payment     decimal.Decimal
	NetworkFee  decimal.Decimal
	FindersFee  decimal.Decimal
	Royalty     decimal.Decimal
	SellerShare decimal.Decimal

	Finder           string
	RoyaltyRecipient string
	Recipient        string
}

// Total is the sum of all components.
func (p Plan) Total() decimal.Decimal {
	return p.NetworkFee.Add(p.FindersFee).Add(p.Royalty).Add(p.SellerShare)
}

// Compute splits the sale payment. It fails with ErrFeesExceedPayment when
// the fee components alone exceed the payment.
func Compute(params Params, s Sale) (Plan, error) {
	p := s.Price.Floor()
	plan := Plan{
		Payment:    p,
		NetworkFee: p.Mul(params.TradingFeePercent).Shift(-2).Floor(),
		FindersFee: decimal.Zero,
		Royalty:    decimal.Zero,
		Recipient:  s.Ask.Recipient(),
	}

	if s.Finder != "" && s.Ask.FindersFeeBps != nil {
		plan.Finder = s.Finder
		plan.FindersFee = p.Mul(decimal.NewFromInt(int64(*s.Ask.FindersFeeBps))).Shift(-2).Floor()
	}

	if r := s.Royalty; r != nil && r.Recipient != "" &&
		r.Share.IsPositive() && r.Share.LessThanOrEqual(decimal.NewFromInt(1)) {
		plan.RoyaltyRecipient = r.Recipient
		plan.Royalty = p.Mul(r.Share).Floor()
	}

	fees := plan.NetworkFee.Add(plan.FindersFee).Add(plan.Royalty)
	if fees.GreaterThan(p) {
		return Plan{}, fmt.Errorf("%w: fees %s > payment %s (network %s, finder %s, royalty %s)",
			ErrFeesExceedPayment, fees, p, plan.NetworkFee, plan.FindersFee, plan.Royalty)
	}
	plan.SellerShare = p.Sub(fees)
	return plan, nil
}

// Settle computes the split and appends the fund transfers, the
// royalty-payout event, the ownership transfer and the finalize-sale event
// to b. Nothing is appended on error.
func Settle(b *model.Batch, params Params, s Sale) (Plan, error) {
	plan, err := Compute(params, s)
	if err != nil {
		return Plan{}, err
	}

	coin := func(amount decimal.Decimal) model.Coin {
		return model.Coin{Denom: params.Denom, Amount: amount}
	}
	pay := func(recipient string, amount decimal.Decimal, reason string) {
		if amount.IsPositive() {
			b.AddTransfer(model.FundTransfer{Recipient: recipient, Amount: coin(amount), Reason: reason})
		}
	}

	pay(params.FeeBurnAddress, plan.NetworkFee, ReasonNetworkFee)
	pay(plan.Finder, plan.FindersFee, ReasonFindersFee)
	if plan.Royalty.IsPositive() {
		pay(plan.RoyaltyRecipient, plan.Royalty, ReasonRoyalty)
		b.AddEvent(model.NewEvent("royalty-payout").
			Add("collection", s.Ask.Collection).
			Add("amount", coin(plan.Royalty).String()).
			Add("recipient", plan.RoyaltyRecipient))
	}
	pay(plan.Recipient, plan.SellerShare, ReasonSeller)

	b.AddOwnership(model.OwnershipTransfer{
		Collection: s.Ask.Collection,
		TokenID:    s.Ask.TokenID,
		From:       s.Ask.Seller,
		To:         s.Buyer,
	})

	b.AddEvent(model.NewEvent("finalize-sale").
		Add("collection", s.Ask.Collection).
		Add("token_id", fmt.Sprint(s.Ask.TokenID)).
		Add("seller", s.Ask.Seller).
		Add("buyer", s.Buyer).
		Add("price", coin(plan.Payment).String()))

	return plan, nil
}
