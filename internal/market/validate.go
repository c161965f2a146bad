package market

import (
	"fmt"
	"time"

	"github.com/atmx/nft-marketplace/internal/config"
	"github.com/atmx/nft-marketplace/internal/model"
)

// ValidatePrice rejects zero, negative, fractional and foreign-currency amounts.
func ValidatePrice(price model.Coin, params config.Market) error {
	if !price.Amount.IsPositive() || !price.Amount.IsInteger() {
		return fmt.Errorf("%w: amount %s", ErrInvalidPrice, price.Amount)
	}
	if price.Denom != params.Denom {
		return fmt.Errorf("%w: denom %q, want %q", ErrInvalidPrice, price.Denom, params.Denom)
	}
	return nil
}

// ValidateReservation checks that a reserved buyer is someone other than
// the seller and only appears on fixed-price asks.
func ValidateReservation(seller, reserveFor string, saleType model.SaleType) error {
	if reserveFor == "" {
		return nil
	}
	if reserveFor == seller {
		return fmt.Errorf("%w: cannot reserve to the same address", ErrInvalidReserveAddress)
	}
	if saleType != model.FixedPrice {
		return fmt.Errorf("%w: can only reserve for fixed_price sales", ErrInvalidReserveAddress)
	}
	return nil
}

// ValidateFindersFee rejects a finder's-fee rate above the configured maximum.
func ValidateFindersFee(bps *uint64, params config.Market) error {
	if bps != nil && *bps > params.MaxFindersFeeBps {
		return fmt.Errorf("%w: %d", ErrInvalidFindersFeeBps, *bps)
	}
	return nil
}

// ValidateExpiry requires now+min < expires <= now+max.
func ValidateExpiry(now, expires time.Time, params config.Market) error {
	if !expires.After(now.Add(params.MinBidExpiry())) || expires.After(now.Add(params.MaxBidExpiry())) {
		return fmt.Errorf("%w: %s outside (%s, %s]", ErrInvalidExpiration,
			expires.Format(time.RFC3339), params.MinBidExpiry(), params.MaxBidExpiry())
	}
	return nil
}

// ValidateBid runs the request-level bid checks: finder, minimum price,
// expiry window and finder's-fee bound, in that order.
func ValidateBid(bid model.Bid, now time.Time, params config.Market) error {
	if bid.Finder != "" && bid.Finder == bid.Bidder {
		return fmt.Errorf("%w: %s is the bidder", ErrInvalidFinder, bid.Finder)
	}
	if bid.Price.LessThan(params.MinPrice) {
		return fmt.Errorf("%w: %s", ErrPriceTooSmall, bid.Price)
	}
	if err := ValidateExpiry(now, bid.ExpiresAt, params); err != nil {
		return err
	}
	return ValidateFindersFee(bid.FindersFeeBps, params)
}

// ValidateAskForBid checks that ask can take a bid from bidder at now.
func ValidateAskForBid(ask model.Ask, bidder string, now time.Time) error {
	if ask.IsExpired(now) {
		return fmt.Errorf("%w: %s expired at %s", ErrAskExpired, ask.Key(), ask.ExpiresAt.Format(time.RFC3339))
	}
	if !ask.IsActive {
		return fmt.Errorf("%w: %s", ErrAskNotActive, ask.Key())
	}
	if ask.ReserveFor != "" && ask.ReserveFor != bidder {
		return fmt.Errorf("%w: %s", ErrTokenReserved, ask.Key())
	}
	return nil
}
