package market

import (
	"errors"

	"github.com/atmx/nft-marketplace/internal/payout"
	"github.com/atmx/nft-marketplace/internal/store"
)

// Validation errors: the request itself is malformed.
var (
	ErrInvalidPrice          = errors.New("market: invalid price")
	ErrInvalidSaleType       = errors.New("market: invalid sale type")
	ErrInvalidReserveAddress = errors.New("market: invalid reserve_for address")
	ErrInvalidFinder         = errors.New("market: invalid finder")
	ErrPriceTooSmall         = errors.New("market: price too small")
	ErrInvalidExpiration     = errors.New("market: invalid expiration")
	ErrInvalidFindersFeeBps  = errors.New("market: invalid finders fee bps")
)

// State-conflict errors: the request is well formed but the stored orders
// do not allow it.
var (
	ErrAskExpired     = errors.New("market: ask expired")
	ErrAskNotActive   = errors.New("market: ask not active")
	ErrTokenReserved  = errors.New("market: token reserved")
	ErrItemNotForSale = errors.New("market: item not for sale")
	ErrInvalidListing = errors.New("market: invalid or stale listing")
	ErrBidExpired     = errors.New("market: bid expired")
)

// Authorization errors.
var (
	ErrUnauthorizedOwner     = errors.New("market: sender is not the token owner")
	ErrNotApproved           = errors.New("market: marketplace not approved to transfer token")
	ErrCollectionNotTradable = errors.New("market: collection not tradable yet")
)

var ErrBidNotFound = errors.New("market: bid not found")

// Class is the error taxonomy used for metrics labels and HTTP status codes.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassStateConflict Class = "state_conflict"
	ClassAuthorization Class = "authorization"
	ClassArithmetic    Class = "arithmetic"
	ClassNotFound      Class = "not_found"
	ClassInternal      Class = "internal"
)

var classes = []struct {
	class Class
	errs  []error
}{
	{ClassValidation, []error{
		ErrInvalidPrice, ErrInvalidSaleType, ErrInvalidReserveAddress, ErrInvalidFinder,
		ErrPriceTooSmall, ErrInvalidExpiration, ErrInvalidFindersFeeBps,
	}},
	{ClassStateConflict, []error{
		ErrAskExpired, ErrAskNotActive, ErrTokenReserved, ErrItemNotForSale,
		ErrInvalidListing, ErrBidExpired,
	}},
	{ClassAuthorization, []error{ErrUnauthorizedOwner, ErrNotApproved, ErrCollectionNotTradable}},
	{ClassArithmetic, []error{payout.ErrFeesExceedPayment}},
	{ClassNotFound, []error{ErrBidNotFound, store.ErrNotFound}},
}

// Classify returns the class of err, or ClassInternal for anything the
// engine does not produce itself.
func Classify(err error) Class {
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return ClassInternal
}
