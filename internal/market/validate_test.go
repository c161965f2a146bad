package market_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atmx/nft-marketplace/internal/config"
	"github.com/atmx/nft-marketplace/internal/market"
	"github.com/atmx/nft-marketplace/internal/model"
	"github.com/atmx/nft-marketplace/internal/payout"
	"github.com/atmx/nft-marketplace/internal/store"
)

func TestValidateExpiry(t *testing.T) {
	params := config.Defaults().Market
	tests := []struct {
		name    string
		expires time.Time
		ok      bool
	}{
		{"in the past", t0.Add(-time.Hour), false},
		{"at minimum", t0.Add(24 * time.Hour), false},
		{"just past minimum", t0.Add(24*time.Hour + time.Second), true},
		{"at maximum", t0.Add(180 * 24 * time.Hour), true},
		{"past maximum", t0.Add(181 * 24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := market.ValidateExpiry(t0, tt.expires, params)
			if tt.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, market.ErrInvalidExpiration) {
				t.Errorf("err = %v, want ErrInvalidExpiration", err)
			}
		})
	}
}

func TestValidateAskForBid(t *testing.T) {
	base := model.Ask{
		SaleType: model.FixedPrice, Collection: collection, TokenID: 1, Seller: "alice",
		Price: d("100"), ExpiresAt: t0.Add(time.Hour), IsActive: true,
	}
	tests := []struct {
		name    string
		mutate  func(*model.Ask)
		now     time.Time
		wantErr error
	}{
		{"open", func(*model.Ask) {}, t0, nil},
		{"expired", func(*model.Ask) {}, t0.Add(time.Hour), market.ErrAskExpired},
		{"inactive", func(a *model.Ask) { a.IsActive = false }, t0, market.ErrAskNotActive},
		// Expiry is checked before the active flag.
		{"expired and inactive", func(a *model.Ask) { a.IsActive = false }, t0.Add(2 * time.Hour), market.ErrAskExpired},
		{"reserved elsewhere", func(a *model.Ask) { a.ReserveFor = "carol" }, t0, market.ErrTokenReserved},
		{"reserved for bidder", func(a *model.Ask) { a.ReserveFor = "bob" }, t0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ask := base
			tt.mutate(&ask)
			if err := market.ValidateAskForBid(ask, "bob", tt.now); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReservation(t *testing.T) {
	if err := market.ValidateReservation("alice", "", model.Auction); err != nil {
		t.Errorf("no reservation: %v", err)
	}
	if err := market.ValidateReservation("alice", "bob", model.FixedPrice); err != nil {
		t.Errorf("fixed price reservation: %v", err)
	}
	for _, tc := range []struct {
		reserveFor string
		saleType   model.SaleType
	}{
		{"alice", model.FixedPrice},
		{"bob", model.Auction},
	} {
		if err := market.ValidateReservation("alice", tc.reserveFor, tc.saleType); !errors.Is(err, market.ErrInvalidReserveAddress) {
			t.Errorf("%s/%s: err = %v", tc.reserveFor, tc.saleType, err)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want market.Class
	}{
		{market.ErrPriceTooSmall, market.ClassValidation},
		{fmt.Errorf("%w: wrapped", market.ErrInvalidFinder), market.ClassValidation},
		{market.ErrTokenReserved, market.ClassStateConflict},
		{market.ErrInvalidListing, market.ClassStateConflict},
		{market.ErrNotApproved, market.ClassAuthorization},
		{fmt.Errorf("settle: %w", payout.ErrFeesExceedPayment), market.ClassArithmetic},
		{market.ErrBidNotFound, market.ClassNotFound},
		{store.ErrNotFound, market.ClassNotFound},
		{errors.New("disk on fire"), market.ClassInternal},
	}
	for _, tt := range tests {
		if got := market.Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
