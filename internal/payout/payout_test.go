package payout

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bps(v uint64) *uint64 { return &v }

var params = Params{Denom: "ustars", TradingFeePercent: d("2"), FeeBurnAddress: "burn"}

func fixedAsk(price string) model.Ask {
	return model.Ask{
		SaleType:   model.FixedPrice,
		Collection: "punks",
		TokenID:    7,
		Seller:     "alice",
		Price:      d(price),
		IsActive:   true,
	}
}

func TestSettle_NoRoyaltyNoFinder(t *testing.T) {
	b := model.NewBatch()
	plan, err := Settle(b, params, Sale{Ask: fixedAsk("100"), Price: d("100"), Buyer: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.NetworkFee.Equal(d("2")) || !plan.SellerShare.Equal(d("98")) {
		t.Errorf("plan = %+v", plan)
	}

	transfers := b.Transfers()
	if len(transfers) != 2 {
		t.Fatalf("transfers = %+v", transfers)
	}
	if transfers[0].Recipient != "burn" || !transfers[0].Amount.Amount.Equal(d("2")) || transfers[0].Reason != ReasonNetworkFee {
		t.Errorf("network fee transfer = %+v", transfers[0])
	}
	if transfers[1].Recipient != "alice" || !transfers[1].Amount.Amount.Equal(d("98")) || transfers[1].Amount.Denom != "ustars" {
		t.Errorf("seller transfer = %+v", transfers[1])
	}

	own := b.Ownerships()
	if len(own) != 1 || own[0].From != "alice" || own[0].To != "bob" || own[0].TokenID != 7 {
		t.Errorf("ownership = %+v", own)
	}

	if len(b.Events) != 1 || b.Events[0].Type != "finalize-sale" {
		t.Fatalf("events = %+v", b.Events)
	}
	if price, _ := b.Events[0].Attr("price"); price != "100ustars" {
		t.Errorf("finalize-sale price = %q", price)
	}
}

func TestSettle_RoyaltyAndFinder(t *testing.T) {
	ask := fixedAsk("100")
	ask.FindersFeeBps = bps(5)
	ask.FundsRecipient = "treasury"

	b := model.NewBatch()
	plan, err := Settle(b, params, Sale{
		Ask:     ask,
		Price:   d("100"),
		Buyer:   "bob",
		Finder:  "frank",
		Royalty: &Royalty{Share: d("0.1"), Recipient: "artist"},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]string{"network_fee": "2", "finders_fee": "5", "royalty": "10", "seller": "83"}
	got := map[string]string{
		"network_fee": plan.NetworkFee.String(),
		"finders_fee": plan.FindersFee.String(),
		"royalty":     plan.Royalty.String(),
		"seller":      plan.SellerShare.String(),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %s, want %s", k, got[k], v)
		}
	}
	if !plan.Total().Equal(d("100")) {
		t.Errorf("total = %s", plan.Total())
	}

	transfers := b.Transfers()
	wantOrder := []struct{ recipient, reason string }{
		{"burn", ReasonNetworkFee},
		{"frank", ReasonFindersFee},
		{"artist", ReasonRoyalty},
		{"treasury", ReasonSeller},
	}
	if len(transfers) != len(wantOrder) {
		t.Fatalf("transfers = %+v", transfers)
	}
	for i, w := range wantOrder {
		if transfers[i].Recipient != w.recipient || transfers[i].Reason != w.reason {
			t.Errorf("transfer %d = %+v, want %s/%s", i, transfers[i], w.recipient, w.reason)
		}
	}

	if len(b.Events) != 2 || b.Events[0].Type != "royalty-payout" || b.Events[1].Type != "finalize-sale" {
		t.Fatalf("events = %+v", b.Events)
	}
	if amt, _ := b.Events[0].Attr("amount"); amt != "10ustars" {
		t.Errorf("royalty amount = %q", amt)
	}
}

func TestCompute_FinderWithoutRate(t *testing.T) {
	plan, err := Compute(params, Sale{Ask: fixedAsk("100"), Price: d("100"), Buyer: "bob", Finder: "frank"})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.FindersFee.IsZero() || plan.Finder != "" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestCompute_FloorsEveryComponent(t *testing.T) {
	ask := fixedAsk("999")
	ask.FindersFeeBps = bps(3)
	plan, err := Compute(Params{Denom: "ustars", TradingFeePercent: d("2.5"), FeeBurnAddress: "burn"}, Sale{
		Ask:     ask,
		Price:   d("999"),
		Buyer:   "bob",
		Finder:  "frank",
		Royalty: &Royalty{Share: d("0.075"), Recipient: "artist"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// 999*2.5% = 24.975, 999*3% = 29.97, 999*7.5% = 74.925
	if !plan.NetworkFee.Equal(d("24")) || !plan.FindersFee.Equal(d("29")) || !plan.Royalty.Equal(d("74")) {
		t.Errorf("plan = %+v", plan)
	}
	if !plan.SellerShare.Equal(d("872")) || !plan.Total().Equal(d("999")) {
		t.Errorf("seller = %s total = %s", plan.SellerShare, plan.Total())
	}
}

func TestCompute_SumEqualsPayment(t *testing.T) {
	shares := []string{"0", "0.01", "0.1", "0.333", "0.5"}
	rates := []uint64{0, 1, 5, 10}
	for price := int64(1); price <= 257; price += 17 {
		for _, share := range shares {
			for _, rate := range rates {
				ask := fixedAsk("1")
				ask.FindersFeeBps = bps(rate)
				p := decimal.NewFromInt(price)
				plan, err := Compute(params, Sale{
					Ask: ask, Price: p, Buyer: "bob", Finder: "frank",
					Royalty: &Royalty{Share: d(share), Recipient: "artist"},
				})
				if err != nil {
					t.Fatalf("price %d share %s rate %d: %v", price, share, rate, err)
				}
				if !plan.Total().Equal(p) {
					t.Errorf("price %d share %s rate %d: total %s", price, share, rate, plan.Total())
				}
				if plan.SellerShare.IsNegative() {
					t.Errorf("price %d: negative seller share", price)
				}
			}
		}
	}
}

func TestSettle_FeesExceedPayment(t *testing.T) {
	ask := fixedAsk("100")
	ask.FindersFeeBps = bps(50)
	b := model.NewBatch()
	_, err := Settle(b, Params{Denom: "ustars", TradingFeePercent: d("30"), FeeBurnAddress: "burn"}, Sale{
		Ask:     ask,
		Price:   d("100"),
		Buyer:   "bob",
		Finder:  "frank",
		Royalty: &Royalty{Share: d("0.25"), Recipient: "artist"},
	})
	if !errors.Is(err, ErrFeesExceedPayment) {
		t.Fatalf("err = %v, want ErrFeesExceedPayment", err)
	}
	if len(b.Effects) != 0 || len(b.Events) != 0 {
		t.Errorf("batch not empty after failure: %+v", b)
	}
}

func TestCompute_IgnoresInvalidRoyalty(t *testing.T) {
	tests := []struct {
		name    string
		royalty *Royalty
	}{
		{"nil", nil},
		{"zero share", &Royalty{Share: d("0"), Recipient: "artist"}},
		{"negative share", &Royalty{Share: d("-0.1"), Recipient: "artist"}},
		{"share above one", &Royalty{Share: d("1.5"), Recipient: "artist"}},
		{"no recipient", &Royalty{Share: d("0.1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compute(params, Sale{Ask: fixedAsk("100"), Price: d("100"), Buyer: "bob", Royalty: tt.royalty})
			if err != nil {
				t.Fatal(err)
			}
			if !plan.Royalty.IsZero() || !plan.SellerShare.Equal(d("98")) {
				t.Errorf("plan = %+v", plan)
			}
		})
	}
}
