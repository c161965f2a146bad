package store

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeRow scans fixed column values into the destinations.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r[i]))
	}
	return nil
}

func askRow(price string) fakeRow {
	return fakeRow{"fixed_price", "punks", int64(1), "alice", price,
		"", "", (*int64)(nil), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), true}
}

func bidRow(price string) fakeRow {
	return fakeRow{"punks", int64(1), "bob", price, "", (*int64)(nil),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func TestScanAsk_Price(t *testing.T) {
	a, err := scanAsk(askRow("150"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Price.Equal(decimal.NewFromInt(150)) || a.Seller != "alice" || a.TokenID != 1 {
		t.Errorf("ask = %+v", a)
	}

	if _, err := scanAsk(askRow("12abc")); err == nil || !strings.Contains(err.Error(), "punks/1") {
		t.Errorf("malformed price: err = %v", err)
	}
}

func TestScanBid_Price(t *testing.T) {
	b, err := scanBid(bidRow("80"))
	if err != nil {
		t.Fatal(err)
	}
	if !b.Price.Equal(decimal.NewFromInt(80)) || b.Bidder != "bob" {
		t.Errorf("bid = %+v", b)
	}

	if _, err := scanBid(bidRow("")); err == nil || !strings.Contains(err.Error(), "price column") {
		t.Errorf("empty price: err = %v", err)
	}
}
