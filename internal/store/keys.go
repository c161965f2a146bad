package store

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/model"
)

// sep joins composite key parts. Addresses never contain NUL.
const sep = "\x00"

// priceWidth fixes the width of encoded prices so byte order equals numeric
// order (up to 2^128, the largest settlement amount).
const priceWidth = 40

func askPK(k model.AskKey) string {
	return k.Collection + sep + fmt.Sprintf("%010d", k.TokenID)
}

func bidPK(k model.BidKey) string {
	return askPK(model.AskKey{Collection: k.Collection, TokenID: k.TokenID}) + sep + k.Bidder
}

func encodePrice(p decimal.Decimal) string {
	s := p.Floor().StringFixed(0)
	if len(s) >= priceWidth {
		return s
	}
	return strings.Repeat("0", priceWidth-len(s)) + s
}

// Index field extractors. Each value is followed by sep and the primary key
// in the index entry, so entries sharing a field sort by primary key.

func askFields() map[string]func(model.Ask) string {
	return map[string]func(model.Ask) string{
		"collection":       func(a model.Ask) string { return a.Collection },
		"collection_price": func(a model.Ask) string { return a.Collection + sep + encodePrice(a.Price) },
		"seller":           func(a model.Ask) string { return a.Seller },
	}
}

func bidFields() map[string]func(model.Bid) string {
	return map[string]func(model.Bid) string{
		"token":            func(b model.Bid) string { return askPK(model.AskKey{Collection: b.Collection, TokenID: b.TokenID}) },
		"collection":       func(b model.Bid) string { return b.Collection },
		"collection_price": func(b model.Bid) string { return b.Collection + sep + encodePrice(b.Price) },
		"bidder":           func(b model.Bid) string { return b.Bidder },
	}
}
