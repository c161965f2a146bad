package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/nft-marketplace/internal/config"
	"github.com/atmx/nft-marketplace/internal/model"
)

func TestRegistry_OwnershipAndApproval(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	if _, err := r.OwnerOf(ctx, "punks", 1); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}

	r.SetOwner("punks", 1, "alice")
	r.Approve("punks", 1, "marketplace")

	owner, err := r.OwnerOf(ctx, "punks", 1)
	if err != nil || owner != "alice" {
		t.Fatalf("owner = %q, %v", owner, err)
	}
	ok, err := r.Approved(ctx, "punks", 1, "marketplace")
	if err != nil || !ok {
		t.Fatalf("approved = %v, %v", ok, err)
	}
	if ok, _ := r.Approved(ctx, "punks", 1, "someone"); ok {
		t.Error("unexpected approval for someone")
	}

	// A transfer moves the token and revokes approvals.
	err = r.TransferOwnership(ctx, model.OwnershipTransfer{Collection: "punks", TokenID: 1, From: "alice", To: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if owner, _ := r.OwnerOf(ctx, "punks", 1); owner != "bob" {
		t.Errorf("owner after transfer = %q", owner)
	}
	if ok, _ := r.Approved(ctx, "punks", 1, "marketplace"); ok {
		t.Error("approval survived transfer")
	}

	err = r.TransferOwnership(ctx, model.OwnershipTransfer{Collection: "punks", TokenID: 1, From: "alice", To: "carol"})
	if err == nil {
		t.Error("expected error transferring from a non-owner")
	}
}

func TestRegistry_Seed(t *testing.T) {
	ctx := context.Background()
	opens := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r := NewRegistry()
	r.Seed(config.RegistryConfig{
		Tokens: []config.TokenSeed{
			{Collection: "punks", TokenID: 1, Owner: "alice", Approved: []string{"marketplace"}},
			{Collection: "punks", TokenID: 2, Owner: "bob"},
		},
		Collections: []config.CollectionSeed{
			{Collection: "punks", RoyaltyShare: decimal.RequireFromString("0.05"), RoyaltyRecipient: "artist", TradingStartsAt: &opens},
		},
	})

	if owner, err := r.OwnerOf(ctx, "punks", 1); err != nil || owner != "alice" {
		t.Errorf("owner of #1 = %q, %v", owner, err)
	}
	if ok, err := r.Approved(ctx, "punks", 1, "marketplace"); err != nil || !ok {
		t.Errorf("#1 approved = %v, %v", ok, err)
	}
	if owner, _ := r.OwnerOf(ctx, "punks", 2); owner != "bob" {
		t.Errorf("owner of #2 = %q", owner)
	}
	if ok, _ := r.Approved(ctx, "punks", 2, "marketplace"); ok {
		t.Error("#2 approved without a seed entry")
	}

	info, err := r.Info(ctx, "punks")
	if err != nil {
		t.Fatal(err)
	}
	if !info.HasRoyalty() || info.RoyaltyRecipient != "artist" || info.Tradable(opens.Add(-time.Second)) {
		t.Errorf("info = %+v", info)
	}
}

func TestCollectionInfo(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	tests := []struct {
		name        string
		info        CollectionInfo
		wantRoyalty bool
		wantTrade   bool
	}{
		{"empty", CollectionInfo{}, false, true},
		{"royalty", CollectionInfo{RoyaltyShare: decimal.RequireFromString("0.1"), RoyaltyRecipient: "artist"}, true, true},
		{"no recipient", CollectionInfo{RoyaltyShare: decimal.RequireFromString("0.1")}, false, true},
		{"share above one", CollectionInfo{RoyaltyShare: decimal.NewFromInt(2), RoyaltyRecipient: "artist"}, false, true},
		{"not started", CollectionInfo{TradingStartsAt: &later}, false, false},
		{"starts now", CollectionInfo{TradingStartsAt: &now}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.HasRoyalty(); got != tt.wantRoyalty {
				t.Errorf("HasRoyalty = %v, want %v", got, tt.wantRoyalty)
			}
			if got := tt.info.Tradable(now); got != tt.wantTrade {
				t.Errorf("Tradable = %v, want %v", got, tt.wantTrade)
			}
		})
	}
}

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/punks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"royalty_share":     "0.05",
			"royalty_recipient": "artist",
		})
	})
	mux.HandleFunc("/collections/punks/tokens/7/owner", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"owner": "alice"})
	})
	mux.HandleFunc("/collections/punks/tokens/7/approval", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"approved": r.URL.Query().Get("operator") == "marketplace"})
	})
	mux.HandleFunc("/collections/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL, time.Second)

	info, err := c.Info(ctx, "punks")
	if err != nil {
		t.Fatal(err)
	}
	if !info.RoyaltyShare.Equal(decimal.RequireFromString("0.05")) || info.RoyaltyRecipient != "artist" {
		t.Errorf("info = %+v", info)
	}

	owner, err := c.OwnerOf(ctx, "punks", 7)
	if err != nil || owner != "alice" {
		t.Errorf("owner = %q, %v", owner, err)
	}

	ok, err := c.Approved(ctx, "punks", 7, "marketplace")
	if err != nil || !ok {
		t.Errorf("approved = %v, %v", ok, err)
	}

	if _, err := c.OwnerOf(ctx, "punks", 8); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("missing token: err = %v, want ErrUnknownToken", err)
	}
	if _, err := c.Info(ctx, "apes"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("missing collection: err = %v, want ErrUnknownCollection", err)
	}
	if _, err := c.Info(ctx, "broken"); err == nil || errors.Is(err, ErrUnknownCollection) {
		t.Errorf("server error: err = %v", err)
	}
}
