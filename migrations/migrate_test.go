package migrations

import (
	"strings"
	"testing"
)

func TestNames_Ordered(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("migrations out of order: %s before %s", names[i-1], names[i])
		}
	}
}

func TestOrdersMigration_CreatesTables(t *testing.T) {
	data, err := migrationFiles.ReadFile("0001_orders.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(data)
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS asks", "CREATE TABLE IF NOT EXISTS bids", "asks_seller_idx", "bids_bidder_idx"} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected migration to contain %q", want)
		}
	}
}
