package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/atmx/nft-marketplace/internal/model"
)

func sampleEvents() []model.Event {
	return []model.Event{
		model.NewEvent("finalize-sale").Add("collection", "punks").Add("price", "100ustars"),
		model.NewEvent("set-bid").Add("bidder", "bob"),
	}
}

func TestMessages_KeyedByBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs, err := messages("batch-1", sampleEvents(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	for i, m := range msgs {
		if string(m.Key) != "batch-1" {
			t.Errorf("msg %d key = %q", i, m.Key)
		}
		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			t.Fatalf("msg %d: %v", i, err)
		}
		if env.Seq != i || env.BatchID != "batch-1" || !env.PublishedAt.Equal(now) {
			t.Errorf("msg %d envelope = %+v", i, env)
		}
	}
	if string(msgs[0].Headers[0].Value) != "finalize-sale" {
		t.Errorf("header = %q", msgs[0].Headers[0].Value)
	}
}

func TestLogSink_WritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := sink.Publish(context.Background(), "batch-1", sampleEvents()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["type"] != "finalize-sale" || first["price"] != "100ustars" || first["batch_id"] != "batch-1" {
		t.Errorf("line = %v", first)
	}
}
