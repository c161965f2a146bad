package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/atmx/nft-marketplace/internal/metrics"
	"github.com/atmx/nft-marketplace/internal/model"
)

// Result records the outcome of one hook call.
type Result struct {
	ID         string           `json:"id"`
	Subscriber string           `json:"subscriber"`
	Kind       model.HookKind   `json:"kind"`
	Action     model.HookAction `json:"action"`
	Status     int              `json:"status,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// OK reports whether the subscriber accepted the call.
func (r Result) OK() bool { return r.Error == "" }

// Deliverer POSTs hook payloads to subscriber URLs.
type Deliverer struct {
	client *http.Client
	logger *slog.Logger
}

// NewDeliverer creates a Deliverer whose calls time out after timeout.
func NewDeliverer(timeout time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "hooks")),
	}
}

// Deliver sends calls in order and returns one Result per call. A failing
// subscriber is logged and recorded; delivery continues with the next call.
func (d *Deliverer) Deliver(ctx context.Context, calls []model.HookCall) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		res := Result{
			ID:         call.ID,
			Subscriber: call.Subscriber,
			Kind:       call.Kind,
			Action:     call.Action,
		}

		status, err := d.send(ctx, call)
		res.Status = status
		if err != nil {
			res.Error = err.Error()
			metrics.HookDeliveries.WithLabelValues(string(call.Kind), "failed").Inc()
			d.logger.ErrorContext(ctx, "hook delivery failed",
				slog.String("id", call.ID),
				slog.String("subscriber", call.Subscriber),
				slog.String("kind", string(call.Kind)),
				slog.String("error", err.Error()),
			)
		} else {
			metrics.HookDeliveries.WithLabelValues(string(call.Kind), "ok").Inc()
			d.logger.DebugContext(ctx, "hook delivered",
				slog.String("id", call.ID),
				slog.String("subscriber", call.Subscriber),
			)
		}
		results = append(results, res)
	}
	return results
}

func (d *Deliverer) send(ctx context.Context, call model.HookCall) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.Subscriber, bytes.NewReader(call.Msg))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hook-ID", call.ID)
	req.Header.Set("X-Hook-Kind", string(call.Kind))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return resp.StatusCode, nil
}
