// Package metrics provides Prometheus instrumentation for the marketplace.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AsksSet counts accepted set-ask requests by sale type and outcome
	// (created, updated).
	AsksSet = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_asks_set_total",
		Help: "Total number of asks written",
	}, []string{"sale_type", "outcome"})

	// BidsPlaced counts accepted bids by outcome (stored, settled) and
	// whether they superseded an earlier bid.
	BidsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_bids_total",
		Help: "Total number of bids accepted",
	}, []string{"outcome", "superseded"})

	// Settlements counts completed sales by path (fixed_price, accept_bid).
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_settlements_total",
		Help: "Total number of settled sales",
	}, []string{"path"})

	// SettlementVolume tracks cumulative sale volume per collection.
	SettlementVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_settlement_volume_total",
		Help: "Cumulative settled payment amount",
	}, []string{"collection"})

	// PayoutAmount tracks cumulative payout by component (network_fee,
	// finders_fee, royalty, seller).
	PayoutAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_payout_amount_total",
		Help: "Cumulative payout amount by component",
	}, []string{"component"})

	// Rejections counts failed requests by operation and error class.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_rejections_total",
		Help: "Requests rejected by the matching engine",
	}, []string{"operation", "class"})

	// EngineLatency tracks matching engine latency per operation.
	EngineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftmkt_engine_latency_seconds",
		Help:    "Matching engine latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// HookDeliveries counts hook deliveries by kind and outcome (ok, failed).
	HookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_hook_deliveries_total",
		Help: "Hook deliveries to subscribers",
	}, []string{"kind", "outcome"})

	// EventsPublished counts observability events handed to the event sink.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_events_published_total",
		Help: "Observability events published",
	}, []string{"type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nftmkt_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmkt_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftmkt_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path, to bound cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
