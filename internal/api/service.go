// Package api is the HTTP envelope around the marketplace engine. Write
// handlers run one engine request and then apply the resulting batch:
// events go to the sink, hook calls to their subscribers and feed messages
// to the WebSocket hub.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/nft-marketplace/internal/events"
	"github.com/atmx/nft-marketplace/internal/hooks"
	"github.com/atmx/nft-marketplace/internal/market"
	"github.com/atmx/nft-marketplace/internal/metrics"
	"github.com/atmx/nft-marketplace/internal/model"
)

// Service serves the marketplace HTTP API.
type Service struct {
	engine    *market.Engine
	deliverer *hooks.Deliverer
	sink      events.Sink
	hub       *WSHub
	logger    *slog.Logger
}

// NewService creates the API service. hub may be nil.
func NewService(
	engine *market.Engine,
	deliverer *hooks.Deliverer,
	sink events.Sink,
	hub *WSHub,
	logger *slog.Logger,
) *Service {
	return &Service{
		engine:    engine,
		deliverer: deliverer,
		sink:      sink,
		hub:       hub,
		logger:    logger.With(slog.String("component", "api")),
	}
}

// Routes mounts the API under r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/asks", s.SetAsk)
	r.Post("/bids", s.SetBid)
	r.Post("/buy-now", s.BuyNow)
	r.Post("/accept-bid", s.AcceptBid)

	r.Get("/collections/{collection}/asks", s.AsksByCollection)
	r.Get("/collections/{collection}/bids", s.BidsByCollection)
	r.Get("/collections/{collection}/tokens/{tokenID}/ask", s.GetAsk)
	r.Get("/collections/{collection}/tokens/{tokenID}/bids", s.BidsByToken)
	r.Get("/sellers/{seller}/asks", s.AsksBySeller)
	r.Get("/bidders/{bidder}/bids", s.BidsByBidder)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
}

// BatchResponse is returned by every accepted write request.
type BatchResponse struct {
	Batch       *model.Batch   `json:"batch"`
	HookResults []hooks.Result `json:"hook_results"`
}

// --- Write handlers ---

// SetAsk handles POST /api/v1/asks
func (s *Service) SetAsk(w http.ResponseWriter, r *http.Request) {
	var req market.SetAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := s.engine.SetAsk(r.Context(), req)
	s.respond(w, r, b, err, http.StatusCreated)
}

// SetBid handles POST /api/v1/bids
func (s *Service) SetBid(w http.ResponseWriter, r *http.Request) {
	var req market.SetBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := s.engine.SetBid(r.Context(), req)
	s.respond(w, r, b, err, http.StatusOK)
}

// BuyNow handles POST /api/v1/buy-now
func (s *Service) BuyNow(w http.ResponseWriter, r *http.Request) {
	var req market.SetBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := s.engine.BuyNow(r.Context(), req)
	s.respond(w, r, b, err, http.StatusOK)
}

// AcceptBid handles POST /api/v1/accept-bid
func (s *Service) AcceptBid(w http.ResponseWriter, r *http.Request) {
	var req market.AcceptBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := s.engine.AcceptBid(r.Context(), req)
	s.respond(w, r, b, err, http.StatusOK)
}

func (s *Service) respond(w http.ResponseWriter, r *http.Request, b *model.Batch, err error, status int) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	results := s.apply(r.Context(), b)
	writeJSON(w, status, BatchResponse{Batch: b, HookResults: results})
}

// apply executes the side effects of a committed batch. Failures here are
// logged; the batch itself is already committed. The request context's
// cancellation is dropped so a client disconnect cannot cut delivery short;
// each hook call is still bounded by the deliverer timeout.
func (s *Service) apply(ctx context.Context, b *model.Batch) []hooks.Result {
	ctx = context.WithoutCancel(ctx)

	for _, t := range b.Transfers() {
		if t.Reason == "refund" {
			continue
		}
		metrics.PayoutAmount.WithLabelValues(t.Reason).Add(t.Amount.Amount.InexactFloat64())
	}

	if err := s.sink.Publish(ctx, b.ID, b.Events); err != nil {
		s.logger.ErrorContext(ctx, "event publish failed", "batch_id", b.ID, "error", err)
	}

	results := s.deliverer.Deliver(ctx, b.HookCalls())

	if s.hub != nil {
		for _, ev := range b.Events {
			s.hub.Broadcast(newWSMessage(b.ID, ev))
		}
	}
	return results
}

// --- Query handlers ---

// GetAsk handles GET /api/v1/collections/{collection}/tokens/{tokenID}/ask
func (s *Service) GetAsk(w http.ResponseWriter, r *http.Request) {
	key, ok := askKey(w, r)
	if !ok {
		return
	}
	ask, err := s.engine.Ask(r.Context(), key)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ask)
}

// AsksByCollection handles GET /api/v1/collections/{collection}/asks[?sort=price]
func (s *Service) AsksByCollection(w http.ResponseWriter, r *http.Request) {
	asks, err := s.engine.AsksByCollection(r.Context(), chi.URLParam(r, "collection"), byPrice(r))
	writeList(w, asks, err)
}

// AsksBySeller handles GET /api/v1/sellers/{seller}/asks
func (s *Service) AsksBySeller(w http.ResponseWriter, r *http.Request) {
	asks, err := s.engine.AsksBySeller(r.Context(), chi.URLParam(r, "seller"))
	writeList(w, asks, err)
}

// BidsByToken handles GET /api/v1/collections/{collection}/tokens/{tokenID}/bids
func (s *Service) BidsByToken(w http.ResponseWriter, r *http.Request) {
	key, ok := askKey(w, r)
	if !ok {
		return
	}
	bids, err := s.engine.BidsByToken(r.Context(), key)
	writeList(w, bids, err)
}

// BidsByCollection handles GET /api/v1/collections/{collection}/bids[?sort=price]
func (s *Service) BidsByCollection(w http.ResponseWriter, r *http.Request) {
	bids, err := s.engine.BidsByCollection(r.Context(), chi.URLParam(r, "collection"), byPrice(r))
	writeList(w, bids, err)
}

// BidsByBidder handles GET /api/v1/bidders/{bidder}/bids
func (s *Service) BidsByBidder(w http.ResponseWriter, r *http.Request) {
	bids, err := s.engine.BidsByBidder(r.Context(), chi.URLParam(r, "bidder"))
	writeList(w, bids, err)
}

func askKey(w http.ResponseWriter, r *http.Request) (model.AskKey, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "tokenID"), 10, 32)
	if err != nil {
		writeError(w, "invalid token id", http.StatusBadRequest)
		return model.AskKey{}, false
	}
	return model.AskKey{Collection: chi.URLParam(r, "collection"), TokenID: model.TokenID(id)}, true
}

func byPrice(r *http.Request) bool {
	return r.URL.Query().Get("sort") == "price"
}

// --- Responses ---

var statusByClass = map[market.Class]int{
	market.ClassValidation:    http.StatusBadRequest,
	market.ClassStateConflict: http.StatusConflict,
	market.ClassAuthorization: http.StatusForbidden,
	market.ClassArithmetic:    http.StatusUnprocessableEntity,
	market.ClassNotFound:      http.StatusNotFound,
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, ok := statusByClass[market.Classify(err)]
	if !ok {
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeError(w, err.Error(), status)
}

func writeList[T any](w http.ResponseWriter, items []T, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
