package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/atmx/nft-marketplace/internal/model"
)

// SaleMsg is the payload of a sale hook.
type SaleMsg struct {
	Collection string        `json:"collection"`
	TokenID    model.TokenID `json:"token_id"`
	Price      model.Coin    `json:"price"`
	Seller     string        `json:"seller"`
	Buyer      string        `json:"buyer"`
}

// Dispatcher turns lifecycle changes into tagged hook calls, one per
// subscriber in registration order.
type Dispatcher struct {
	registry Registry
}

// NewDispatcher creates a dispatcher reading subscribers from registry.
func NewDispatcher(registry Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// AskHooks prepares {"ask_<action>_hook": {"ask": ...}} calls.
func (d *Dispatcher) AskHooks(ctx context.Context, action model.HookAction, ask model.Ask) ([]model.HookCall, error) {
	name, err := lifecycleName("ask", action)
	if err != nil {
		return nil, err
	}
	return d.prepare(ctx, model.HookAsk, action, map[string]any{name: map[string]any{"ask": ask}})
}

// BidHooks prepares {"bid_<action>_hook": {"bid": ...}} calls.
func (d *Dispatcher) BidHooks(ctx context.Context, action model.HookAction, bid model.Bid) ([]model.HookCall, error) {
	name, err := lifecycleName("bid", action)
	if err != nil {
		return nil, err
	}
	return d.prepare(ctx, model.HookBid, action, map[string]any{name: map[string]any{"bid": bid}})
}

// SaleHooks prepares {"sale_hook": {...}} calls.
func (d *Dispatcher) SaleHooks(ctx context.Context, sale SaleMsg) ([]model.HookCall, error) {
	return d.prepare(ctx, model.HookSale, model.HookSold, map[string]any{"sale_hook": sale})
}

func (d *Dispatcher) prepare(ctx context.Context, kind model.HookKind, action model.HookAction, payload any) ([]model.HookCall, error) {
	subs, err := d.registry.Subscribers(ctx, kind)
	if errors.Is(err, ErrUnknownKind) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s subscribers: %w", ErrRegistryUnavailable, kind, err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("hooks: encode %s payload: %w", kind, err)
	}

	calls := make([]model.HookCall, 0, len(subs))
	for _, sub := range subs {
		calls = append(calls, model.HookCall{
			ID:           uuid.New().String(),
			Subscriber:   sub,
			Kind:         kind,
			Action:       action,
			Msg:          msg,
			ReplyOnError: true,
		})
	}
	return calls, nil
}

func lifecycleName(prefix string, action model.HookAction) (string, error) {
	switch action {
	case model.HookCreate:
		return prefix + "_created_hook", nil
	case model.HookUpdate:
		return prefix + "_updated_hook", nil
	case model.HookDelete:
		return prefix + "_deleted_hook", nil
	}
	return "", fmt.Errorf("hooks: no %s hook for action %q", prefix, action)
}
