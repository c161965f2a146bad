package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// FundTransfer moves an amount from the marketplace escrow to a recipient.
type FundTransfer struct {
	Recipient string `json:"recipient"`
	Amount    Coin   `json:"amount"`
	Reason    string `json:"reason"` // refund, network_fee, finders_fee, royalty, seller
}

// OwnershipTransfer moves a token to its new owner.
type OwnershipTransfer struct {
	Collection string  `json:"collection"`
	TokenID    TokenID `json:"token_id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
}

// HookKind selects the subscriber list a hook call is sent to.
type HookKind string

const (
	HookAsk  HookKind = "ask"
	HookBid  HookKind = "bid"
	HookSale HookKind = "sale"
)

// HookAction is the lifecycle change carried by an ask or bid hook.
type HookAction string

const (
	HookCreate HookAction = "create"
	HookUpdate HookAction = "update"
	HookDelete HookAction = "delete"
	HookSold   HookAction = "sale"
)

// HookCall is one outgoing notification to one subscriber. ReplyOnError
// marks the call so a failing subscriber is recorded, not propagated.
type HookCall struct {
	ID           string          `json:"id"`
	Subscriber   string          `json:"subscriber"`
	Kind         HookKind        `json:"kind"`
	Action       HookAction      `json:"action"`
	Msg          json.RawMessage `json:"msg"`
	ReplyOnError bool            `json:"reply_on_error"`
}

// Effect is one deferred instruction in a batch. Exactly one field is set.
type Effect struct {
	Transfer  *FundTransfer      `json:"transfer,omitempty"`
	Ownership *OwnershipTransfer `json:"ownership,omitempty"`
	Hook      *HookCall          `json:"hook,omitempty"`
}

// Attribute is a key/value pair on an observability event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a structured observability event (set-ask, finalize-sale, ...).
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// NewEvent starts an event of the given type.
func NewEvent(typ string) Event {
	return Event{Type: typ}
}

// Add appends an attribute and returns the event for chaining.
func (e Event) Add(key, value string) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
	return e
}

// Attr returns the value of the first attribute named key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Batch is the atomic outcome of one request: the ordered effects to apply
// and the events to publish. A failed request produces no batch at all.
type Batch struct {
	ID      string   `json:"id"`
	Effects []Effect `json:"effects"`
	Events  []Event  `json:"events"`
}

// NewBatch creates an empty batch with a fresh ID.
func NewBatch() *Batch {
	return &Batch{ID: uuid.New().String()}
}

// AddTransfer queues a fund transfer.
func (b *Batch) AddTransfer(t FundTransfer) {
	b.Effects = append(b.Effects, Effect{Transfer: &t})
}

// AddOwnership queues an ownership transfer.
func (b *Batch) AddOwnership(o OwnershipTransfer) {
	b.Effects = append(b.Effects, Effect{Ownership: &o})
}

// AddHooks queues hook calls in the given order.
func (b *Batch) AddHooks(calls []HookCall) {
	for i := range calls {
		b.Effects = append(b.Effects, Effect{Hook: &calls[i]})
	}
}

// AddEvent appends an observability event.
func (b *Batch) AddEvent(e Event) {
	b.Events = append(b.Events, e)
}

// Transfers returns the fund transfers in queue order.
func (b *Batch) Transfers() []FundTransfer {
	var out []FundTransfer
	for _, e := range b.Effects {
		if e.Transfer != nil {
			out = append(out, *e.Transfer)
		}
	}
	return out
}

// Ownerships returns the ownership transfers in queue order.
func (b *Batch) Ownerships() []OwnershipTransfer {
	var out []OwnershipTransfer
	for _, e := range b.Effects {
		if e.Ownership != nil {
			out = append(out, *e.Ownership)
		}
	}
	return out
}

// HookCalls returns the hook calls in queue order.
func (b *Batch) HookCalls() []HookCall {
	var out []HookCall
	for _, e := range b.Effects {
		if e.Hook != nil {
			out = append(out, *e.Hook)
		}
	}
	return out
}
