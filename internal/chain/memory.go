package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/nft-marketplace/internal/config"
	"github.com/atmx/nft-marketplace/internal/model"
)

// Registry is an in-memory token and collection registry. Used for tests
// and for running the service without an external registry.
type Registry struct {
	mu          sync.RWMutex
	owners      map[model.AskKey]string
	approvals   map[model.AskKey]map[string]bool
	collections map[string]CollectionInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:      make(map[model.AskKey]string),
		approvals:   make(map[model.AskKey]map[string]bool),
		collections: make(map[string]CollectionInfo),
	}
}

// Seed loads the tokens and collections listed in the registry config.
// Later entries for the same token or collection replace earlier ones.
func (r *Registry) Seed(cfg config.RegistryConfig) {
	for _, t := range cfg.Tokens {
		token := model.TokenID(t.TokenID)
		r.SetOwner(t.Collection, token, t.Owner)
		for _, op := range t.Approved {
			r.Approve(t.Collection, token, op)
		}
	}
	for _, c := range cfg.Collections {
		r.SetCollection(c.Collection, CollectionInfo{
			RoyaltyShare:     c.RoyaltyShare,
			RoyaltyRecipient: c.RoyaltyRecipient,
			TradingStartsAt:  c.TradingStartsAt,
		})
	}
}

// SetOwner records owner as the holder of the token and clears its approvals.
func (r *Registry) SetOwner(collection string, token model.TokenID, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := model.AskKey{Collection: collection, TokenID: token}
	r.owners[key] = owner
	delete(r.approvals, key)
}

// Approve grants operator transfer rights on the token.
func (r *Registry) Approve(collection string, token model.TokenID, operator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := model.AskKey{Collection: collection, TokenID: token}
	if r.approvals[key] == nil {
		r.approvals[key] = make(map[string]bool)
	}
	r.approvals[key][operator] = true
}

// SetCollection replaces the terms of a collection.
func (r *Registry) SetCollection(collection string, info CollectionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[collection] = info
}

func (r *Registry) OwnerOf(_ context.Context, collection string, token model.TokenID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[model.AskKey{Collection: collection, TokenID: token}]
	if !ok {
		return "", fmt.Errorf("%w: %s/%d", ErrUnknownToken, collection, token)
	}
	return owner, nil
}

func (r *Registry) Approved(_ context.Context, collection string, token model.TokenID, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := model.AskKey{Collection: collection, TokenID: token}
	if _, ok := r.owners[key]; !ok {
		return false, fmt.Errorf("%w: %s/%d", ErrUnknownToken, collection, token)
	}
	return r.approvals[key][operator], nil
}

func (r *Registry) Info(_ context.Context, collection string) (CollectionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.collections[collection]
	if !ok {
		return CollectionInfo{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return info, nil
}

// TransferOwnership applies an ownership-transfer effect.
func (r *Registry) TransferOwnership(_ context.Context, t model.OwnershipTransfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := model.AskKey{Collection: t.Collection, TokenID: t.TokenID}
	if cur, ok := r.owners[key]; ok && cur != t.From {
		return fmt.Errorf("transfer %s: owner is %s, not %s", key, cur, t.From)
	}
	r.owners[key] = t.To
	delete(r.approvals, key)
	return nil
}
