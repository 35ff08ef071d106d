package subscription

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/avapigw-mtls/internal/policy"
)

// MemoryStore is an in-memory Store. Its content is replaced wholesale on
// configuration reload.
type MemoryStore struct {
	mu     sync.RWMutex
	subs   map[string]Subscription
	closed bool
}

// NewMemoryStore creates a store holding subs.
func NewMemoryStore(subs []Subscription) (*MemoryStore, error) {
	s := &MemoryStore{subs: make(map[string]Subscription)}
	if err := s.Replace(subs); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the store's content for subs. On a validation error the
// previous content is kept.
func (s *MemoryStore) Replace(subs []Subscription) error {
	next := make(map[string]Subscription, len(subs))
	for i := range subs {
		sub := subs[i]
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		key := Key(sub.API, sub.TokenType, sub.Token)
		if _, dup := next[key]; dup {
			return fmt.Errorf("subscriptions[%d]: %w: duplicate token for api %q", i, ErrInvalidSubscription, sub.API)
		}
		next[key] = sub
	}

	s.mu.Lock()
	s.subs = next
	s.mu.Unlock()
	return nil
}

// Len returns the number of subscriptions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Find implements Store.
func (s *MemoryStore) Find(ctx context.Context, api string, token policy.SecurityToken) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	sub, ok := s.subs[Key(api, token.Type, token.Value)]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
