// Package cache provides the short-lived read cache in front of account
// listings: an in-process LRU tier and an optional shared Redis tier.
package cache

import "context"

// Cache stores opaque values under string keys for a bounded time.
// A miss is reported with ok == false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Tiered consults each tier in order. A hit in a later tier is copied into
// the earlier ones; writes and deletes go to every tier.
type Tiered struct {
	tiers []Cache
}

func NewTiered(tiers ...Cache) *Tiered {
	return &Tiered{tiers: tiers}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, tier := range t.tiers {
		value, ok, err := tier.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		for _, upper := range t.tiers[:i] {
			if err := upper.Set(ctx, key, value); err != nil {
				return nil, false, err
			}
		}
		return value, true, nil
	}
	return nil, false, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte) error {
	for _, tier := range t.tiers {
		if err := tier.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key from every tier, even when one of them fails.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	var firstErr error
	for _, tier := range t.tiers {
		if err := tier.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
