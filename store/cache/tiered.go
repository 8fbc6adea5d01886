package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Tiered checks L1 first, then L2, promoting L2 hits into L1.
// L2 may be nil, which is the default for a single instance.
type Tiered struct {
	l1    CacheService
	l2    CacheService
	l1TTL time.Duration
}

// NewTiered combines two tiers. l1TTL bounds how long an entry promoted from
// L2 stays in L1.
func NewTiered(l1, l2 CacheService, l1TTL time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.l1.Get(ctx, key); ok {
		return value, true
	}
	if t.l2 == nil {
		return nil, false
	}
	value, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = t.l1.Set(ctx, key, value, t.l1TTL)
	return value, true
}

// Set writes both tiers. An L2 failure is logged but does not fail the write.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl); err != nil {
			slog.Warn("l2 cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

func (t *Tiered) Invalidate(ctx context.Context, pattern string) error {
	err := t.l1.Invalidate(ctx, pattern)
	if t.l2 != nil {
		err = errors.Join(err, t.l2.Invalidate(ctx, pattern))
	}
	return err
}

func (t *Tiered) Close() error {
	err := t.l1.Close()
	if t.l2 != nil {
		err = errors.Join(err, t.l2.Close())
	}
	return err
}

var _ CacheService = (*Tiered)(nil)
