// Copyright 2025 Certen Protocol

package authz

import (
	"context"
	"fmt"

	"github.com/dragonchain-gen2/dragonnet/pkg/coord"
)

// CoordReplayCache is a ReplayCache backed by the coordination store.
// Entries are never expired: a signature seen once is rejected forever,
// which is always safe since a legitimate caller never reuses one.
type CoordReplayCache struct {
	c Coord
}

// Coord is the slice of coord.Coord a replay cache needs.
type Coord interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

var _ Coord = (coord.Coord)(nil)

// NewCoordReplayCache wraps c as a ReplayCache.
func NewCoordReplayCache(c Coord) *CoordReplayCache {
	return &CoordReplayCache{c: c}
}

func (r *CoordReplayCache) key(signature string) string {
	return "authz:replay:" + signature
}

// SeenOrRecord reports whether signature has been presented before.
func (r *CoordReplayCache) SeenOrRecord(ctx context.Context, signature string) (bool, error) {
	_, ok, err := r.c.Get(ctx, r.key(signature))
	if err != nil {
		return false, fmt.Errorf("check replay cache: %w", err)
	}
	if ok {
		return true, nil
	}
	if err := r.c.Set(ctx, r.key(signature), "1"); err != nil {
		return false, fmt.Errorf("record replay cache: %w", err)
	}
	return false, nil
}
