// Copyright 2025 Certen Protocol

package authz

import (
	"context"
	"fmt"
)

// KeyStore is a KeyLookup backed by the coordination store, populated by
// interchain-auth-register calls (§6.3's mutual key bootstrap). A key
// registered here is allowed until explicitly revoked; Dragon Net ships
// no revocation path, matching the original's registration being a
// one-way trust grant.
type KeyStore struct {
	c Coord
}

// NewKeyStore wraps c as a KeyStore.
func NewKeyStore(c Coord) *KeyStore {
	return &KeyStore{c: c}
}

func (s *KeyStore) key(keyID string) string {
	return "authz:key:" + keyID
}

// Lookup implements KeyLookup.
func (s *KeyStore) Lookup(ctx context.Context, keyID string) (string, bool, error) {
	secret, ok, err := s.c.Get(ctx, s.key(keyID))
	if err != nil {
		return "", false, fmt.Errorf("look up registered key %s: %w", keyID, err)
	}
	return secret, ok, nil
}

// Register records keyID/secretKey as belonging to dcID, making it
// immediately eligible for Lookup. dcID is accepted for parity with
// the registration call's wire shape but is not itself indexed; a
// Dragon Net deployment that needs to look up a dc_id's current key
// does so through pkg/matchmaking instead.
func (s *KeyStore) Register(ctx context.Context, dcID, keyID, secretKey string) error {
	if err := s.c.Set(ctx, s.key(keyID), secretKey); err != nil {
		return fmt.Errorf("register key %s for %s: %w", keyID, dcID, err)
	}
	return nil
}
