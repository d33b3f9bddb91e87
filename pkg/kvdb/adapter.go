// Copyright 2025 Certen Protocol
//
// KV Adapter for CometBFT Database Integration
// Wraps CometBFT's dbm.DB interface for use as the object store's
// single-node/dev backend (pkg/store's KVStore).

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KVAdapter wraps a CometBFT dbm.DB and exposes a small Get/Set/Delete/
// prefix-iteration surface.
type KVAdapter struct {
	db dbm.DB
}

// NewKVAdapter creates a new KVAdapter for the given underlying DB.
func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// Get returns the value for key, or nil if absent.
func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}

	if v, err := a.db.Get(key); err != nil {
		return nil, err
	} else {
		// v may be nil if key not found – that's fine, callers treat nil as "not present".
		return v, nil
	}
}

// Set writes key/value durably.
func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}

	if err := a.db.SetSync(key, value); err != nil {
		return err
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (a *KVAdapter) Delete(key []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.DeleteSync(key)
}

// ListPrefix returns every key currently stored with the given prefix, in
// the underlying iterator's order.
func (a *KVAdapter) ListPrefix(prefix []byte) ([][]byte, error) {
	if a.db == nil {
		return nil, nil
	}

	iter, err := dbm.IteratePrefix(a.db, prefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys [][]byte
	for ; iter.Valid(); iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		keys = append(keys, k)
	}
	return keys, iter.Error()
}
