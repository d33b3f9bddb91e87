// Copyright 2025 Certen Protocol
//
// KVStore is the single-node/dev ObjectStore backend, wrapping the
// cometbft-db-backed KVAdapter (pkg/kvdb).

package store

import (
	"context"
	"strings"

	"github.com/dragonchain-gen2/dragonnet/pkg/kvdb"
)

// KVStore adapts a kvdb.KVAdapter to the ObjectStore interface.
type KVStore struct {
	adapter *kvdb.KVAdapter
}

// NewKVStore wraps adapter as an ObjectStore.
func NewKVStore(adapter *kvdb.KVAdapter) *KVStore {
	return &KVStore{adapter: adapter}
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	v, err := s.adapter.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, NewNotFoundError(key)
	}
	return v, nil
}

func (s *KVStore) Put(_ context.Context, key string, value []byte) error {
	return s.adapter.Set([]byte(key), value)
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	return s.adapter.Delete([]byte(key))
}

func (s *KVStore) List(_ context.Context, prefix string) ([]string, error) {
	keys, err := s.adapter.ListPrefix([]byte(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out, nil
}

func (s *KVStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
