// Copyright 2025 Certen Protocol
//
// FirestoreStore is the multi-region ObjectStore backend, mapping object
// keys onto Firestore documents in a flat "objects" collection.

package store

import (
	"context"
	"strings"

	"google.golang.org/api/iterator"

	"github.com/dragonchain-gen2/dragonnet/pkg/firestore"
)

const objectsCollection = "objects"

// FirestoreStore adapts a firestore.Client to the ObjectStore interface.
// Keys (e.g. "BLOCK/1234") become document ids with "/" escaped to "__",
// since Firestore document ids may not contain "/"; the unescaped key is
// stored verbatim in the document's "key" field.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps client as an ObjectStore.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func escapeKey(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

func unescapeKey(docID string) string {
	return strings.ReplaceAll(docID, "__", "/")
}

func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	doc := s.client.Doc(objectsCollection + "/" + escapeKey(key))
	if doc == nil {
		return nil, NewNotFoundError(key)
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return nil, NewNotFoundError(key)
	}
	data, err := snap.DataAt("value")
	if err != nil {
		return nil, err
	}
	b, ok := data.([]byte)
	if !ok {
		return nil, NewNotFoundError(key)
	}
	return b, nil
}

func (s *FirestoreStore) Put(ctx context.Context, key string, value []byte) error {
	doc := s.client.Doc(objectsCollection + "/" + escapeKey(key))
	if doc == nil {
		return nil // disabled client: no-op
	}
	_, err := doc.Set(ctx, map[string]interface{}{"key": key, "value": value})
	return err
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	doc := s.client.Doc(objectsCollection + "/" + escapeKey(key))
	if doc == nil {
		return nil
	}
	_, err := doc.Delete(ctx)
	return err
}

func (s *FirestoreStore) List(ctx context.Context, prefix string) ([]string, error) {
	coll := s.client.Collection(objectsCollection)
	if coll == nil {
		return nil, nil
	}
	it := coll.Where("key", ">=", prefix).Where("key", "<", prefix+"￿").Documents(ctx)
	defer it.Stop()

	var keys []string
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		k, err := doc.DataAt("key")
		if err != nil {
			continue
		}
		if ks, ok := k.(string); ok && strings.HasPrefix(ks, prefix) {
			keys = append(keys, ks)
		}
	}
	return keys, nil
}

func (s *FirestoreStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	batch := s.client.Batch()
	if batch == nil {
		for _, k := range keys {
			if err := s.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	}
	for _, k := range keys {
		batch = batch.Delete(s.client.Doc(objectsCollection + "/" + escapeKey(k)))
	}
	_, err = batch.Commit(ctx)
	return err
}
