package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"gighop/internal/domain"
	"gighop/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

// jsonCache stores values the way Redis would, so cached reads never alias.
type jsonCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func newJSONCache() *jsonCache { return &jsonCache{store: map[string][]byte{}} }

func (c *jsonCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *jsonCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *jsonCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *jsonCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

// flakyStore fails the named operation with err inside transactions.
type flakyStore struct {
	*memory.Store
	failOn string
	err    error
}

func (f *flakyStore) InTx(ctx context.Context, fn func(tx domain.DocumentStore) error) error {
	return f.Store.InTx(ctx, func(tx domain.DocumentStore) error {
		return fn(&flakyView{DocumentStore: tx, failOn: f.failOn, err: f.err})
	})
}

type flakyView struct {
	domain.DocumentStore
	failOn string
	err    error
}

func (v *flakyView) Query(ctx context.Context, c string, preds ...domain.Predicate) ([]domain.Document, error) {
	if v.failOn == "query" {
		return nil, v.err
	}
	return v.DocumentStore.Query(ctx, c, preds...)
}

func (v *flakyView) UpdateFields(ctx context.Context, c, id string, fields map[string]any) error {
	if v.failOn == "update:"+c {
		return v.err
	}
	return v.DocumentStore.UpdateFields(ctx, c, id, fields)
}

var errConnReset = errors.New("connection reset by peer")

type memBlobs struct {
	files map[string][]byte
}

func (b *memBlobs) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	if b.files == nil {
		b.files = map[string][]byte{}
	}
	b.files[key] = buf.Bytes()
	return "https://media.test/" + key, nil
}

// seed writes the fixture used across the service tests: owner "u-owner"
// with object "o1", and two raters.
func seed(ctx context.Context, s domain.DocumentStore) {
	must := func(_ string, err error) {
		if err != nil {
			panic(err)
		}
	}
	must(s.UpsertDocument(ctx, domain.CollectionUsers, "u-owner", map[string]any{"username": "owner", "points": 0}))
	must(s.UpsertDocument(ctx, domain.CollectionUsers, "u-a", map[string]any{"username": "alice", "points": 0}))
	must(s.UpsertDocument(ctx, domain.CollectionUsers, "u-b", map[string]any{"username": "bob", "points": 0}))
	must(s.UpsertDocument(ctx, domain.CollectionObjects, "o1", map[string]any{
		"title": "Friday jam", "type": "Jazz", "ownerId": "u-owner", "author": "owner",
		"latitude": 43.321445, "longitude": 21.896104, "timestamp": 1_700_000_000_000,
	}))
}

// racingStore runs hook once, right after the first query of collection
// returns, so a write can land between a cache miss's read and its fill.
type racingStore struct {
	domain.TxStore
	collection string
	once       sync.Once
	hook       func()
}

func (s *racingStore) Query(ctx context.Context, collection string, preds ...domain.Predicate) ([]domain.Document, error) {
	docs, err := s.TxStore.Query(ctx, collection, preds...)
	if collection == s.collection {
		s.once.Do(s.hook)
	}
	return docs, err
}
