package domain

import (
	"context"
	"io"
)

// Collections
const (
	CollectionObjects = "objects"
	CollectionUsers   = "users"
	CollectionRatings = "ratings"
)

// Document is a schemaless record in a collection.
type Document struct {
	ID     string
	Fields map[string]any
}

// Predicate is an equality match on a top-level field.
type Predicate struct {
	Field string
	Value any
}

func Eq(field string, v any) Predicate { return Predicate{Field: field, Value: v} }

type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, preds ...Predicate) ([]Document, error)
	// UpsertDocument replaces the whole document. An empty id lets the store assign one.
	UpsertDocument(ctx context.Context, collection, id string, fields map[string]any) (string, error)
	// UpdateFields merges fields into an existing document.
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error
}

// TxStore runs fn against a transactional view; any error from fn rolls it back.
type TxStore interface {
	DocumentStore
	InTx(ctx context.Context, fn func(tx DocumentStore) error) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Authenticator resolves a bearer token to a stable user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// BlobStore keeps uploaded photos and returns a retrievable URL.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}
