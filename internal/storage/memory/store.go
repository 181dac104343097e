// Package memory is an in-process document store used by tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"gighop/internal/domain"
)

type entry struct {
	seq    uint64
	fields map[string]any
}

type collections map[string]map[string]entry

// Store serializes transactions behind one mutex; a failed transaction
// restores the snapshot taken when it began.
type Store struct {
	mu   sync.Mutex
	data collections
	seq  uint64
}

func New() *Store { return &Store{data: collections{}} }

func (s *Store) GetDocument(ctx context.Context, collection, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).GetDocument(ctx, collection, id)
}

func (s *Store) Query(ctx context.Context, collection string, preds ...domain.Predicate) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).Query(ctx, collection, preds...)
}

func (s *Store) UpsertDocument(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).UpsertDocument(ctx, collection, id, fields)
}

func (s *Store) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*view)(s).UpdateFields(ctx, collection, id, fields)
}

func (s *Store) InTx(ctx context.Context, fn func(tx domain.DocumentStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.data.snapshot()
	seq := s.seq
	if err := fn((*view)(s)); err != nil {
		s.data, s.seq = snap, seq
		return err
	}
	if err := ctx.Err(); err != nil {
		s.data, s.seq = snap, seq
		return err
	}
	return nil
}

func (c collections) snapshot() collections {
	out := make(collections, len(c))
	for name, docs := range c {
		cp := make(map[string]entry, len(docs))
		for id, e := range docs {
			cp[id] = e
		}
		out[name] = cp
	}
	return out
}

// view is the lock-free body of Store; callers hold s.mu.
type view Store

func (v *view) GetDocument(ctx context.Context, collection, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	e, ok := v.data[collection][id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return domain.Document{ID: id, Fields: cloneMap(e.fields)}, nil
}

func (v *view) Query(ctx context.Context, collection string, preds ...domain.Predicate) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type hit struct {
		id string
		e  entry
	}
	var hits []hit
	for id, e := range v.data[collection] {
		if matches(e.fields, preds) {
			hits = append(hits, hit{id, e})
		}
	}
	// insertion order, like created_at in the SQL store
	sort.Slice(hits, func(i, j int) bool { return hits[i].e.seq < hits[j].e.seq })

	out := make([]domain.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Document{ID: h.id, Fields: cloneMap(h.e.fields)})
	}
	return out, nil
}

func (v *view) UpsertDocument(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	docs := v.data[collection]
	if docs == nil {
		docs = map[string]entry{}
		v.data[collection] = docs
	}
	seq := docs[id].seq
	if _, exists := docs[id]; !exists {
		v.seq++
		seq = v.seq
	}
	docs[id] = entry{seq: seq, fields: normalize(fields)}
	return id, nil
}

func (v *view) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := v.data[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	// merge-patch semantics: a null value removes the key
	merged := cloneMap(e.fields)
	for k, val := range normalize(fields) {
		if val == nil {
			delete(merged, k)
			continue
		}
		merged[k] = val
	}
	v.data[collection][id] = entry{seq: e.seq, fields: merged}
	return nil
}

func (v *view) InTx(ctx context.Context, fn func(tx domain.DocumentStore) error) error {
	return fn(v)
}

func matches(fields map[string]any, preds []domain.Predicate) bool {
	for _, p := range preds {
		got, ok := fields[p.Field]
		if !ok || !equalValue(got, normalizeValue(p.Value)) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// normalize round-trips fields through JSON so stored values have the same
// shapes the SQL store hands back (float64 numbers, map[string]any objects).
func normalize(fields map[string]any) map[string]any {
	b, err := json.Marshal(fields)
	if err != nil {
		return cloneMap(fields)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return cloneMap(fields)
	}
	return out
}

func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}
