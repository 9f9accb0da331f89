package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process. It applies the same filter and
// ordering rules as PostgresStore and is used for local runs and tests.
type MemoryStore struct {
	collections map[string][]Document
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Document)}
}

// Add stores rec and returns its generated ID.
func (s *MemoryStore) Add(ctx context.Context, collection string, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	doc := rec.Document()
	body, err := doc.body()
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	stored := Document{}
	if err := json.Unmarshal(body, &stored); err != nil {
		return "", fmt.Errorf("normalize document: %w", err)
	}
	stored[TimestampField] = doc[TimestampField]

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	s.collections[collection] = append(s.collections[collection], stored)
	s.mu.Unlock()
	return id, nil
}

// Find returns copies of the matching documents.
func (s *MemoryStore) Find(ctx context.Context, q Query) ([]Document, error) {
	var out []Document
	err := s.Stream(ctx, q, func(d Document) error {
		out = append(out, d)
		return nil
	})
	return out, err
}

// Count returns the number of documents matching filters.
func (s *MemoryStore) Count(ctx context.Context, collection string, filters []Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, d := range s.collections[collection] {
		if Match(d, filters) {
			n++
		}
	}
	return n, nil
}

// Stream calls fn for each matching document in query order.
func (s *MemoryStore) Stream(ctx context.Context, q Query, fn func(Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.Order != nil && q.Order.Field == "" {
		q.Order = nil
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	s.mu.RLock()
	var matched []Document
	for _, d := range s.collections[q.Collection] {
		if !Match(d, q.Filters) {
			continue
		}
		if q.Order != nil {
			if v, ok := Lookup(d, SplitPath(q.Order.Field)); !ok || v == nil {
				continue
			}
		}
		matched = append(matched, copyDocument(d))
	}
	s.mu.RUnlock()

	if q.Order != nil {
		path := SplitPath(q.Order.Field)
		desc := q.Order.Direction == Descending
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := Lookup(matched[i], path)
			b, _ := Lookup(matched[j], path)
			cmp, ok := compareValues(a, b)
			if !ok {
				cmp = typeRank(a) - typeRank(b)
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	for _, d := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

func copyDocument(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = copyValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = copyValue(vv)
		}
		return s
	}
	return v
}

// Disabled is the store used when the real backend could not be initialized.
type Disabled struct{}

func (Disabled) Add(context.Context, string, Record) (string, error) { return "", ErrDisabled }
func (Disabled) Find(context.Context, Query) ([]Document, error)     { return nil, ErrDisabled }
func (Disabled) Count(context.Context, string, []Filter) (int64, error) {
	return 0, ErrDisabled
}
func (Disabled) Stream(context.Context, Query, func(Document) error) error { return ErrDisabled }
func (Disabled) Close()                                                  {}
