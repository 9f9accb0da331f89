// Package query runs point, count, distinct and group-by queries over the
// API call log collection. Every operation is fail-open: store errors are
// logged and counted, and the caller receives an empty result.
package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/metrics"
)

const (
	DefaultQueryLimit = 20
	DefaultScanLimit  = 1000
)

// QueryRequest selects full documents.
type QueryRequest struct {
	Collection string            `json:"collection"`
	Filters    []logstore.Filter `json:"filters"`
	Limit      int               `json:"limit"`
	OrderBy    string            `json:"order_by"`
	Direction  string            `json:"direction"`
}

// DistinctRequest asks for the distinct values of Field among at most Limit
// matching documents.
type DistinctRequest struct {
	Collection string            `json:"collection"`
	Field      string            `json:"field"`
	Filters    []logstore.Filter `json:"filters"`
	Limit      int               `json:"limit"`
}

// GroupRequest asks for per-value counts of Field among at most Limit
// matching documents.
type GroupRequest struct {
	Collection string            `json:"collection"`
	Field      string            `json:"field"`
	Filters    []logstore.Filter `json:"filters"`
	Limit      int               `json:"limit"`
}

// Distinct is the result of DistinctValues. Truncated reports that the scan
// hit its limit, so values beyond it may be missing.
type Distinct struct {
	Values    []any `json:"values"`
	Scanned   int   `json:"scanned"`
	Truncated bool  `json:"truncated"`
}

// Groups is the result of GroupAndCount.
type Groups struct {
	Counts    map[string]int `json:"counts"`
	Scanned   int            `json:"scanned"`
	Truncated bool           `json:"truncated"`
}

// Service is the query layer over a logstore.Store.
type Service struct {
	store             logstore.Store
	logger            *zap.Logger
	defaultCollection string
}

// NewService creates a query service. An empty collection defaults to
// logstore.DefaultCollection.
func NewService(store logstore.Store, collection string, logger *zap.Logger) *Service {
	if collection == "" {
		collection = logstore.DefaultCollection
	}
	return &Service{store: store, logger: logger, defaultCollection: collection}
}

// Collection returns the collection used when a request leaves it empty.
func (s *Service) Collection() string { return s.defaultCollection }

func (s *Service) collection(c string) string {
	if c == "" {
		return s.defaultCollection
	}
	return c
}

func (s *Service) fail(op, collection string, err error, fields ...zap.Field) {
	metrics.QueryErrors.WithLabelValues(op).Inc()
	fields = append(fields, zap.String("collection", collection), zap.Error(err))
	s.logger.Error("log store "+op+" failed", fields...)
}

// Query applies filters, then ordering, then the limit. Timestamps are
// rendered as ISO-8601 strings.
func (s *Service) Query(ctx context.Context, req QueryRequest) []logstore.Document {
	coll := s.collection(req.Collection)
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	orderBy := req.OrderBy
	if orderBy == "" {
		orderBy = logstore.TimestampField
	}
	direction := logstore.Descending
	if req.Direction != "" {
		direction = logstore.ParseDirection(req.Direction)
	}

	docs, err := s.store.Find(ctx, logstore.Query{
		Collection: coll,
		Filters:    req.Filters,
		Order:      &logstore.Order{Field: orderBy, Direction: direction},
		Limit:      limit,
	})
	if err != nil {
		s.fail("query", coll, err)
		return []logstore.Document{}
	}
	out := make([]logstore.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, render(d))
	}
	s.logger.Debug("queried documents", zap.String("collection", coll), zap.Int("count", len(out)))
	return out
}

// RecentLogs returns the newest logs, optionally restricted to one API name.
func (s *Service) RecentLogs(ctx context.Context, apiName string, limit int) []logstore.Document {
	var filters []logstore.Filter
	if apiName != "" {
		filters = []logstore.Filter{{Field: "api_name", Op: logstore.OpEq, Value: apiName}}
	}
	return s.Query(ctx, QueryRequest{Filters: filters, Limit: limit})
}

// Count returns the number of matching documents using the store's
// server-side count.
func (s *Service) Count(ctx context.Context, collection string, filters []logstore.Filter) int64 {
	coll := s.collection(collection)
	n, err := s.store.Count(ctx, coll, filters)
	if err != nil {
		s.fail("count", coll, err)
		return 0
	}
	return n
}

// DistinctValues scans at most req.Limit matching documents and returns the
// distinct non-null values of req.Field in first-seen order. Documents where
// the path does not resolve are skipped. One extra document is read to tell
// whether more matches exist beyond the limit.
func (s *Service) DistinctValues(ctx context.Context, req DistinctRequest) Distinct {
	coll := s.collection(req.Collection)
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	r := newResolver(req.Field)
	seen := make(map[string]struct{})
	out := Distinct{Values: []any{}}

	err := s.store.Stream(ctx, logstore.Query{Collection: coll, Filters: req.Filters, Limit: limit + 1},
		func(d logstore.Document) error {
			if out.Scanned == limit {
				out.Truncated = true
				return nil
			}
			out.Scanned++
			res, ok := r.resolve(d)
			if !ok {
				return nil
			}
			key := canonical(res)
			if _, dup := seen[key]; dup {
				return nil
			}
			seen[key] = struct{}{}
			out.Values = append(out.Values, res.Value())
			return nil
		})
	if err != nil {
		s.fail("distinct", coll, err, zap.String("field", req.Field))
		return Distinct{Values: []any{}}
	}
	return out
}

// GroupAndCount scans like DistinctValues and tallies occurrences keyed by the
// string form of each resolved value.
func (s *Service) GroupAndCount(ctx context.Context, req GroupRequest) Groups {
	coll := s.collection(req.Collection)
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	r := newResolver(req.Field)
	out := Groups{Counts: map[string]int{}}

	err := s.store.Stream(ctx, logstore.Query{Collection: coll, Filters: req.Filters, Limit: limit + 1},
		func(d logstore.Document) error {
			if out.Scanned == limit {
				out.Truncated = true
				return nil
			}
			out.Scanned++
			if res, ok := r.resolve(d); ok {
				out.Counts[groupKey(res)]++
			}
			return nil
		})
	if err != nil {
		s.fail("group", coll, err, zap.String("field", req.Field))
		return Groups{Counts: map[string]int{}}
	}
	return out
}
