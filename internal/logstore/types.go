package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCollection holds one document per inbound API call.
const DefaultCollection = "api_logs"

// TimestampField is the write-once field every log document carries.
const TimestampField = "timestamp"

var (
	// ErrUnknownOperator is returned for comparison operators outside == != < <= > >=.
	ErrUnknownOperator = errors.New("unknown filter operator")
	// ErrDisabled is returned by every call on a store that failed to initialize.
	ErrDisabled = errors.New("log store is not initialized")
)

// UserDetails identifies the caller of a logged API.
type UserDetails struct {
	ClientHost string `json:"client_host"`
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
}

// Record is one immutable entry describing a single inbound API call.
type Record struct {
	ID          string         `json:"id,omitempty"`
	APIName     string         `json:"api_name"`
	Prompt      string         `json:"prompt"`
	UserDetails UserDetails    `json:"user_details"`
	RequestData map[string]any `json:"request_data"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Document is a schemaless stored document. Nested objects are map[string]any,
// numbers are float64 and the timestamp field is a time.Time.
type Document map[string]any

// Document renders the record the way it is persisted.
func (r Record) Document() Document {
	data := r.RequestData
	if data == nil {
		data = map[string]any{}
	}
	return Document{
		"api_name": r.APIName,
		"prompt":   r.Prompt,
		"user_details": map[string]any{
			"client_host": r.UserDetails.ClientHost,
			"user_name":   r.UserDetails.UserName,
			"user_email":  r.UserDetails.UserEmail,
		},
		"request_data": data,
		TimestampField: r.Timestamp.UTC(),
	}
}

// body returns the JSON form of the document without the timestamp, which
// backends keep in a typed column.
func (d Document) body() ([]byte, error) {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if k == TimestampField {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// ParseOp validates an operator string.
func ParseOp(s string) (Op, error) {
	switch op := Op(strings.TrimSpace(s)); op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return op, nil
	case "=":
		return OpEq, nil
	case "<>":
		return OpNe, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// Filter is a single comparison against a dot-path field. Requests carry an
// ordered list of filters which are AND-ed together.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// UnmarshalJSON accepts both "op" and "operator" keys.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string `json:"field"`
		Op       string `json:"op"`
		Operator string `json:"operator"`
		Value    any    `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	opStr := raw.Op
	if opStr == "" {
		opStr = raw.Operator
	}
	op, err := ParseOp(opStr)
	if err != nil {
		return err
	}
	*f = Filter{Field: raw.Field, Op: op, Value: raw.Value}
	return nil
}

// Validate checks the field path and operator.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return errors.New("filter field is required")
	}
	if _, err := ParseOp(string(f.Op)); err != nil {
		return err
	}
	if f.Field == TimestampField {
		if _, err := ParseTime(f.Value); err != nil {
			return err
		}
	}
	return nil
}

// Path splits the dot-path field into segments.
func (f Filter) Path() []string { return SplitPath(f.Field) }

// SplitPath splits a dot-path into its segments.
func SplitPath(field string) []string {
	return strings.Split(strings.TrimSpace(field), ".")
}

// Direction orders query results.
type Direction string

const (
	Ascending  Direction = "ASCENDING"
	Descending Direction = "DESCENDING"
)

// ParseDirection maps anything other than ASCENDING/ASC to Descending.
func ParseDirection(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASCENDING", "ASC":
		return Ascending
	}
	return Descending
}

// Order is an order-by clause.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from a collection.
type Query struct {
	Collection string
	Filters    []Filter
	Order      *Order
	Limit      int // <= 0 means unbounded
}

// Store is the document store client used by the query layer and the log sink.
type Store interface {
	Add(ctx context.Context, collection string, rec Record) (string, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, collection string, filters []Filter) (int64, error)
	Stream(ctx context.Context, q Query, fn func(Document) error) error
	Close()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime converts an ISO-8601 string (or a time.Time) into a UTC instant.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q: want ISO 8601", t)
	}
	return time.Time{}, fmt.Errorf("invalid timestamp value %v: want ISO 8601 string", v)
}
