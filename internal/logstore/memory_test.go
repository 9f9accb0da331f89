package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s Store) time.Time {
	t.Helper()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{APIName: "generate_ai_response", Prompt: "hi", UserDetails: UserDetails{UserEmail: "a@example.com", UserName: "a"},
			RequestData: map[string]any{"tokens": 10}, Timestamp: base},
		{APIName: "generate_ai_response", Prompt: "hello", UserDetails: UserDetails{UserEmail: "b@example.com", UserName: "b"},
			RequestData: map[string]any{"tokens": 25}, Timestamp: base.Add(time.Hour)},
		{APIName: "admin_chat", Prompt: "how many", UserDetails: UserDetails{UserEmail: "a@example.com", UserName: "a"},
			RequestData: map[string]any{"question": "how many"}, Timestamp: base.Add(2 * time.Hour)},
	}
	for _, r := range recs {
		_, err := s.Add(context.Background(), DefaultCollection, r)
		require.NoError(t, err)
	}
	return base
}

func TestMemoryStoreFindFilters(t *testing.T) {
	s := NewMemoryStore()
	base := seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters []Filter
		want    int
	}{
		{"no filters", nil, 3},
		{"eq top level", []Filter{{Field: "api_name", Op: OpEq, Value: "generate_ai_response"}}, 2},
		{"ne", []Filter{{Field: "api_name", Op: OpNe, Value: "generate_ai_response"}}, 1},
		{"nested", []Filter{{Field: "user_details.user_email", Op: OpEq, Value: "a@example.com"}}, 2},
		{"numeric range", []Filter{{Field: "request_data.tokens", Op: OpGt, Value: 15}}, 1},
		{"mismatched type never ranges", []Filter{{Field: "request_data.tokens", Op: OpGt, Value: "15"}}, 0},
		{"missing path", []Filter{{Field: "request_data.nope", Op: OpNe, Value: "x"}}, 0},
		{"timestamp string", []Filter{{Field: "timestamp", Op: OpGe, Value: base.Add(time.Hour).Format(time.RFC3339)}}, 2},
		{"and-ed", []Filter{
			{Field: "api_name", Op: OpEq, Value: "generate_ai_response"},
			{Field: "user_details.user_email", Op: OpEq, Value: "a@example.com"},
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, Query{Collection: DefaultCollection, Filters: tt.filters})
			require.NoError(t, err)
			assert.Len(t, docs, tt.want)
			for _, d := range docs {
				assert.True(t, Match(d, tt.filters))
			}
			n, err := s.Count(ctx, DefaultCollection, tt.filters)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.want), n)
		})
	}
}

func TestMemoryStoreOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)
	ctx := context.Background()

	docs, err := s.Find(ctx, Query{
		Collection: DefaultCollection,
		Order:      &Order{Field: TimestampField, Direction: Descending},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "admin_chat", docs[0]["api_name"])
	first := docs[0][TimestampField].(time.Time)
	second := docs[1][TimestampField].(time.Time)
	assert.True(t, first.After(second))

	docs, err = s.Find(ctx, Query{
		Collection: DefaultCollection,
		Order:      &Order{Field: "request_data.tokens", Direction: Ascending},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2, "documents without the order field are excluded")
	assert.Equal(t, "hi", docs[0]["prompt"])
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)
	ctx := context.Background()

	docs, err := s.Find(ctx, Query{Collection: DefaultCollection})
	require.NoError(t, err)
	docs[0]["user_details"].(map[string]any)["user_email"] = "mutated"

	n, err := s.Count(ctx, DefaultCollection, []Filter{{Field: "user_details.user_email", Op: OpEq, Value: "mutated"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreRejectsBadTimestamp(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)
	_, err := s.Find(context.Background(), Query{
		Collection: DefaultCollection,
		Filters:    []Filter{{Field: "timestamp", Op: OpGe, Value: "last tuesday"}},
	})
	assert.Error(t, err)
}

func TestFilterUnmarshal(t *testing.T) {
	var fs []Filter
	err := json.Unmarshal([]byte(`[{"field":"api_name","op":"==","value":"x"},{"field":"prompt","operator":"!=","value":"y"}]`), &fs)
	require.NoError(t, err)
	assert.Equal(t, []Filter{
		{Field: "api_name", Op: OpEq, Value: "x"},
		{Field: "prompt", Op: OpNe, Value: "y"},
	}, fs)

	err = json.Unmarshal([]byte(`[{"field":"api_name","op":"LIKE","value":"x"}]`), &fs)
	assert.True(t, errors.Is(err, ErrUnknownOperator))
}

func TestParseTime(t *testing.T) {
	for _, in := range []string{"2024-05-21T00:00:00Z", "2024-05-21T00:00:00.123+02:00", "2024-05-21T00:00:00", "2024-05-21"} {
		_, err := ParseTime(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseTime(42)
	assert.Error(t, err)
}

func TestDisabledStore(t *testing.T) {
	var s Store = Disabled{}
	ctx := context.Background()
	_, err := s.Find(ctx, Query{Collection: DefaultCollection})
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = s.Count(ctx, DefaultCollection, nil)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = s.Add(ctx, DefaultCollection, Record{})
	assert.ErrorIs(t, err, ErrDisabled)
}
