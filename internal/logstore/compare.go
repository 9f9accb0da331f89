package logstore

import (
	"encoding/json"
	"strings"
	"time"
)

// Lookup resolves a dot path inside a document. ok is false when any segment
// is missing or traverses a non-object.
func Lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, seg := range path {
		m, isMap := cur.(map[string]any)
		if !isMap {
			if d, isDoc := cur.(Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// typeRank orders values of different kinds. Only values of equal rank are
// comparable with < <= > >=.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64, json.Number:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	case []any:
		return 5
	case map[string]any, Document:
		return 6
	}
	return 7
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// compareValues returns -1, 0, 1 and whether a and b are of comparable kinds.
func compareValues(a, b any) (int, bool) {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return 0, false
	}
	switch ra {
	case 0:
		return 0, true
	case 1:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case 2:
		x, y := toFloat(a), toFloat(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case 3:
		return a.(time.Time).Compare(b.(time.Time)), true
	case 4:
		return strings.Compare(a.(string), b.(string)), true
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return strings.Compare(string(ja), string(jb)), true
}

// Match reports whether doc satisfies every filter.
func Match(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchOne(doc, f) {
			return false
		}
	}
	return true
}

func matchOne(doc Document, f Filter) bool {
	got, ok := Lookup(doc, f.Path())
	if !ok || got == nil {
		return false
	}
	want := f.Value
	if f.Field == TimestampField {
		ts, err := ParseTime(want)
		if err != nil {
			return false
		}
		want = ts
	}
	cmp, comparable := compareValues(got, want)
	switch f.Op {
	case OpEq:
		return comparable && cmp == 0
	case OpNe:
		return !comparable || cmp != 0
	case OpLt:
		return comparable && cmp < 0
	case OpLe:
		return comparable && cmp <= 0
	case OpGt:
		return comparable && cmp > 0
	case OpGe:
		return comparable && cmp >= 0
	}
	return false
}
