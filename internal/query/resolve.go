package query

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nfrm/cary-services/internal/logstore"
)

// gjson treats these as path syntax; field names containing them are escaped.
const gjsonSpecial = `\.*?|#@!=<>%`

// gjsonSegment escapes every character gjson would otherwise interpret
// inside a single path segment.
func gjsonSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		if strings.ContainsRune(gjsonSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// resolver extracts a dot-path value from rendered documents. Only objects
// are descended into, matching logstore.Lookup, so arrays are never indexed.
type resolver struct {
	segments []string
}

func newResolver(field string) resolver {
	segs := logstore.SplitPath(field)
	for i, seg := range segs {
		segs[i] = gjsonSegment(seg)
	}
	return resolver{segments: segs}
}

// resolve returns the value at the path. ok is false when any segment is
// missing, a parent is not an object, or the value is JSON null.
func (r resolver) resolve(doc logstore.Document) (gjson.Result, bool) {
	body, err := json.Marshal(render(doc))
	if err != nil {
		return gjson.Result{}, false
	}
	res := gjson.ParseBytes(body)
	for _, seg := range r.segments {
		if !res.IsObject() {
			return gjson.Result{}, false
		}
		res = res.Get(seg)
	}
	if !res.Exists() || res.Type == gjson.Null {
		return res, false
	}
	return res, true
}

// canonical is the dedup key for a resolved value. Objects are re-marshaled so
// key order never creates false duplicates.
func canonical(res gjson.Result) string {
	b, err := json.Marshal(res.Value())
	if err != nil {
		return res.Raw
	}
	return string(b)
}

// groupKey is the string form of a resolved value.
func groupKey(res gjson.Result) string {
	if res.IsObject() || res.IsArray() {
		return canonical(res)
	}
	return res.String()
}

// render replaces the typed timestamp with its ISO-8601 form.
func render(doc logstore.Document) logstore.Document {
	ts, ok := doc[logstore.TimestampField].(time.Time)
	if !ok {
		return doc
	}
	out := make(logstore.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out[logstore.TimestampField] = ts.UTC().Format(time.RFC3339Nano)
	return out
}
