package store

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Filter operators.
const (
	OpEq            = "=="
	OpNe            = "!="
	OpLt            = "<"
	OpLte           = "<="
	OpGt            = ">"
	OpGte           = ">="
	OpIn            = "in"
	OpArrayContains = "array-contains"
)

// Filter constrains one field.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Order sorts by one field.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query describes a filtered, ordered and limited set of records.
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
	OrderBy    []Order  `json:"orderBy,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// NewQuery starts a query over collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field, op string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Order returns a copy of q with an extra sort key.
func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field, Desc: desc})
	return q
}

// WithLimit returns a copy of q limited to n records.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Equal compares two descriptors by value.
func (q Query) Equal(other Query) bool {
	if q.Collection != other.Collection || q.Limit != other.Limit {
		return false
	}
	if len(q.Filters) != len(other.Filters) || len(q.OrderBy) != len(other.OrderBy) {
		return false
	}
	for i := range q.Filters {
		a, b := q.Filters[i], other.Filters[i]
		if a.Field != b.Field || a.Op != b.Op || !valuesEqual(a.Value, b.Value) {
			return false
		}
	}
	for i := range q.OrderBy {
		if q.OrderBy[i] != other.OrderBy[i] {
			return false
		}
	}
	return true
}

// EqualityValue returns the value of an == filter on field.
func (q Query) EqualityValue(field string) (any, bool) {
	for _, f := range q.Filters {
		if f.Field == field && f.Op == OpEq {
			return f.Value, true
		}
	}
	return nil, false
}

// Matches evaluates the filters against rec.
func (q Query) Matches(rec Record) bool {
	for _, f := range q.Filters {
		if !f.matches(rec[f.Field]) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits records in memory.
func (q Query) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareValues(out[i][o.Field], out[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (f Filter) matches(v any) bool {
	switch f.Op {
	case OpEq:
		return valuesEqual(v, f.Value)
	case OpNe:
		return !valuesEqual(v, f.Value)
	case OpLt:
		return orderable(v, f.Value) && compareValues(v, f.Value) < 0
	case OpLte:
		return orderable(v, f.Value) && compareValues(v, f.Value) <= 0
	case OpGt:
		return orderable(v, f.Value) && compareValues(v, f.Value) > 0
	case OpGte:
		return orderable(v, f.Value) && compareValues(v, f.Value) >= 0
	case OpIn:
		for _, candidate := range toSlice(f.Value) {
			if valuesEqual(v, candidate) {
				return true
			}
		}
		return false
	case OpArrayContains:
		for _, elem := range toSlice(v) {
			if valuesEqual(elem, f.Value) {
				return true
			}
		}
		return false
	}
	return false
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func orderable(a, b any) bool {
	if _, ok := toFloat(a); ok {
		_, ok = toFloat(b)
		return ok
	}
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case time.Time:
		_, ok := b.(time.Time)
		return ok
	}
	return false
}

// compareValues orders nil < numbers < strings < times; mismatched kinds
// fall back to that rank.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		return a.(time.Time).Compare(b.(time.Time))
	case 4:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	}
	return 0
}

func rank(v any) int {
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case time.Time:
		return 3
	case bool:
		return 4
	}
	return 5
}
