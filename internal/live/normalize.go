package live

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// NormalizeTime converts any timestamp representation the store or a client
// may hand over into a UTC time.Time.
func NormalizeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case primitive.DateTime:
		return t.Time().UTC(), true
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC(), true
	case string:
		return parseISO(t)
	case map[string]any:
		return wireTimestamp(t)
	case store.Record:
		return wireTimestamp(t)
	}
	return time.Time{}, false
}

func parseISO(s string) (time.Time, bool) {
	// Require a full date-time; plain dates such as attempt-counter days stay strings.
	if len(s) < len("2006-01-02T15:04:05") || (s[10] != 'T' && s[10] != ' ') {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// wireTimestamp recognises the hosted store's JSON timestamp object:
// {"seconds": n, "nanoseconds": n} or the underscored admin-SDK form.
func wireTimestamp(m map[string]any) (time.Time, bool) {
	if len(m) != 2 {
		return time.Time{}, false
	}
	for _, keys := range [][2]string{{"seconds", "nanoseconds"}, {"_seconds", "_nanoseconds"}} {
		secV, okS := m[keys[0]]
		nsV, okN := m[keys[1]]
		if !okS || !okN {
			continue
		}
		sec, ok1 := wholeNumber(secV)
		ns, ok2 := wholeNumber(nsV)
		if ok1 && ok2 {
			return time.Unix(sec, ns).UTC(), true
		}
	}
	return time.Time{}, false
}

func wholeNumber(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// NormalizeRecord returns a copy of rec with every timestamp value converted
// to time.Time and the record id injected. A nil record stays nil. Strings
// are parsed only under timestamp fields, so user text that happens to look
// like a date is left alone.
func NormalizeRecord(id string, rec store.Record) store.Record {
	if rec == nil {
		return nil
	}
	out := make(store.Record, len(rec)+1)
	for k, v := range rec {
		out[k] = normalizeValue(k, v)
	}
	if id != "" {
		out["id"] = id
	}
	return out
}

// isTimestampField reports whether string values under key hold timestamps:
// createdAt, reviewedAt and the like, plus lastDailyCheckin.
func isTimestampField(key string) bool {
	return key == "lastDailyCheckin" || (len(key) > 2 && strings.HasSuffix(key, "At"))
}

func normalizeValue(key string, v any) any {
	if s, ok := v.(string); ok {
		if !isTimestampField(key) {
			return s
		}
		if ts, ok := parseISO(s); ok {
			return ts
		}
		return s
	}
	if ts, ok := NormalizeTime(v); ok {
		return ts
	}
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(NormalizeRecord("", store.Record(t)))
	case store.Record:
		return map[string]any(NormalizeRecord("", t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(key, e)
		}
		return out
	}
	return v
}
