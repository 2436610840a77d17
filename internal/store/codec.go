package store

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecordFrom converts a model struct into a Record using its bson tags.
func RecordFrom(v any) (Record, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return fromBSON(m), nil
}

// Decode fills out (a pointer to a model struct) from rec using bson tags.
func Decode(rec Record, out any) error {
	raw, err := bson.Marshal(map[string]any(rec))
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}

// fromBSON converts driver values into plain Go values: documents become
// maps, arrays become []any and datetimes become UTC time.Time.
func fromBSON(m bson.M) Record {
	out := make(Record, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(fromBSON(t))
	case primitive.D:
		return map[string]any(fromBSON(t.Map()))
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	}
	return v
}
