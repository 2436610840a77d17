// Package store is the document-store boundary: a schemaless collection/record
// API with live subscriptions, access rules and optimistic transactions.
package store

import (
	"context"
	"errors"
)

// Record is a schemaless document value.
type Record map[string]any

// Unsubscribe releases a live subscription. It is safe to call more than once.
type Unsubscribe func()

var (
	// ErrConflict is returned by RunAtomic when every attempt lost a race.
	ErrConflict = errors.New("transaction conflict")
	// ErrInvalidPath is returned for locators that are not collection/id.
	ErrInvalidPath = errors.New("invalid document path")
)

// MaxAtomicAttempts bounds RunAtomic retries.
const MaxAtomicAttempts = 5

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when a record is written.
var ServerTimestamp any = serverTimestamp{}

// Store is implemented by Mongo and Memory.
type Store interface {
	// GetOne returns nil, nil when the record does not exist.
	GetOne(ctx context.Context, path string) (Record, error)
	// SubscribeOne delivers the record at path now and after every change.
	// onData receives nil when the record does not exist. A denial is
	// reported once through onError and ends the subscription.
	SubscribeOne(ctx context.Context, path string, onData func(Record), onError func(error)) Unsubscribe
	// SubscribeMany delivers the query result now and after every change to
	// the queried collection.
	SubscribeMany(ctx context.Context, q Query, onData func([]Record), onError func(error)) Unsubscribe
	// Create writes the full record, replacing any existing one.
	Create(ctx context.Context, path string, value Record) error
	// Update merges top-level fields into an existing record.
	Update(ctx context.Context, path string, partial Record) error
	Delete(ctx context.Context, path string) error
	// RunAtomic runs fn as an optimistic read-modify-write transaction and
	// retries it when a record it read changed before commit.
	RunAtomic(ctx context.Context, fn func(tx Tx) error) error
	// BatchWrite authorizes every op before applying any of them.
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// Tx is the handle passed to RunAtomic callbacks. Writes are staged and
// applied only when the callback returns nil.
type Tx interface {
	Get(path string) (Record, error)
	Set(path string, value Record)
	Update(path string, partial Record)
	Delete(path string)
}

// WriteKind selects the operation of a WriteOp.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteUpdate
	WriteDelete
)

// WriteOp is one element of a batch or a staged transaction write.
type WriteOp struct {
	Kind  WriteKind
	Path  string
	Value Record
}

// Clone deep-copies maps and slices so callers never share state with the store.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return cloneValue(map[string]any(r)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return Record(cloneValue(map[string]any(t)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
