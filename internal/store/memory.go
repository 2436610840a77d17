package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

type memDoc struct {
	rec     Record
	version int64
}

type memSub struct {
	collection string
	id         string // empty for queries
	query      Query
	ctx        context.Context
	onDoc      func(Record)
	onList     func([]Record)
	onError    func(error)
	closed     bool
	seq        uint64 // last snapshot taken, guarded by Memory.mu

	dmu      sync.Mutex
	newest   uint64
	pending  func()
	draining bool
}

// Memory is an in-process Store with the same rules and semantics as Mongo.
// Deliveries run on the goroutine that caused them, after the store lock is
// released. Each subscription sees snapshots in the order they were taken;
// one overtaken by a newer snapshot is dropped.
type Memory struct {
	mu     sync.Mutex
	data   map[string]map[string]*memDoc
	subs   map[uint64]*memSub
	nextID uint64
	rules  *Rules
	now    func() time.Time
}

// NewMemory creates an empty store. A nil rules value allows system contexts only.
func NewMemory(rules *Rules) *Memory {
	if rules == nil {
		rules = NewRules(nil)
	}
	return &Memory{
		data:  make(map[string]map[string]*memDoc),
		subs:  make(map[uint64]*memSub),
		rules: rules,
		now:   time.Now,
	}
}

// SetClock overrides the clock used for ServerTimestamp.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) get(collection, id string) *memDoc {
	return m.data[collection][id]
}

func (m *Memory) GetOne(ctx context.Context, path string) (Record, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing Record
	if d := m.get(collection, id); d != nil {
		existing = d.rec
	}
	if err := m.rules.Check(ctx, models.OpReadOne, path, existing, nil); err != nil {
		return nil, err
	}
	return existing.Clone(), nil
}

func (m *Memory) SubscribeOne(ctx context.Context, path string, onData func(Record), onError func(error)) Unsubscribe {
	collection, id, err := SplitPath(path)
	if err != nil {
		onError(err)
		return func() {}
	}
	m.mu.Lock()
	var existing Record
	if d := m.get(collection, id); d != nil {
		existing = d.rec
	}
	if err := m.rules.Check(ctx, models.OpReadOne, path, existing, nil); err != nil {
		m.mu.Unlock()
		onError(err)
		return func() {}
	}
	sub := &memSub{collection: collection, id: id, ctx: ctx, onDoc: onData, onError: onError}
	key := m.addSub(sub)
	snapshot := existing.Clone()
	sub.seq++
	seq := sub.seq
	m.mu.Unlock()

	m.deliver(sub, seq, func() { onData(snapshot) })
	return m.unsubscriber(key)
}

func (m *Memory) SubscribeMany(ctx context.Context, q Query, onData func([]Record), onError func(error)) Unsubscribe {
	m.mu.Lock()
	if err := m.rules.CheckQuery(ctx, q); err != nil {
		m.mu.Unlock()
		onError(err)
		return func() {}
	}
	sub := &memSub{collection: q.Collection, query: q, ctx: ctx, onList: onData, onError: onError}
	key := m.addSub(sub)
	result := m.runQuery(q)
	sub.seq++
	seq := sub.seq
	m.mu.Unlock()

	m.deliver(sub, seq, func() { onData(result) })
	return m.unsubscriber(key)
}

func (m *Memory) addSub(sub *memSub) uint64 {
	m.nextID++
	m.subs[m.nextID] = sub
	return m.nextID
}

func (m *Memory) unsubscriber(key uint64) Unsubscribe {
	return func() {
		m.mu.Lock()
		if sub, ok := m.subs[key]; ok {
			sub.closed = true
			delete(m.subs, key)
		}
		m.mu.Unlock()
	}
}

func (m *Memory) runQuery(q Query) []Record {
	docs := m.data[q.Collection]
	all := make([]Record, 0, len(docs))
	for _, d := range docs {
		all = append(all, d.rec)
	}
	// Map iteration is random; give unordered queries a stable id order.
	ordered := Query{OrderBy: []Order{{Field: "id"}}}.Apply(all)
	result := q.Apply(ordered)
	out := make([]Record, len(result))
	for i, r := range result {
		out[i] = r.Clone()
	}
	return out
}

func (m *Memory) Create(ctx context.Context, path string, value Record) error {
	return m.BatchWrite(ctx, []WriteOp{{Kind: WriteSet, Path: path, Value: value}})
}

func (m *Memory) Update(ctx context.Context, path string, partial Record) error {
	return m.BatchWrite(ctx, []WriteOp{{Kind: WriteUpdate, Path: path, Value: partial}})
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	return m.BatchWrite(ctx, []WriteOp{{Kind: WriteDelete, Path: path}})
}

func (m *Memory) BatchWrite(ctx context.Context, ops []WriteOp) error {
	op := models.OpWrite
	if len(ops) == 1 {
		op = ""
	}
	m.mu.Lock()
	if err := m.authorizeWrites(ctx, ops, op); err != nil {
		m.mu.Unlock()
		return err
	}
	changed := m.applyWrites(ops)
	notify := m.collectDeliveries(changed)
	m.mu.Unlock()

	notify()
	return nil
}

// authorizeWrites checks every op; force overrides the per-op operation kind.
func (m *Memory) authorizeWrites(ctx context.Context, ops []WriteOp, force models.Operation) error {
	for _, w := range ops {
		collection, id, err := SplitPath(w.Path)
		if err != nil {
			return err
		}
		var existing Record
		if d := m.get(collection, id); d != nil {
			existing = d.rec
		}
		op := writeOperation(w.Kind, existing != nil)
		if w.Kind == WriteUpdate && existing == nil {
			return models.ErrNotFound
		}
		if err := m.rules.Check(ctx, op, w.Path, existing, w.Value); err != nil {
			if force != "" {
				return models.NewPermissionError(w.Path, force, payload(w.Value))
			}
			return err
		}
	}
	return nil
}

func writeOperation(kind WriteKind, exists bool) models.Operation {
	switch kind {
	case WriteUpdate:
		return models.OpUpdate
	case WriteDelete:
		return models.OpDelete
	}
	if exists {
		return models.OpUpdate
	}
	return models.OpCreate
}

type change struct {
	collection string
	id         string
}

func (m *Memory) applyWrites(ops []WriteOp) []change {
	now := m.now().UTC()
	changed := make([]change, 0, len(ops))
	for _, w := range ops {
		collection, id, _ := SplitPath(w.Path)
		if m.data[collection] == nil {
			m.data[collection] = make(map[string]*memDoc)
		}
		d := m.data[collection][id]
		switch w.Kind {
		case WriteSet:
			rec := resolveServerTimestamps(w.Value.Clone(), now)
			rec["id"] = id
			version := int64(1)
			if d != nil {
				version = d.version + 1
			}
			m.data[collection][id] = &memDoc{rec: rec, version: version}
		case WriteUpdate:
			if d == nil {
				continue
			}
			rec := d.rec.Clone()
			for k, v := range resolveServerTimestamps(w.Value.Clone(), now) {
				rec[k] = v
			}
			m.data[collection][id] = &memDoc{rec: rec, version: d.version + 1}
		case WriteDelete:
			delete(m.data[collection], id)
		}
		changed = append(changed, change{collection: collection, id: id})
	}
	return changed
}

// collectDeliveries snapshots what every affected subscription should see and
// returns a func that delivers it without holding the lock.
func (m *Memory) collectDeliveries(changed []change) func() {
	var calls []func()
	for _, sub := range m.subs {
		sub := sub
		for _, c := range changed {
			if c.collection != sub.collection || (sub.id != "" && sub.id != c.id) {
				continue
			}
			sub.seq++
			seq := sub.seq
			if sub.id != "" {
				var rec Record
				if d := m.get(sub.collection, sub.id); d != nil {
					rec = d.rec.Clone()
				}
				calls = append(calls, func() { m.deliver(sub, seq, func() { sub.onDoc(rec) }) })
			} else {
				result := m.runQuery(sub.query)
				calls = append(calls, func() { m.deliver(sub, seq, func() { sub.onList(result) }) })
			}
			break
		}
	}
	return func() {
		for _, call := range calls {
			call()
		}
	}
}

// deliver hands snapshot seq to the subscriber unless a newer one already
// reached it. One goroutine at a time drains a subscription; writers that
// arrive meanwhile leave their snapshot as pending, replacing any older one.
func (m *Memory) deliver(sub *memSub, seq uint64, fn func()) {
	sub.dmu.Lock()
	if seq <= sub.newest {
		sub.dmu.Unlock()
		return
	}
	sub.newest = seq
	sub.pending = fn
	if sub.draining {
		sub.dmu.Unlock()
		return
	}
	sub.draining = true
	for sub.pending != nil {
		next := sub.pending
		sub.pending = nil
		sub.dmu.Unlock()

		m.mu.Lock()
		closed := sub.closed
		m.mu.Unlock()
		if !closed && sub.ctx.Err() == nil {
			next()
		}

		sub.dmu.Lock()
	}
	sub.draining = false
	sub.dmu.Unlock()
}

func (m *Memory) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < MaxAtomicAttempts; attempt++ {
		tx := &memTx{ctx: ctx, m: m, reads: make(map[string]int64)}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}

		m.mu.Lock()
		if !tx.unchanged() {
			m.mu.Unlock()
			continue
		}
		if err := m.authorizeWrites(ctx, tx.writes, models.OpWrite); err != nil {
			m.mu.Unlock()
			return err
		}
		changed := m.applyWrites(tx.writes)
		notify := m.collectDeliveries(changed)
		m.mu.Unlock()
		notify()
		return nil
	}
	return ErrConflict
}

type memTx struct {
	ctx    context.Context
	m      *Memory
	reads  map[string]int64 // path -> version seen, 0 when absent
	writes []WriteOp
	err    error
}

func (tx *memTx) Get(path string) (Record, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	var existing Record
	var version int64
	if d := tx.m.get(collection, id); d != nil {
		existing, version = d.rec, d.version
	}
	if err := tx.m.rules.Check(tx.ctx, models.OpReadOne, path, existing, nil); err != nil {
		return nil, err
	}
	tx.reads[path] = version
	return existing.Clone(), nil
}

func (tx *memTx) Set(path string, value Record) {
	tx.writes = append(tx.writes, WriteOp{Kind: WriteSet, Path: path, Value: value})
}

func (tx *memTx) Update(path string, partial Record) {
	tx.writes = append(tx.writes, WriteOp{Kind: WriteUpdate, Path: path, Value: partial})
}

func (tx *memTx) Delete(path string) {
	tx.writes = append(tx.writes, WriteOp{Kind: WriteDelete, Path: path})
}

// unchanged must be called with the store lock held.
func (tx *memTx) unchanged() bool {
	for path, seen := range tx.reads {
		collection, id, _ := SplitPath(path)
		var current int64
		if d := tx.m.get(collection, id); d != nil {
			current = d.version
		}
		if current != seen {
			return false
		}
	}
	return true
}

func resolveServerTimestamps(rec Record, now time.Time) Record {
	for k, v := range rec {
		switch t := v.(type) {
		case serverTimestamp:
			rec[k] = now
		case map[string]any:
			rec[k] = map[string]any(resolveServerTimestamps(Record(t), now))
		}
	}
	return rec
}

// IsConflict reports whether err is a transaction conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
