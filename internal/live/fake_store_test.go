package live

import (
	"context"
	"sync"

	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// fakeSub records one subscription so tests can push deliveries by hand.
type fakeSub struct {
	path      string
	query     store.Query
	onDoc     func(store.Record)
	onList    func([]store.Record)
	onError   func(error)
	cancelled bool
}

type fakeStore struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeStore) SubscribeOne(_ context.Context, path string, onData func(store.Record), onError func(error)) store.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{path: path, onDoc: onData, onError: onError}
	f.subs = append(f.subs, sub)
	return f.cancel(sub)
}

func (f *fakeStore) SubscribeMany(_ context.Context, q store.Query, onData func([]store.Record), onError func(error)) store.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{query: q, onList: onData, onError: onError}
	f.subs = append(f.subs, sub)
	return f.cancel(sub)
}

func (f *fakeStore) cancel(sub *fakeSub) store.Unsubscribe {
	return func() {
		f.mu.Lock()
		sub.cancelled = true
		f.mu.Unlock()
	}
}

func (f *fakeStore) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.cancelled {
			n++
		}
	}
	return n
}

func (f *fakeStore) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeStore) GetOne(context.Context, string) (store.Record, error) { return nil, nil }

func (f *fakeStore) Create(context.Context, string, store.Record) error { return nil }

func (f *fakeStore) Update(context.Context, string, store.Record) error { return nil }

func (f *fakeStore) Delete(context.Context, string) error { return nil }

func (f *fakeStore) RunAtomic(context.Context, func(store.Tx) error) error { return nil }

func (f *fakeStore) BatchWrite(context.Context, []store.WriteOp) error { return nil }
