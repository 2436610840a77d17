package live

import (
	"context"
	"errors"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// State is what a binding exposes to its consumer.
type State[T any] struct {
	Data    T
	Loading bool
	Err     error
}

// DocState is the state of a Document binding. Data is nil when no path is
// bound or the record does not exist.
type DocState = State[store.Record]

// Document keeps the record at a path in sync with the store. All methods
// must be called on the owning Loop.
type Document struct {
	ctx      context.Context
	loop     *Loop
	store    store.Store
	bus      *events.Bus
	onChange func(DocState)

	path   string
	gen    uint64
	unsub  store.Unsubscribe
	failed bool
	closed bool
	state  DocState
}

// NewDocument creates an unbound document binding. ctx carries the caller the
// store authorizes reads against; onChange may be nil.
func NewDocument(ctx context.Context, loop *Loop, s store.Store, bus *events.Bus, onChange func(DocState)) *Document {
	return &Document{ctx: ctx, loop: loop, store: s, bus: bus, onChange: onChange}
}

func (d *Document) State() DocState { return d.state }

func (d *Document) Path() string { return d.path }

// SetPath rebinds the document. An empty path releases the subscription and
// resets the state. Binding the current path again is a no-op unless the last
// subscription failed, in which case it retries.
func (d *Document) SetPath(path string) {
	if d.closed {
		return
	}
	if path == d.path && !d.failed {
		return
	}
	d.release()
	d.path = path
	d.failed = false

	if path == "" {
		d.set(DocState{})
		return
	}

	d.set(DocState{Data: d.state.Data, Loading: true})
	gen := d.gen
	_, id, _ := store.SplitPath(path)
	d.unsub = d.store.SubscribeOne(d.ctx, path,
		func(rec store.Record) {
			normalized := NormalizeRecord(id, rec)
			d.loop.Post(func() { d.deliver(gen, normalized) })
		},
		func(err error) {
			d.loop.Post(func() { d.fail(gen, err) })
		},
	)
}

// Close releases the subscription. Deliveries already queued are dropped.
func (d *Document) Close() {
	if d.closed {
		return
	}
	d.release()
	d.closed = true
}

func (d *Document) release() {
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
	d.gen++
}

func (d *Document) deliver(gen uint64, rec store.Record) {
	if d.closed || gen != d.gen {
		return
	}
	d.set(DocState{Data: rec})
}

func (d *Document) fail(gen uint64, err error) {
	if d.closed || gen != d.gen {
		return
	}
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
	d.failed = true

	if errors.Is(err, models.ErrPermissionDenied) {
		permErr := models.NewPermissionError(d.path, models.OpReadOne, nil)
		err = permErr
		d.bus.Emit(events.TopicPermissionError, permErr)
	}
	d.set(DocState{Data: d.state.Data, Err: err})
}

func (d *Document) set(s DocState) {
	d.state = s
	if d.onChange != nil {
		d.onChange(s)
	}
}
