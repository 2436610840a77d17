package live

import (
	"context"
	"errors"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// CollectionState is the state of a Collection binding. Data is nil while no
// query is bound and an empty slice when the query matches nothing.
type CollectionState = State[[]store.Record]

// Collection keeps the result of a query in sync with the store. All methods
// must be called on the owning Loop.
type Collection struct {
	ctx      context.Context
	loop     *Loop
	store    store.Store
	bus      *events.Bus
	onChange func(CollectionState)

	query  *store.Query
	gen    uint64
	unsub  store.Unsubscribe
	failed bool
	closed bool
	state  CollectionState
}

func NewCollection(ctx context.Context, loop *Loop, s store.Store, bus *events.Bus, onChange func(CollectionState)) *Collection {
	return &Collection{ctx: ctx, loop: loop, store: s, bus: bus, onChange: onChange}
}

func (c *Collection) State() CollectionState { return c.state }

// Query returns the bound query, or nil.
func (c *Collection) Query() *store.Query { return c.query }

// SetQuery rebinds the collection. Queries are compared by value, so a new
// but equal query keeps the existing subscription. nil unbinds.
func (c *Collection) SetQuery(q *store.Query) {
	if c.closed {
		return
	}
	if sameQuery(c.query, q) && !c.failed {
		return
	}
	c.release()
	c.failed = false

	if q == nil {
		c.query = nil
		c.set(CollectionState{})
		return
	}
	bound := *q
	c.query = &bound

	c.set(CollectionState{Data: c.state.Data, Loading: true})
	gen := c.gen
	c.unsub = c.store.SubscribeMany(c.ctx, bound,
		func(recs []store.Record) {
			out := make([]store.Record, 0, len(recs))
			for _, rec := range recs {
				id, _ := rec["id"].(string)
				out = append(out, NormalizeRecord(id, rec))
			}
			c.loop.Post(func() { c.deliver(gen, out) })
		},
		func(err error) {
			c.loop.Post(func() { c.fail(gen, err) })
		},
	)
}

func (c *Collection) Close() {
	if c.closed {
		return
	}
	c.release()
	c.closed = true
}

func sameQuery(a, b *store.Query) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (c *Collection) release() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.gen++
}

func (c *Collection) deliver(gen uint64, recs []store.Record) {
	if c.closed || gen != c.gen {
		return
	}
	c.set(CollectionState{Data: recs})
}

func (c *Collection) fail(gen uint64, err error) {
	if c.closed || gen != c.gen {
		return
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.failed = true

	if errors.Is(err, models.ErrPermissionDenied) {
		permErr := models.NewPermissionError(c.query.Collection, models.OpReadMany, nil)
		err = permErr
		c.bus.Emit(events.TopicPermissionError, permErr)
	}
	c.set(CollectionState{Data: c.state.Data, Err: err})
}

func (c *Collection) set(s CollectionState) {
	c.state = s
	if c.onChange != nil {
		c.onChange(s)
	}
}
