package store

import (
	"context"
	"errors"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

// Guard makes every permission denial of a one-shot operation a
// *PermissionError and, when a bus is set, emits it before returning it.
// Subscriptions pass through: the live bindings emit their own denials so
// each is reported exactly once.
type Guard struct {
	Store
	bus *events.Bus
}

// NewGuard wraps s. bus may be nil when the caller reports denials itself.
func NewGuard(s Store, bus *events.Bus) *Guard {
	return &Guard{Store: s, bus: bus}
}

func (g *Guard) GetOne(ctx context.Context, path string) (Record, error) {
	rec, err := g.Store.GetOne(ctx, path)
	return rec, g.route(err, path, models.OpReadOne, nil)
}

// GetMany reads a query once; a denial is emitted as read-many on the collection.
func (g *Guard) GetMany(ctx context.Context, q Query) ([]Record, error) {
	recs, err := GetMany(ctx, g.Store, q)
	return recs, g.route(err, q.Collection, models.OpReadMany, nil)
}

func (g *Guard) Create(ctx context.Context, path string, value Record) error {
	return g.route(g.Store.Create(ctx, path, value), path, models.OpCreate, value)
}

func (g *Guard) Update(ctx context.Context, path string, partial Record) error {
	return g.route(g.Store.Update(ctx, path, partial), path, models.OpUpdate, partial)
}

func (g *Guard) Delete(ctx context.Context, path string) error {
	return g.route(g.Store.Delete(ctx, path), path, models.OpDelete, nil)
}

func (g *Guard) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	return g.route(g.Store.RunAtomic(ctx, fn), "", models.OpWrite, nil)
}

func (g *Guard) BatchWrite(ctx context.Context, ops []WriteOp) error {
	return g.route(g.Store.BatchWrite(ctx, ops), "", models.OpWrite, nil)
}

// route emits denials on the bus. Stores already return *PermissionError; a
// bare ErrPermissionDenied is upgraded using the call's path and operation.
func (g *Guard) route(err error, path string, op models.Operation, value Record) error {
	if err == nil || !errors.Is(err, models.ErrPermissionDenied) {
		return err
	}
	var permErr *models.PermissionError
	if !errors.As(err, &permErr) {
		permErr = models.NewPermissionError(path, op, payload(value))
		err = permErr
	}
	if g.bus != nil {
		g.bus.Emit(events.TopicPermissionError, permErr)
	}
	return err
}
