package live

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

func TestCollectionNilQueryHasNilData(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	col := NewCollection(context.Background(), loop, fs, events.NewBus(nil), nil)

	col.SetQuery(nil)
	assert.Zero(t, fs.count())
	assert.Nil(t, col.State().Data)
	assert.False(t, col.State().Loading)
}

func TestCollectionEmptyResultIsEmptySlice(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	col := NewCollection(context.Background(), loop, fs, events.NewBus(nil), nil)

	q := store.NewQuery("tasks")
	col.SetQuery(&q)
	assert.True(t, col.State().Loading)
	fs.sub(0).onList([]store.Record{})
	loop.RunPending()

	require.NotNil(t, col.State().Data)
	assert.Empty(t, col.State().Data)
	assert.False(t, col.State().Loading)
}

func TestCollectionEqualQueryKeepsSubscription(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	col := NewCollection(context.Background(), loop, fs, events.NewBus(nil), nil)

	q1 := store.NewQuery("submissions").Where("userId", "==", "u1").Order("createdAt", true)
	q2 := store.NewQuery("submissions").Where("userId", "==", "u1").Order("createdAt", true)
	col.SetQuery(&q1)
	col.SetQuery(&q2)
	assert.Equal(t, 1, fs.count())

	q3 := q2.WithLimit(5)
	col.SetQuery(&q3)
	assert.Equal(t, 2, fs.count())
	assert.Equal(t, 1, fs.active())
}

func TestCollectionKeepsStoreOrder(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	col := NewCollection(context.Background(), loop, fs, events.NewBus(nil), nil)

	q := store.NewQuery("tasks")
	col.SetQuery(&q)
	fs.sub(0).onList([]store.Record{{"id": "b"}, {"id": "a"}, {"id": "c"}})
	loop.RunPending()

	var ids []string
	for _, r := range col.State().Data {
		ids = append(ids, r["id"].(string))
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestCollectionDenialEmitsReadMany(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	rec := newRecorder()
	col := NewCollection(context.Background(), loop, fs, rec.bus, nil)

	q := store.NewQuery("transactions")
	col.SetQuery(&q)
	fs.sub(0).onError(models.NewPermissionError("transactions", models.OpReadMany, nil))
	loop.RunPending()

	st := col.State()
	assert.Nil(t, st.Data)
	assert.False(t, st.Loading)
	require.Len(t, rec.denied, 1)
	assert.Equal(t, "transactions", rec.denied[0].Path())
	assert.Equal(t, models.OpReadMany, rec.denied[0].Operation())
	assert.Same(t, rec.denied[0], st.Err)
}

func TestCollectionBareDenialSentinelIsEmitted(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	rec := newRecorder()
	col := NewCollection(context.Background(), loop, fs, rec.bus, nil)

	q := store.NewQuery("submissions")
	col.SetQuery(&q)
	fs.sub(0).onError(fmt.Errorf("query submissions: %w", models.ErrPermissionDenied))
	loop.RunPending()

	st := col.State()
	require.Len(t, rec.denied, 1)
	assert.Equal(t, "submissions", rec.denied[0].Path())
	assert.Equal(t, models.OpReadMany, rec.denied[0].Operation())
	assert.Same(t, rec.denied[0], st.Err)
}

func TestCollectionAgainstMemoryStoreDenial(t *testing.T) {
	loop := NewLoop()
	mem := store.NewMemory(store.NewRules(nil))
	rec := newRecorder()
	ctx := store.WithCaller(context.Background(), store.Caller{UID: "u1"})

	col := NewCollection(ctx, loop, mem, rec.bus, nil)
	q := store.NewQuery("transactions")
	col.SetQuery(&q)
	loop.RunPending()

	require.Len(t, rec.denied, 1, "store denial is emitted exactly once")
	assert.Equal(t, models.OpReadMany, rec.denied[0].Operation())

	own := store.NewQuery("transactions").Where("userId", "==", "u1")
	col.SetQuery(&own)
	loop.RunPending()
	assert.NoError(t, col.State().Err)
	assert.NotNil(t, col.State().Data)
	col.Close()
}

func TestCollectionStaleDeliveryDropped(t *testing.T) {
	loop := NewLoop()
	fs := &fakeStore{}
	col := NewCollection(context.Background(), loop, fs, events.NewBus(nil), nil)

	qa := store.NewQuery("tasks").Where("kind", "==", "quiz")
	qb := store.NewQuery("tasks").Where("kind", "==", "manual")
	col.SetQuery(&qa)
	col.SetQuery(&qb)
	fs.sub(0).onList([]store.Record{{"id": "quiz-1"}})
	loop.RunPending()

	assert.True(t, col.State().Loading)
	assert.Nil(t, col.State().Data)
}
