package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

func TestEmitRunsListenersInOrder(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	bus.On(TopicPermissionError, func(*models.PermissionError) { got = append(got, "a") })
	bus.On(TopicPermissionError, func(*models.PermissionError) { got = append(got, "b") })
	bus.On("other", func(*models.PermissionError) { got = append(got, "other") })

	bus.Emit(TopicPermissionError, models.NewPermissionError("users/u1", models.OpReadOne, nil))

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEmitWithoutListenersIsDropped(t *testing.T) {
	bus := NewBus(nil)
	bus.Emit(TopicPermissionError, models.NewPermissionError("tasks", models.OpReadMany, nil))

	var calls int
	bus.On(TopicPermissionError, func(*models.PermissionError) { calls++ })
	assert.Zero(t, calls, "earlier emission must not be replayed")
}

func TestOffRemovesListener(t *testing.T) {
	bus := NewBus(nil)
	var calls int
	id := bus.On(TopicPermissionError, func(*models.PermissionError) { calls++ })
	bus.Off(TopicPermissionError, id)
	bus.Off(TopicPermissionError, id)

	bus.Emit(TopicPermissionError, models.NewPermissionError("users/u1", models.OpUpdate, nil))
	assert.Zero(t, calls)
	assert.Zero(t, bus.Listeners(TopicPermissionError))
}

func TestListenerRemovingItselfDuringEmission(t *testing.T) {
	bus := NewBus(nil)
	permErr := models.NewPermissionError("users/u1", models.OpReadOne, nil)

	var first, second []*models.PermissionError
	var firstID ListenerID
	firstID = bus.On(TopicPermissionError, func(e *models.PermissionError) {
		first = append(first, e)
		bus.Off(TopicPermissionError, firstID)
	})
	bus.On(TopicPermissionError, func(e *models.PermissionError) {
		second = append(second, e)
	})

	bus.Emit(TopicPermissionError, permErr)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Same(t, permErr, second[0])

	bus.Emit(TopicPermissionError, permErr)
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}

func TestListenerAddedDuringEmissionWaitsForNextEvent(t *testing.T) {
	bus := NewBus(nil)
	var late int
	bus.On(TopicPermissionError, func(*models.PermissionError) {
		bus.On(TopicPermissionError, func(*models.PermissionError) { late++ })
	})

	bus.Emit(TopicPermissionError, models.NewPermissionError("tasks", models.OpReadMany, nil))
	assert.Zero(t, late)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	bus := NewBus(nil)
	var reached bool
	bus.On(TopicPermissionError, func(*models.PermissionError) { panic("boom") })
	bus.On(TopicPermissionError, func(*models.PermissionError) { reached = true })

	require.NotPanics(t, func() {
		bus.Emit(TopicPermissionError, models.NewPermissionError("agents/a1", models.OpDelete, nil))
	})
	assert.True(t, reached)
}
