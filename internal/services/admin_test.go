package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

func TestAdminUserManagement(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 10, 1)
	admin := f.asAdmin()

	require.NoError(t, f.admin.SetLevel(admin, "u1", 3))
	require.NoError(t, f.admin.SetRole(admin, "u1", models.RoleAdmin))
	u := f.profile("u1")
	assert.Equal(t, 3, u.Level)
	assert.True(t, u.IsAdmin())

	assert.ErrorIs(t, f.admin.SetRole(admin, "u1", "owner"), ErrInvalidInput)

	entry, err := f.admin.AdjustBalance(admin, "u1", -4, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, -4.0, entry.Amount)
	assert.Equal(t, 6.0, f.profile("u1").WalletBalance)
	_, err = f.admin.AdjustBalance(admin, "u1", -7, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	users, err := f.admin.ListUsers(admin, 10)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestNonAdminIsDenied(t *testing.T) {
	f := newFixture(t)
	f.seedUser("u1", 10, 1)
	user := f.as("u1")

	err := f.admin.SetRole(user, "u1", models.RoleAdmin)
	require.ErrorIs(t, err, models.ErrPermissionDenied)
	_, err = f.admin.ListUsers(user, 0)
	require.ErrorIs(t, err, models.ErrPermissionDenied)

	require.Len(t, f.denied, 2)
	assert.Equal(t, models.OpUpdate, f.denied[0].Operation())
	assert.Equal(t, models.RoleAdmin, f.denied[0].RequestPayload()["role"])
	assert.Equal(t, models.OpReadMany, f.denied[1].Operation())
	assert.Equal(t, models.RoleUser, f.profile("u1").Role)
}

func TestAgentsAndTasks(t *testing.T) {
	f := newFixture(t)
	admin := f.asAdmin()

	ag, err := f.admin.SaveAgent(admin, models.Agent{Name: " Ravi ", Phone: "555-0101", Active: true})
	require.NoError(t, err)
	assert.NotEmpty(t, ag.ID)
	assert.Equal(t, "Ravi", ag.Name)

	agents, err := f.admin.ListAgents(admin)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.NoError(t, f.admin.DeleteAgent(admin, ag.ID))
	agents, err = f.admin.ListAgents(admin)
	require.NoError(t, err)
	assert.Empty(t, agents)

	_, err = f.admin.SaveAgent(f.as("u1"), models.Agent{Name: "X", Phone: "1"})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	task, err := f.admin.SaveTask(admin, models.Task{Name: "Capital cities", Kind: models.TaskQuiz, Reward: 1.5, Active: true})
	require.NoError(t, err)
	tasks, err := f.play.Catalog(f.as("u1"))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	_, err = f.admin.SaveTask(admin, models.Task{Name: "x", Kind: "dance"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSettingsUpdate(t *testing.T) {
	f := newFixture(t)

	got, err := f.settings.Get(f.as("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), got)

	next := models.DefaultSettings()
	next.DailyAttemptLimit = 5
	err = f.settings.Update(f.as("u1"), next)
	require.ErrorIs(t, err, models.ErrPermissionDenied)
	require.Len(t, f.denied, 1)
	assert.Equal(t, "settings/platform", f.denied[0].Path())

	require.NoError(t, f.settings.Update(f.asAdmin(), next))
	got, err = f.settings.Get(f.as("u1"))
	require.NoError(t, err)
	assert.Equal(t, 5, got.DailyAttemptLimit)

	next.DailyAttemptLimit = 0
	assert.ErrorIs(t, f.settings.Update(f.asAdmin(), next), ErrInvalidInput)
}
