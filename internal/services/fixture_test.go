package services

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

type fixture struct {
	t      *testing.T
	mem    *store.Memory
	guard  *store.Guard
	denied []*models.PermissionError
	now    time.Time

	settings    *Settings
	wallet      *Wallet
	play        *Play
	submissions *Submissions
	admin       *Admin
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:   t,
		mem: store.NewMemory(store.NewRules(nil)),
		now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	bus := events.NewBus(nil)
	bus.On(events.TopicPermissionError, func(err *models.PermissionError) { f.denied = append(f.denied, err) })
	f.guard = store.NewGuard(f.mem, bus)
	f.mem.SetClock(func() time.Time { return f.now })

	clock := Clock(func() time.Time { return f.now })
	cipher, err := utils.NewCipher(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32))))
	require.NoError(t, err)

	f.settings = NewSettings(f.guard, NewCacheService(nil, 0), nil)
	f.wallet = NewWallet(f.guard, f.settings, cipher, clock, nil)
	f.play = NewPlay(f.guard, f.settings, clock, nil)
	f.submissions = NewSubmissions(f.guard, f.play, clock, nil)
	f.admin = NewAdmin(f.guard, clock, nil)
	return f
}

func (f *fixture) as(uid string) context.Context {
	return store.WithCaller(context.Background(), store.Caller{UID: uid, Email: uid + "@example.com", Role: models.RoleUser})
}

func (f *fixture) asAdmin() context.Context {
	return store.WithCaller(context.Background(), store.Caller{UID: "root", Email: "root@example.com", Role: models.RoleAdmin})
}

func (f *fixture) sys() context.Context {
	return store.SystemContext(context.Background())
}

func (f *fixture) seedUser(uid string, balance float64, level int) {
	f.t.Helper()
	require.NoError(f.t, f.mem.Create(f.sys(), store.UserPath(uid), store.Record{
		"name": uid, "role": models.RoleUser, "level": level, "walletBalance": balance,
	}))
}

func (f *fixture) seedTask(id, kind string, reward float64, level, minScore int) {
	f.t.Helper()
	require.NoError(f.t, f.mem.Create(f.sys(), store.Join(store.CollectionTasks, id), store.Record{
		"name": id, "kind": kind, "reward": reward, "requiredLevel": level, "minScore": minScore, "active": true,
	}))
}

func (f *fixture) profile(uid string) models.UserProfile {
	f.t.Helper()
	rec, err := f.mem.GetOne(f.sys(), store.UserPath(uid))
	require.NoError(f.t, err)
	require.NotNil(f.t, rec)
	var u models.UserProfile
	require.NoError(f.t, store.Decode(rec, &u))
	return u
}

func (f *fixture) ledger(uid string) []models.Transaction {
	f.t.Helper()
	recs, err := store.GetMany(f.sys(), f.mem, store.NewQuery(store.CollectionTransactions).
		Where("userId", "==", uid).Order("createdAt", false))
	require.NoError(f.t, err)
	txs, err := decodeAll[models.Transaction](recs)
	require.NoError(f.t, err)
	return txs
}
