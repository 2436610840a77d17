package services

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// Play handles task attempts, attempt resets, scavenger tiles and the daily
// check-in.
type Play struct {
	store    Store
	settings *Settings
	now      Clock
	logger   *zap.Logger
}

func NewPlay(s Store, settings *Settings, now Clock, logger *zap.Logger) *Play {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Play{store: s, settings: settings, now: now, logger: logger}
}

// PlayResult is the outcome of one task attempt.
type PlayResult struct {
	Passed       bool    `json:"passed"`
	Reward       float64 `json:"reward"`
	Balance      float64 `json:"walletBalance"`
	AttemptsLeft int     `json:"attemptsLeft"`
}

func attemptsToday(u *models.UserProfile, taskID, today string) int {
	a, ok := u.TaskAttempts[taskID]
	if !ok || a.Date != today {
		return 0
	}
	return a.Count
}

// attemptsRecord returns the full attempt map with taskID set, ready for a
// top-level merge.
func attemptsRecord(u *models.UserProfile, taskID string, next models.TaskAttempt) map[string]any {
	out := make(map[string]any, len(u.TaskAttempts)+1)
	for id, a := range u.TaskAttempts {
		out[id] = map[string]any{"count": a.Count, "date": a.Date}
	}
	out[taskID] = map[string]any{"count": next.Count, "date": next.Date}
	return out
}

func (p *Play) loadTask(ctx context.Context, taskID string) (*models.Task, error) {
	rec, err := p.store.GetOne(ctx, store.Join(store.CollectionTasks, taskID))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, models.ErrNotFound
	}
	var t models.Task
	if err := store.Decode(rec, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CompleteTask records an attempt at a game task and credits the reward when
// score reaches the task's minimum.
func (p *Play) CompleteTask(ctx context.Context, uid, taskID string, score int) (*PlayResult, error) {
	if _, err := loadProfile(ctx, p.store, uid); err != nil {
		return nil, err
	}
	task, err := p.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Active {
		return nil, ErrTaskInactive
	}
	if task.Kind == models.TaskManual {
		return nil, ErrManualTask
	}
	settings, err := p.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	today := p.now.today()
	var result PlayResult
	err = p.store.RunAtomic(store.SystemContext(ctx), func(tx store.Tx) error {
		result = PlayResult{}
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		if u.Level < task.RequiredLevel {
			return ErrLevelTooLow
		}
		used := attemptsToday(u, taskID, today)
		if used >= settings.DailyAttemptLimit {
			return ErrAttemptLimit
		}

		update := store.Record{
			"taskAttempts": attemptsRecord(u, taskID, models.TaskAttempt{Count: used + 1, Date: today}),
		}
		result.AttemptsLeft = settings.DailyAttemptLimit - used - 1
		result.Balance = u.WalletBalance
		if score >= task.MinScore {
			result.Passed = true
			result.Reward = task.Reward
			result.Balance = money(u.WalletBalance + task.Reward)
			update["walletBalance"] = result.Balance
			p.reward(tx, uid, task.Reward, "task:"+taskID)
		}
		tx.Update(store.UserPath(uid), update)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *Play) reward(tx store.Tx, uid string, amount float64, reference string) {
	if amount <= 0 {
		return
	}
	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    uid,
		Kind:      models.TxReward,
		Amount:    money(amount),
		Status:    models.TxCompleted,
		Reference: reference,
		CreatedAt: p.now().UTC(),
	}
	tx.Set(store.Join(store.CollectionTransactions, entry.ID), ledgerEntry(entry))
}

// PurchaseAttemptReset pays the configured price to clear today's attempts
// at taskID. Balance check and debit happen in one optimistic transaction.
func (p *Play) PurchaseAttemptReset(ctx context.Context, uid, taskID string) (*models.Transaction, error) {
	if _, err := loadProfile(ctx, p.store, uid); err != nil {
		return nil, err
	}
	if _, err := p.loadTask(ctx, taskID); err != nil {
		return nil, err
	}
	settings, err := p.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	today := p.now.today()
	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    uid,
		Kind:      models.TxAttemptReset,
		Amount:    money(settings.AttemptResetPrice),
		Status:    models.TxCompleted,
		Reference: "task:" + taskID,
		CreatedAt: p.now().UTC(),
	}
	err = p.store.RunAtomic(store.SystemContext(ctx), func(tx store.Tx) error {
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		if u.WalletBalance < entry.Amount {
			return ErrInsufficientFunds
		}
		tx.Update(store.UserPath(uid), store.Record{
			"walletBalance": money(u.WalletBalance - entry.Amount),
			"taskAttempts":  attemptsRecord(u, taskID, models.TaskAttempt{Count: 0, Date: today}),
		})
		tx.Set(store.Join(store.CollectionTransactions, entry.ID), ledgerEntry(entry))
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("Attempt reset purchased",
		zap.String("uid", uid),
		zap.String("task", taskID),
		zap.Float64("price", entry.Amount))
	return &entry, nil
}

// VisitTile marks a scavenger tile as found and pays the tile reward once.
func (p *Play) VisitTile(ctx context.Context, uid, tileID string) (float64, error) {
	if tileID == "" {
		return 0, ErrInvalidInput
	}
	if _, err := loadProfile(ctx, p.store, uid); err != nil {
		return 0, err
	}
	settings, err := p.settings.Get(ctx)
	if err != nil {
		return 0, err
	}

	var balance float64
	err = p.store.RunAtomic(store.SystemContext(ctx), func(tx store.Tx) error {
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		if slices.Contains(u.VisitedTiles, tileID) {
			return ErrAlreadyVisited
		}
		tiles := make([]any, 0, len(u.VisitedTiles)+1)
		for _, t := range u.VisitedTiles {
			tiles = append(tiles, t)
		}
		balance = money(u.WalletBalance + settings.TileReward)
		tx.Update(store.UserPath(uid), store.Record{
			"visitedTiles":  append(tiles, tileID),
			"walletBalance": balance,
		})
		p.reward(tx, uid, settings.TileReward, "tile:"+tileID)
		return nil
	})
	return balance, err
}

// DailyCheckin pays the check-in reward once per UTC day.
func (p *Play) DailyCheckin(ctx context.Context, uid string) (float64, error) {
	if _, err := loadProfile(ctx, p.store, uid); err != nil {
		return 0, err
	}
	settings, err := p.settings.Get(ctx)
	if err != nil {
		return 0, err
	}

	now := p.now().UTC()
	today := now.Format("2006-01-02")
	var balance float64
	err = p.store.RunAtomic(store.SystemContext(ctx), func(tx store.Tx) error {
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		if u.LastDailyCheckin != nil && u.LastDailyCheckin.UTC().Format("2006-01-02") == today {
			return ErrAlreadyCheckedIn
		}
		balance = money(u.WalletBalance + settings.CheckinReward)
		tx.Update(store.UserPath(uid), store.Record{
			"lastDailyCheckin": now,
			"walletBalance":    balance,
		})
		p.reward(tx, uid, settings.CheckinReward, "checkin:"+today)
		return nil
	})
	return balance, err
}

// Catalog lists the active tasks, easiest first.
func (p *Play) Catalog(ctx context.Context) ([]models.Task, error) {
	recs, err := p.store.GetMany(ctx, store.NewQuery(store.CollectionTasks).
		Where("active", "==", true).
		Order("requiredLevel", false))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Task](recs)
}
