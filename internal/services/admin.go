package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// Admin groups the user, agent and task management operations of the admin
// dashboard. Every call runs with the caller's rights.
type Admin struct {
	store  Store
	now    Clock
	logger *zap.Logger
}

func NewAdmin(s Store, now Clock, logger *zap.Logger) *Admin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{store: s, now: now, logger: logger}
}

func (a *Admin) ListUsers(ctx context.Context, limit int) ([]models.UserProfile, error) {
	q := store.NewQuery(store.CollectionUsers).Order("createdAt", true)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	recs, err := a.store.GetMany(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.UserProfile](recs)
}

func (a *Admin) SetRole(ctx context.Context, uid, role string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return a.store.Update(ctx, store.UserPath(uid), store.Record{"role": role})
}

func (a *Admin) SetLevel(ctx context.Context, uid string, level int) error {
	if level < 0 {
		return fmt.Errorf("%w: level must be non-negative", ErrInvalidInput)
	}
	return a.store.Update(ctx, store.UserPath(uid), store.Record{"level": level})
}

// AdjustBalance adds delta (which may be negative) to a wallet and records
// an adjustment. The balance never goes below zero.
func (a *Admin) AdjustBalance(ctx context.Context, uid string, delta float64, note string) (*models.Transaction, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	entry := models.Transaction{
		ID:        uuid.NewString(),
		UserID:    uid,
		Kind:      models.TxAdjustment,
		Amount:    money(delta),
		Status:    models.TxCompleted,
		Reference: strings.TrimSpace(note),
		CreatedAt: a.now().UTC(),
	}
	err := a.store.RunAtomic(ctx, func(tx store.Tx) error {
		u, err := txProfile(tx, uid)
		if err != nil {
			return err
		}
		next := money(u.WalletBalance + delta)
		if next < 0 {
			return ErrInsufficientFunds
		}
		tx.Update(store.UserPath(uid), store.Record{"walletBalance": next})
		tx.Set(store.Join(store.CollectionTransactions, entry.ID), ledgerEntry(entry))
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Wallet adjusted",
		zap.String("uid", uid),
		zap.Float64("delta", entry.Amount))
	return &entry, nil
}

func (a *Admin) ListAgents(ctx context.Context) ([]models.Agent, error) {
	recs, err := a.store.GetMany(ctx, store.NewQuery(store.CollectionAgents).Order("name", false))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Agent](recs)
}

// SaveAgent creates an agent when ag.ID is empty and replaces it otherwise.
func (a *Admin) SaveAgent(ctx context.Context, ag models.Agent) (*models.Agent, error) {
	ag.Name = strings.TrimSpace(ag.Name)
	ag.Phone = strings.TrimSpace(ag.Phone)
	if ag.Name == "" || ag.Phone == "" {
		return nil, fmt.Errorf("%w: agent name and phone are required", ErrInvalidInput)
	}
	if ag.ID == "" {
		ag.ID = uuid.NewString()
		ag.CreatedAt = a.now().UTC()
	}
	rec, err := store.RecordFrom(ag)
	if err != nil {
		return nil, err
	}
	if err := a.store.Create(ctx, store.Join(store.CollectionAgents, ag.ID), rec); err != nil {
		return nil, err
	}
	return &ag, nil
}

func (a *Admin) DeleteAgent(ctx context.Context, id string) error {
	return a.store.Delete(ctx, store.Join(store.CollectionAgents, id))
}

// SaveTask creates or replaces a task in the catalogue.
func (a *Admin) SaveTask(ctx context.Context, t models.Task) (*models.Task, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" || t.Reward < 0 || t.RequiredLevel < 0 {
		return nil, fmt.Errorf("%w: task needs a name, a non-negative reward and level", ErrInvalidInput)
	}
	switch t.Kind {
	case models.TaskQuiz, models.TaskMemory, models.TaskSpeedMath, models.TaskClickHunt,
		models.TaskLogicPuzzle, models.TaskManual:
	default:
		return nil, fmt.Errorf("%w: unknown task kind %q", ErrInvalidInput, t.Kind)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
		t.CreatedAt = a.now().UTC()
	}
	rec, err := store.RecordFrom(t)
	if err != nil {
		return nil, err
	}
	if err := a.store.Create(ctx, store.Join(store.CollectionTasks, t.ID), rec); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *Admin) DeleteTask(ctx context.Context, id string) error {
	return a.store.Delete(ctx, store.Join(store.CollectionTasks, id))
}
