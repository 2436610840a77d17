// Package ranking orders the tasks a user is allowed to play using a
// generative ranking service, falling back to catalogue order.
package ranking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

// Candidate is the task summary sent to a Ranker.
type Candidate struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	Reward        float64 `json:"reward"`
	RequiredLevel int     `json:"requiredLevel"`
}

// Player is the user summary sent to a Ranker. Attempt counts keep the date
// they belong to, since a count only applies on that day.
type Player struct {
	Level            int                           `json:"level"`
	WalletBalance    float64                       `json:"walletBalance"`
	TaskAttempts     map[string]models.TaskAttempt `json:"taskAttempts,omitempty"`
	LastDailyCheckin *time.Time                    `json:"lastDailyCheckin,omitempty"`
}

// Ranker returns task ids in recommended order.
type Ranker interface {
	Rank(ctx context.Context, player Player, tasks []Candidate) ([]string, error)
}

type Personalizer struct {
	ranker Ranker
	logger *zap.Logger
}

// NewPersonalizer accepts a nil ranker, in which case tasks keep their order.
func NewPersonalizer(ranker Ranker, logger *zap.Logger) *Personalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Personalizer{ranker: ranker, logger: logger}
}

// Personalize returns the ids of the tasks user may play, best first. Tasks
// above the user's level are never sent to the ranker nor returned. Ranker
// failures are logged and answered with the allowed tasks in input order.
func (p *Personalizer) Personalize(ctx context.Context, user *models.UserProfile, tasks []models.Task) []string {
	level := 0
	player := Player{}
	if user != nil {
		level = user.Level
		player.Level = user.Level
		player.WalletBalance = user.WalletBalance
		player.TaskAttempts = user.TaskAttempts
		player.LastDailyCheckin = user.LastDailyCheckin
	}

	allowed := make([]Candidate, 0, len(tasks))
	fallback := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.RequiredLevel > level {
			continue
		}
		allowed = append(allowed, Candidate{
			ID:            t.ID,
			Name:          t.Name,
			Kind:          t.Kind,
			Reward:        t.Reward,
			RequiredLevel: t.RequiredLevel,
		})
		fallback = append(fallback, t.ID)
	}
	if len(allowed) == 0 || p.ranker == nil {
		return fallback
	}

	ranked, err := p.ranker.Rank(ctx, player, allowed)
	if err != nil {
		p.logger.Warn("Task ranking failed, using catalogue order", zap.Error(err))
		return fallback
	}

	known := make(map[string]bool, len(fallback))
	for _, id := range fallback {
		known[id] = true
	}
	out := make([]string, 0, len(fallback))
	for _, id := range ranked {
		if !known[id] {
			continue
		}
		known[id] = false
		out = append(out, id)
	}
	if len(out) == 0 {
		p.logger.Warn("Task ranking returned no usable ids, using catalogue order")
		return fallback
	}
	return out
}
