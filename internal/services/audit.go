package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

const (
	auditKey    = "audit:permission_denials"
	auditMaxLen = 200
)

// DenialEntry is one logged permission denial.
type DenialEntry struct {
	models.PermissionContext
	UID string    `json:"uid,omitempty"`
	At  time.Time `json:"at"`
}

// DenialAudit keeps the most recent permission denials in a capped Redis
// list. With a nil client it only logs.
type DenialAudit struct {
	client *redis.Client
	logger *zap.Logger
	now    Clock
}

func NewDenialAudit(client *redis.Client, logger *zap.Logger, now Clock) *DenialAudit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DenialAudit{client: client, logger: logger, now: now}
}

// Listener returns an error channel listener attributing denials to uid().
func (a *DenialAudit) Listener(uid func() string) events.Listener {
	return func(err *models.PermissionError) {
		a.Record(DenialEntry{PermissionContext: err.Context(), UID: uid(), At: a.now().UTC()})
	}
}

// Record logs the denial and pushes it onto the list (newest at head).
func (a *DenialAudit) Record(entry DenialEntry) {
	a.logger.Warn("Permission denied",
		zap.String("uid", entry.UID),
		zap.String("path", entry.Path),
		zap.String("operation", string(entry.Operation)))

	if a.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	pipe := a.client.Pipeline()
	pipe.LPush(ctx, auditKey, data)
	pipe.LTrim(ctx, auditKey, 0, auditMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Warn("Denial audit push failed", zap.Error(err))
	}
}

// Recent returns up to limit denials, newest first.
func (a *DenialAudit) Recent(ctx context.Context, limit int) ([]DenialEntry, error) {
	if a.client == nil {
		return []DenialEntry{}, nil
	}
	if limit <= 0 || limit > auditMaxLen {
		limit = auditMaxLen
	}
	raw, err := a.client.LRange(ctx, auditKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DenialEntry, 0, len(raw))
	for _, r := range raw {
		var e DenialEntry
		if json.Unmarshal([]byte(r), &e) != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
