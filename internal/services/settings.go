package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// SettingsPath is the locator of the platform settings record.
var SettingsPath = store.Join(store.CollectionSettings, "platform")

var settingsCacheKey = CacheKey("settings", "platform")

type Settings struct {
	store  Store
	cache  *CacheService
	logger *zap.Logger
}

func NewSettings(s Store, cache *CacheService, logger *zap.Logger) *Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settings{store: s, cache: cache, logger: logger}
}

// Get returns the platform settings, or the defaults when none were saved.
// Everyone may read them, so the read runs as the system.
func (s *Settings) Get(ctx context.Context) (models.PlatformSettings, error) {
	var out models.PlatformSettings
	if hit, err := s.cache.Get(ctx, settingsCacheKey, &out); err != nil {
		s.logger.Warn("Settings cache read failed", zap.Error(err))
	} else if hit {
		return out, nil
	}

	rec, err := s.store.GetOne(store.SystemContext(ctx), SettingsPath)
	if err != nil {
		return out, fmt.Errorf("reading settings: %w", err)
	}
	out = models.DefaultSettings()
	if rec != nil {
		if err := store.Decode(rec, &out); err != nil {
			return out, err
		}
	}
	if err := s.cache.Set(ctx, settingsCacheKey, out); err != nil {
		s.logger.Warn("Settings cache write failed", zap.Error(err))
	}
	return out, nil
}

// Update replaces the settings. Only admins pass the store rules.
func (s *Settings) Update(ctx context.Context, next models.PlatformSettings) error {
	if next.AttemptResetPrice < 0 || next.MinWithdrawal < 0 || next.CheckinReward < 0 ||
		next.TileReward < 0 || next.DailyAttemptLimit < 1 {
		return fmt.Errorf("%w: settings values must be non-negative and allow one attempt", ErrInvalidInput)
	}
	rec, err := store.RecordFrom(next)
	if err != nil {
		return err
	}
	if err := s.store.Create(ctx, SettingsPath, rec); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, settingsCacheKey); err != nil {
		s.logger.Warn("Settings cache invalidation failed", zap.Error(err))
	}
	return nil
}
