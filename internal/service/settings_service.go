package service

import (
	"context"
	"errors"
	"sync"

	"mlm_shop/internal/domain"
	"mlm_shop/internal/logger"
)

// SettingsSource loads the active settlement settings row.
type SettingsSource interface {
	GetActive(ctx context.Context) (*domain.SettlementSettings, error)
}

// SettingsService hands out an immutable settings snapshot. Refresh is an
// explicit call; nothing mutates the snapshot behind a caller's back.
type SettingsService struct {
	source SettingsSource

	mu       sync.RWMutex
	snapshot *domain.SettlementSettings
}

func NewSettingsService(source SettingsSource) *SettingsService {
	return &SettingsService{source: source}
}

// Snapshot returns the current settings, loading them on first use.
// Falls back to the documented defaults when no active row exists.
func (s *SettingsService) Snapshot(ctx context.Context) (*domain.SettlementSettings, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return s.Refresh(ctx)
}

// Refresh re-reads the active settings row and swaps the snapshot.
func (s *SettingsService) Refresh(ctx context.Context) (*domain.SettlementSettings, error) {
	loaded, err := s.source.GetActive(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		logger.Warn("no active settlement settings, using defaults")
		loaded = domain.DefaultSettings()
	}

	s.mu.Lock()
	s.snapshot = loaded
	s.mu.Unlock()

	logger.Info("settlement settings loaded", "version", loaded.Version)
	return loaded, nil
}
