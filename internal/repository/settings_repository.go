package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/model"
)

// SettingsRepository stores user preferences
type SettingsRepository struct {
	kv       database.KV
	key      string
	defaults model.Settings
}

// NewSettingsRepository creates a new SettingsRepository returning defaults until settings are saved
func NewSettingsRepository(kv database.KV, prefix string, defaults model.Settings) *SettingsRepository {
	return &SettingsRepository{kv: kv, key: prefix + KeySettings, defaults: defaults}
}

// Get returns the current settings snapshot
func (r *SettingsRepository) Get(ctx context.Context) (model.Settings, error) {
	settings := r.defaults
	err := getJSON(ctx, r.kv, r.key, &settings)
	if errors.Is(err, ErrNotFound) {
		return r.defaults, nil
	}
	if err != nil {
		return r.defaults, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// Save replaces the stored settings
func (r *SettingsRepository) Save(ctx context.Context, settings model.Settings) error {
	if err := putJSON(ctx, r.kv, r.key, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
