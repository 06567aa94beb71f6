package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/foxzi/walink/internal/models"
)

// settingsID is the fixed key of the singleton rotation settings row
const settingsID = 1

type SettingsRepository struct {
	db              DBTX
	defaultStrategy models.Strategy
}

// NewSettingsRepository creates the settings store. defaultStrategy seeds the
// row on first access and falls back to round-robin when invalid.
func NewSettingsRepository(db DBTX, defaultStrategy models.Strategy) *SettingsRepository {
	if !defaultStrategy.Valid() {
		defaultStrategy = models.StrategyRoundRobin
	}
	return &SettingsRepository{db: db, defaultStrategy: defaultStrategy}
}

// Get returns the rotation settings, creating the default row if absent
func (r *SettingsRepository) Get(ctx context.Context) (*models.RotationSettings, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rotation_settings (id, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		settingsID, string(r.defaultStrategy), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create default settings: %w", err)
	}
	return r.load(ctx)
}

// Set validates and stores the global strategy. Invalid input leaves the
// stored settings unchanged.
func (r *SettingsRepository) Set(ctx context.Context, strategy string) (*models.RotationSettings, error) {
	s, err := models.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rotation_settings (id, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET strategy = excluded.strategy, updated_at = excluded.updated_at`,
		settingsID, string(s), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return r.load(ctx)
}

func (r *SettingsRepository) load(ctx context.Context) (*models.RotationSettings, error) {
	rs := &models.RotationSettings{}
	var strategy string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, strategy, created_at, updated_at FROM rotation_settings WHERE id = ?", settingsID,
	).Scan(&rs.ID, &strategy, &rs.CreatedAt, &rs.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	rs.Strategy = models.Strategy(strategy)
	return rs, nil
}
