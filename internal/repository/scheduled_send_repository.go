package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/model"
)

// ScheduledSendRepository persists the full scheduled-send snapshot under one key
type ScheduledSendRepository struct {
	kv  database.KV
	key string
}

// NewScheduledSendRepository creates a new ScheduledSendRepository
func NewScheduledSendRepository(kv database.KV, prefix string) *ScheduledSendRepository {
	return &ScheduledSendRepository{kv: kv, key: prefix + KeyScheduledSends}
}

// Load returns the stored snapshot; absence of stored data is an empty snapshot
func (r *ScheduledSendRepository) Load(ctx context.Context) ([]model.ScheduledSend, error) {
	var sends []model.ScheduledSend
	err := getJSON(ctx, r.kv, r.key, &sends)
	if errors.Is(err, ErrNotFound) {
		return []model.ScheduledSend{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled sends: %w", err)
	}
	if sends == nil {
		sends = []model.ScheduledSend{}
	}
	return sends, nil
}

// Save overwrites the stored snapshot
func (r *ScheduledSendRepository) Save(ctx context.Context, sends []model.ScheduledSend) error {
	if sends == nil {
		sends = []model.ScheduledSend{}
	}
	if err := putJSON(ctx, r.kv, r.key, sends); err != nil {
		return fmt.Errorf("failed to save scheduled sends: %w", err)
	}
	return nil
}
