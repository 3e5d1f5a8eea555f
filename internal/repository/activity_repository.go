package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/model"
)

// ActivityRepository keeps the bounded recent-activity log, newest first
type ActivityRepository struct {
	kv         database.KV
	key        string
	maxEntries int
	mu         sync.Mutex
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(kv database.KV, prefix string, maxEntries int) *ActivityRepository {
	if maxEntries <= 0 {
		maxEntries = 10
	}
	return &ActivityRepository{kv: kv, key: prefix + KeyRecentActivity, maxEntries: maxEntries}
}

// List returns the stored entries, newest first
func (r *ActivityRepository) List(ctx context.Context) ([]model.Activity, error) {
	var entries []model.Activity
	err := getJSON(ctx, r.kv, r.key, &entries)
	if errors.Is(err, ErrNotFound) {
		return []model.Activity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	return entries, nil
}

// Append prepends an entry and drops the oldest beyond the bound
func (r *ActivityRepository) Append(ctx context.Context, entry model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.List(ctx)
	if err != nil {
		return err
	}

	entries = append([]model.Activity{entry}, entries...)
	if len(entries) > r.maxEntries {
		entries = entries[:r.maxEntries]
	}

	if err := putJSON(ctx, r.kv, r.key, entries); err != nil {
		return fmt.Errorf("failed to save activity: %w", err)
	}
	return nil
}
