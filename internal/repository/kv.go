package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sendiq/sendiq/internal/database"
)

// Persisted key names, relative to the configured prefix
const (
	KeyScheduledSends = "scheduled_sends"
	KeyRecentActivity = "recent_activity"
	KeySettings       = "settings"
	KeyOAuthToken     = "oauth_token"
)

func getJSON(ctx context.Context, kv database.KV, key string, v interface{}) error {
	raw, err := kv.GetValue(ctx, key)
	if errors.Is(err, database.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func putJSON(ctx context.Context, kv database.KV, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.PutValue(ctx, key, raw)
}
