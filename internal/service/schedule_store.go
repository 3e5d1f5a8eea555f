package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sendiq/sendiq/internal/events"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/model"
	"github.com/sendiq/sendiq/internal/repository"
)

// ScheduleStore owns the in-memory set of pending scheduled sends. Every mutation
// persists the full snapshot and then broadcasts it.
type ScheduleStore struct {
	repo        *repository.ScheduledSendRepository
	broadcaster events.Broadcaster
	log         *logger.Logger

	mu      sync.Mutex
	entries []model.ScheduledSend
}

// NewScheduleStore creates a new ScheduleStore
func NewScheduleStore(repo *repository.ScheduledSendRepository, broadcaster events.Broadcaster, log *logger.Logger) *ScheduleStore {
	if broadcaster == nil {
		broadcaster = events.Discard{}
	}
	return &ScheduleStore{
		repo:        repo,
		broadcaster: broadcaster,
		log:         log.WithComponent("schedule_store"),
		entries:     []model.ScheduledSend{},
	}
}

// Load replaces the in-memory set with what is persisted
func (s *ScheduleStore) Load(ctx context.Context) error {
	entries, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled sends: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.log.Info().Int("count", len(entries)).Msg("loaded scheduled sends")
	return nil
}

// Snapshot returns a copy of the pending set in insertion order
func (s *ScheduleStore) Snapshot() []model.ScheduledSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneScheduledSends(s.entries)
}

// Len returns the number of pending entries
func (s *ScheduleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Add appends entry. If persisting fails the in-memory set is rolled back.
func (s *ScheduleStore) Add(ctx context.Context, entry model.ScheduledSend) error {
	return s.mutate(ctx, true, func(entries []model.ScheduledSend) ([]model.ScheduledSend, bool) {
		return append(entries, entry.Clone()), true
	})
}

// Clear empties the pending set. The in-memory set stays cleared even if persisting fails.
func (s *ScheduleStore) Clear(ctx context.Context) error {
	return s.mutate(ctx, false, func(entries []model.ScheduledSend) ([]model.ScheduledSend, bool) {
		return []model.ScheduledSend{}, true
	})
}

// Due returns copies of the entries not already marked failed whose send time is at
// or before cutoff.
func (s *ScheduleStore) Due(cutoff int64) []model.ScheduledSend {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []model.ScheduledSend
	for _, e := range s.entries {
		if !e.Failed && e.SendAt <= cutoff {
			due = append(due, e.Clone())
		}
	}
	return due
}

// Remove drops the entries with the given ids. Unknown ids are ignored. A persist
// failure is returned but the entries stay dropped; the next mutation writes the
// full snapshot again.
func (s *ScheduleStore) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	return s.mutate(ctx, false, func(entries []model.ScheduledSend) ([]model.ScheduledSend, bool) {
		kept := make([]model.ScheduledSend, 0, len(entries))
		for _, e := range entries {
			if _, ok := drop[e.ID]; !ok {
				kept = append(kept, e)
			}
		}
		return kept, true
	})
}

// RemoveBefore drops every entry whose send time is strictly before cutoff and
// returns how many were dropped. Nothing is persisted when nothing matched, and
// dropped entries stay dropped when persisting fails.
func (s *ScheduleStore) RemoveBefore(ctx context.Context, cutoff int64) (int, error) {
	removed := 0
	err := s.mutate(ctx, false, func(entries []model.ScheduledSend) ([]model.ScheduledSend, bool) {
		kept := make([]model.ScheduledSend, 0, len(entries))
		for _, e := range entries {
			if e.SendAt < cutoff {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		return kept, removed > 0
	})
	return removed, err
}

// mutate applies fn under the lock and persists the result. The lock is held across
// the write so persisted snapshots land in mutation order; the broadcast happens after
// it is released. With rollback set, a failed write restores the previous set;
// otherwise the in-memory set keeps the change and the error is returned.
func (s *ScheduleStore) mutate(ctx context.Context, rollback bool, fn func([]model.ScheduledSend) ([]model.ScheduledSend, bool)) error {
	s.mu.Lock()
	previous := s.entries
	next, changed := fn(model.CloneScheduledSends(previous))
	if !changed {
		s.mu.Unlock()
		return nil
	}

	var persistErr error
	if err := s.repo.Save(ctx, next); err != nil {
		if rollback {
			s.entries = previous
			s.mu.Unlock()
			return fmt.Errorf("failed to persist scheduled sends: %w", err)
		}
		persistErr = fmt.Errorf("failed to persist scheduled sends: %w", err)
	}
	s.entries = next
	snapshot := model.CloneScheduledSends(next)
	s.mu.Unlock()

	s.broadcaster.Broadcast(ctx, events.New(events.TypeScheduledSetChanged, snapshot))
	return persistErr
}
