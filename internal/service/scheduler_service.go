package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/model"
	"github.com/sendiq/sendiq/internal/repository"
)

// Scheduler defaults
const (
	DefaultDueCheckInterval = 30 * time.Second
	DefaultCleanupInterval  = 5 * time.Minute
	DefaultStaleAfter       = time.Hour
	DefaultMinLeadTime      = time.Minute
	DefaultEarlyAdmission   = 59999 * time.Millisecond
)

const scheduledIDSuffixLen = 9

// ScheduleRequest asks for a deferred delivery. SendAt is epoch milliseconds.
type ScheduleRequest struct {
	Recipients    []model.Recipient `json:"recipients"`
	Subject       string            `json:"subject"`
	BodyTemplate  string            `json:"bodyTemplate,omitempty"`
	SendAt        int64             `json:"sendAt"`
	CorrelationID string            `json:"correlationId,omitempty"`
}

// SchedulerService accepts scheduled sends and dispatches them from two
// periodic loops: a due-check and a stale-entry cleanup.
type SchedulerService struct {
	store      *ScheduleStore
	dispatcher *Dispatcher
	activity   *repository.ActivityRepository
	cfg        config.SchedulerConfig
	log        *logger.Logger
	now        Clock

	// serializes due-check runs so an entry is never dispatched twice
	tickMu sync.Mutex
}

// SchedulerOption customizes a SchedulerService
type SchedulerOption func(*SchedulerService)

// WithClock overrides the scheduler's time source
func WithClock(now Clock) SchedulerOption {
	return func(s *SchedulerService) {
		s.now = now
	}
}

// NewSchedulerService creates a new SchedulerService
func NewSchedulerService(
	store *ScheduleStore,
	dispatcher *Dispatcher,
	activity *repository.ActivityRepository,
	cfg config.SchedulerConfig,
	log *logger.Logger,
	opts ...SchedulerOption,
) *SchedulerService {
	if cfg.DueCheckInterval <= 0 {
		cfg.DueCheckInterval = DefaultDueCheckInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.MinLeadTime <= 0 {
		cfg.MinLeadTime = DefaultMinLeadTime
	}
	if cfg.EarlyAdmission <= 0 {
		cfg.EarlyAdmission = DefaultEarlyAdmission
	}

	s := &SchedulerService{
		store:      store,
		dispatcher: dispatcher,
		activity:   activity,
		cfg:        cfg,
		log:        log.WithComponent("scheduler"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the persisted set and purges anything already stale
func (s *SchedulerService) Start(ctx context.Context) error {
	if err := s.store.Load(ctx); err != nil {
		return err
	}
	s.Cleanup(ctx)
	return nil
}

// Run drives the due-check and cleanup loops until ctx is cancelled
func (s *SchedulerService) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.every(gctx, "due_check", s.cfg.DueCheckInterval, s.CheckDue)
	})
	g.Go(func() error {
		return s.every(gctx, "cleanup", s.cfg.CleanupInterval, func(ctx context.Context) {
			s.Cleanup(ctx)
		})
	})

	s.log.Info().
		Dur("due_check_interval", s.cfg.DueCheckInterval).
		Dur("cleanup_interval", s.cfg.CleanupInterval).
		Msg("scheduler started")

	err := g.Wait()
	s.log.Info().Msg("scheduler stopped")
	return err
}

func (s *SchedulerService) every(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.safeTick(ctx, name, tick)
		}
	}
}

// safeTick keeps a panicking tick from taking the loop down
func (s *SchedulerService) safeTick(ctx context.Context, name string, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("tick", name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("scheduler tick panicked")
		}
	}()
	tick(ctx)
}

// Schedule validates req and adds it to the pending set
func (s *SchedulerService) Schedule(ctx context.Context, req ScheduleRequest) (*model.ScheduledSend, error) {
	recipients, err := resolveRecipients(req.Recipients, req.BodyTemplate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if req.SendAt <= now.Add(s.cfg.MinLeadTime).UnixMilli() {
		return nil, ErrSendTimeTooSoon
	}

	entry := model.ScheduledSend{
		ID:            newScheduledID(now),
		Recipients:    recipients,
		Subject:       req.Subject,
		SendAt:        req.SendAt,
		CreatedAt:     now.UnixMilli(),
		CorrelationID: req.CorrelationID,
	}
	if err := s.store.Add(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("id", entry.ID).
		Int("recipients", len(entry.Recipients)).
		Time("send_at", time.UnixMilli(entry.SendAt)).
		Msg("send scheduled")
	return &entry, nil
}

// List returns the pending set
func (s *SchedulerService) List() []model.ScheduledSend {
	return s.store.Snapshot()
}

// CancelAll discards every pending entry. Dispatches already under way finish.
func (s *SchedulerService) CancelAll(ctx context.Context) error {
	n := s.store.Len()
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.log.Info().Int("count", n).Msg("scheduled sends cleared")
	return nil
}

// CheckDue dispatches every entry whose time has come. Each entry is removed after
// its attempt regardless of outcome.
func (s *SchedulerService) CheckDue(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	// In-flight dispatches and their bookkeeping outlive shutdown
	ctx = context.WithoutCancel(ctx)

	now := s.now().UnixMilli()
	due := s.store.Due(now + s.cfg.EarlyAdmission.Milliseconds())
	if len(due) == 0 {
		return
	}
	s.log.Info().Int("count", len(due)).Msg("found scheduled sends in due window")

	processed := make([]string, 0, len(due))
	for _, entry := range due {
		if entry.SendAt > now {
			s.log.Debug().Str("id", entry.ID).Int64("ms_remaining", entry.SendAt-now).Msg("not yet due")
			continue
		}

		if err := s.dispatch(ctx, entry); err != nil {
			entry.Failed = true
			entry.Error = err.Error()
			s.log.Error().Err(err).Str("id", entry.ID).Msg("scheduled send failed")
		} else {
			s.log.Info().Str("id", entry.ID).Int("recipients", len(entry.Recipients)).Msg("scheduled send dispatched")
		}

		processed = append(processed, entry.ID)
		s.record(ctx, entry)
	}

	if err := s.store.Remove(ctx, processed); err != nil {
		s.log.Error().Err(err).Strs("ids", processed).Msg("failed to remove processed scheduled sends")
	}
}

// dispatch sends entry to every recipient in order and stops at the first failure
func (s *SchedulerService) dispatch(ctx context.Context, entry model.ScheduledSend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()

	sess, err := s.dispatcher.open(ctx)
	if err != nil {
		return err
	}
	for _, r := range entry.Recipients {
		if _, err := s.dispatcher.send(ctx, sess, r, entry.Subject); err != nil {
			return fmt.Errorf("send to %s: %w", r.Email, err)
		}
	}
	return nil
}

func (s *SchedulerService) record(ctx context.Context, entry model.ScheduledSend) {
	if s.activity == nil {
		return
	}
	err := s.activity.Append(ctx, model.Activity{
		Subject:        entry.Subject,
		RecipientCount: len(entry.Recipients),
		Success:        !entry.Failed,
		Timestamp:      s.now().UnixMilli(),
		Source:         model.ActivitySourceScheduled,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to record activity")
	}
}

// Cleanup purges entries that have been overdue for longer than the stale horizon
func (s *SchedulerService) Cleanup(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.StaleAfter).UnixMilli()
	removed, err := s.store.RemoveBefore(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Int("count", removed).Msg("failed to persist stale cleanup")
	}
	if removed > 0 {
		s.log.Info().Int("count", removed).Msg("purged stale scheduled sends")
	}
	return removed
}

func newScheduledID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:scheduledIDSuffixLen]
	return fmt.Sprintf("scheduled-%d-%s", now.UnixMilli(), suffix)
}
