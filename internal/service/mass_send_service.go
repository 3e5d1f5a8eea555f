package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/events"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/model"
	"github.com/sendiq/sendiq/internal/repository"
)

// Pacing defaults
const (
	DefaultPacing = 5 * time.Millisecond
	MaxPacing     = 5 * time.Second
)

// MassSendRequest asks for an immediate send to every recipient.
// PacingMs is the delay between sends; nil selects the default.
type MassSendRequest struct {
	Recipients   []model.Recipient `json:"recipients"`
	Subject      string            `json:"subject"`
	BodyTemplate string            `json:"bodyTemplate,omitempty"`
	PacingMs     *int64            `json:"pacingMs,omitempty"`
}

// MassSendTask is a handle on a mass send running in the background
type MassSendTask struct {
	id     string
	done   chan struct{}
	result *model.MassSendResult
	err    error
}

func newMassSendTask() *MassSendTask {
	return &MassSendTask{
		id:   uuid.New().String(),
		done: make(chan struct{}),
	}
}

// ID returns the task identifier
func (t *MassSendTask) ID() string { return t.id }

// Done is closed when the task finishes
func (t *MassSendTask) Done() <-chan struct{} { return t.done }

// Result blocks until the task finishes and returns its outcome
func (t *MassSendTask) Result() (*model.MassSendResult, error) {
	<-t.done
	return t.result, t.err
}

func (t *MassSendTask) complete(result *model.MassSendResult, err error) {
	t.result = result
	t.err = err
	close(t.done)
}

// MassSendService sends one personalized message to each recipient, serially
// and best-effort: a failing recipient does not stop the rest.
type MassSendService struct {
	dispatcher  *Dispatcher
	activity    *repository.ActivityRepository
	settings    *repository.SettingsRepository
	broadcaster events.Broadcaster
	cfg         config.MassSendConfig
	log         *logger.Logger
	now         Clock
	sleep       func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

// MassSendOption customizes a MassSendService
type MassSendOption func(*MassSendService)

// WithSleep overrides how the service waits between sends
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) MassSendOption {
	return func(m *MassSendService) {
		m.sleep = sleep
	}
}

// NewMassSendService creates a new MassSendService
func NewMassSendService(
	dispatcher *Dispatcher,
	activity *repository.ActivityRepository,
	settings *repository.SettingsRepository,
	broadcaster events.Broadcaster,
	cfg config.MassSendConfig,
	log *logger.Logger,
	opts ...MassSendOption,
) *MassSendService {
	if cfg.DefaultPacing <= 0 {
		cfg.DefaultPacing = DefaultPacing
	}
	if cfg.MaxPacing <= 0 {
		cfg.MaxPacing = MaxPacing
	}
	if broadcaster == nil {
		broadcaster = events.Discard{}
	}

	m := &MassSendService{
		dispatcher:  dispatcher,
		activity:    activity,
		settings:    settings,
		broadcaster: broadcaster,
		cfg:         cfg,
		log:         log.WithComponent("mass_send"),
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start validates req, checks the auto-intercept setting and runs the send in the
// background. The returned task completes when every recipient has been attempted.
func (m *MassSendService) Start(ctx context.Context, req MassSendRequest) (*MassSendTask, error) {
	if m.settings != nil {
		settings, err := m.settings.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		if !settings.AutoIntercept {
			return nil, ErrAutoInterceptDisabled
		}
	}

	recipients, err := resolveRecipients(req.Recipients, req.BodyTemplate)
	if err != nil {
		return nil, err
	}
	req.Recipients = recipients
	req.BodyTemplate = ""

	task := newMassSendTask()
	bg := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result, err := m.Dispatch(bg, req)
		task.complete(result, err)
	}()

	m.log.Info().Str("task_id", task.ID()).Int("recipients", len(recipients)).Msg("mass send started")
	return task, nil
}

// Wait blocks until every background task has finished
func (m *MassSendService) Wait() {
	m.wg.Wait()
}

// Dispatch sends to every recipient in order. Only a failure to obtain a credential
// aborts the batch; per-recipient failures are recorded in the result.
func (m *MassSendService) Dispatch(ctx context.Context, req MassSendRequest) (*model.MassSendResult, error) {
	recipients, err := resolveRecipients(req.Recipients, req.BodyTemplate)
	if err != nil {
		return nil, err
	}
	pacing := m.pacing(req.PacingMs)

	sess, err := m.dispatcher.open(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("mass send aborted")
		m.record(ctx, req.Subject, len(recipients), false)
		m.broadcaster.Broadcast(ctx, events.New(events.TypeMassSendFailed, map[string]string{"error": err.Error()}))
		return nil, err
	}

	results := make([]model.SendResult, 0, len(recipients))
	for i, r := range recipients {
		res := model.SendResult{Email: r.Email}
		id, err := m.dispatcher.send(ctx, sess, r, req.Subject)
		if err != nil {
			res.Error = err.Error()
			m.log.Warn().Err(err).Str("email", r.Email).Msg("send failed")
		} else {
			res.Success = true
			res.MessageID = id
		}
		results = append(results, res)

		if i < len(recipients)-1 && pacing > 0 {
			if err := m.sleep(ctx, pacing); err != nil {
				m.log.Debug().Err(err).Msg("pacing interrupted")
			}
		}
	}

	result := model.NewMassSendResult(results)
	m.log.Info().
		Int("total", result.TotalRecipients).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("mass send completed")

	m.record(ctx, req.Subject, len(recipients), true)
	m.broadcaster.Broadcast(ctx, events.New(events.TypeMassSendCompleted, result))
	return result, nil
}

// pacing clamps the requested delay into [0, MaxPacing]
func (m *MassSendService) pacing(ms *int64) time.Duration {
	if ms == nil {
		return m.cfg.DefaultPacing
	}
	d := time.Duration(*ms) * time.Millisecond
	switch {
	case d < 0:
		return 0
	case d > m.cfg.MaxPacing:
		return m.cfg.MaxPacing
	}
	return d
}

func (m *MassSendService) record(ctx context.Context, subject string, count int, success bool) {
	if m.activity == nil {
		return
	}
	err := m.activity.Append(ctx, model.Activity{
		Subject:        subject,
		RecipientCount: count,
		Success:        success,
		Timestamp:      m.now().UnixMilli(),
		Source:         model.ActivitySourceMassSend,
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to record activity")
	}
}
