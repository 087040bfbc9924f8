package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
)

// ReminderNotifier delivers one reminder to its owner. *Notifier implements it.
type ReminderNotifier interface {
	Send(ctx context.Context, rem *models.Reminder, owner *models.User) bool
}

// NotificationSweepResult counts the outcome of one notification sweep.
type NotificationSweepResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// OverdueSweepResult counts reminders moved to overdue by one sweep.
type OverdueSweepResult struct {
	Transitioned int64 `json:"transitioned"`
}

type SchedulerConfig struct {
	NotificationInterval time.Duration
	OverdueInterval      time.Duration
	// RequeryInterval of zero disables the periodic re-query.
	RequeryInterval time.Duration
	// RequeryOnStart runs the re-query sweep at startup instead of waiting
	// for the first tick.
	RequeryOnStart bool
	Location       *time.Location
	// BatchSize caps the reminders handled per notification sweep.
	BatchSize int
}

const defaultNotificationBatch = 500

// ReminderScheduler runs the periodic sweeps. Each sweep kind has its own
// goroutine, so a sweep never overlaps with itself; different kinds may run
// at the same time.
type ReminderScheduler struct {
	reminders repositories.ReminderRepository
	users     repositories.UserRepository
	notifier  ReminderNotifier
	queries   *QueryService
	cfg       SchedulerConfig
	now       func() time.Time
	logger    *zap.Logger

	wg sync.WaitGroup
}

func NewReminderScheduler(
	reminders repositories.ReminderRepository,
	users repositories.UserRepository,
	notifier ReminderNotifier,
	queries *QueryService,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *ReminderScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultNotificationBatch
	}
	return &ReminderScheduler{
		reminders: reminders,
		users:     users,
		notifier:  notifier,
		queries:   queries,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.Named("reminder-scheduler"),
	}
}

// RunNotificationSweep notifies every active, not yet notified reminder whose
// notify time has passed. A reminder is marked notified only after a
// successful send; failures stay eligible for the next sweep.
func (s *ReminderScheduler) RunNotificationSweep(ctx context.Context) (NotificationSweepResult, error) {
	var result NotificationSweepResult

	due, err := s.reminders.ListDueForNotification(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list reminders due for notification: %w", err)
	}

	for _, rem := range due {
		if ctx.Err() != nil {
			break
		}
		if s.notifyOne(ctx, rem) {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	s.logger.Info("Notification sweep completed",
		zap.Int("eligible", len(due)),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *ReminderScheduler) notifyOne(ctx context.Context, rem *models.Reminder) (sent bool) {
	logger := s.logger.With(zap.String("reminder_id", rem.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Reminder notification panicked", zap.Any("panic", r))
			sent = false
		}
	}()

	owner, err := s.users.GetByID(ctx, rem.OwnerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("Reminder has no owner")
		} else {
			logger.Error("Failed to load reminder owner", zap.Error(err))
		}
		return false
	}

	if !s.notifier.Send(ctx, rem, owner) {
		return false
	}

	changed, err := s.reminders.MarkNotified(ctx, rem.ID)
	if err != nil {
		// Delivered but not recorded: the next sweep will send it again.
		logger.Error("Failed to mark reminder notified", zap.Error(err))
	} else if !changed {
		logger.Debug("Reminder changed state during notification")
	}
	return true
}

// RunOverdueSweep moves every active reminder whose due date is before now
// to overdue. Due dates are stored as midnight in the configured location, so
// a reminder is overdue from the first sweep of its due day, matching the
// notifier's "vencido" banner. Completed and already overdue reminders are
// never touched.
func (s *ReminderScheduler) RunOverdueSweep(ctx context.Context) (OverdueSweepResult, error) {
	cutoff := s.now()
	n, err := s.reminders.MarkOverdue(ctx, cutoff)
	if err != nil {
		return OverdueSweepResult{}, fmt.Errorf("failed to mark overdue reminders: %w", err)
	}
	if n > 0 {
		s.logger.Info("Reminders marked overdue", zap.Int64("transitioned", n), zap.Time("cutoff", cutoff))
	}
	return OverdueSweepResult{Transitioned: n}, nil
}

// RunRequerySweep re-queries every saved account so balances and variations
// stay fresh without user action.
func (s *ReminderScheduler) RunRequerySweep(ctx context.Context) (RequerySummary, error) {
	if s.queries == nil {
		return RequerySummary{}, nil
	}
	summary, err := s.queries.QueryAllOwners(ctx)
	s.logger.Info("Re-query sweep completed",
		zap.Int("owners", summary.Owners),
		zap.Int("accounts", summary.Accounts),
		zap.Int("failed", summary.Failed))
	return summary, err
}

// Start launches one background loop per sweep kind until ctx is cancelled.
// The notification and overdue sweeps run immediately and then on every tick.
// The re-query sweep scrapes every saved account, so it waits for its first
// tick unless RequeryOnStart is set.
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.every(ctx, "notification", s.cfg.NotificationInterval, true, func(ctx context.Context) error {
		_, err := s.RunNotificationSweep(ctx)
		return err
	})
	s.every(ctx, "overdue", s.cfg.OverdueInterval, true, func(ctx context.Context) error {
		_, err := s.RunOverdueSweep(ctx)
		return err
	})
	if s.cfg.RequeryInterval > 0 && s.queries != nil {
		s.every(ctx, "requery", s.cfg.RequeryInterval, s.cfg.RequeryOnStart, func(ctx context.Context) error {
			_, err := s.RunRequerySweep(ctx)
			return err
		})
	}
}

// Wait blocks until every loop started by Start has returned.
func (s *ReminderScheduler) Wait() {
	s.wg.Wait()
}

func (s *ReminderScheduler) every(ctx context.Context, name string, interval time.Duration, immediate bool, sweep func(context.Context) error) {
	if interval <= 0 {
		s.logger.Warn("Sweep disabled, interval is not positive", zap.String("sweep", name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger := s.logger.With(zap.String("sweep", name))
		logger.Info("Sweep scheduler started", zap.Duration("interval", interval))

		if immediate {
			s.runGuarded(ctx, logger, sweep)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Sweep scheduler stopped")
				return
			case <-ticker.C:
				s.runGuarded(ctx, logger, sweep)
			}
		}
	}()
}

// runGuarded keeps the loop alive across sweep errors and panics.
func (s *ReminderScheduler) runGuarded(ctx context.Context, logger *zap.Logger, sweep func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Sweep panicked", zap.Any("panic", r))
		}
	}()
	if err := sweep(ctx); err != nil && ctx.Err() == nil {
		logger.Error("Sweep failed", zap.Error(err))
	}
}
