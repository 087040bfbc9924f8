package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/utils"
)

// ReminderDefaults apply when a request leaves lead days or notify time empty.
type ReminderDefaults struct {
	LeadDays   int
	NotifyTime string
	Location   *time.Location
}

type ReminderService struct {
	reminders repositories.ReminderRepository
	accounts  repositories.AccountRepository
	defaults  ReminderDefaults
	now       func() time.Time
	logger    *zap.Logger
}

func NewReminderService(
	reminders repositories.ReminderRepository,
	accounts repositories.AccountRepository,
	defaults ReminderDefaults,
	logger *zap.Logger,
) *ReminderService {
	if defaults.Location == nil {
		defaults.Location = time.UTC
	}
	if defaults.NotifyTime == "" {
		defaults.NotifyTime = models.DefaultNotifyTime
	}
	return &ReminderService{
		reminders: reminders,
		accounts:  accounts,
		defaults:  defaults,
		now:       time.Now,
		logger:    logger.Named("reminder-service"),
	}
}

// ParseDueDate reads a YYYY-MM-DD date as midnight in loc.
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: due date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return t, nil
}

// NotifyAt is leadDays before dueDate, at the HH:MM time of day in loc.
func NotifyAt(dueDate time.Time, leadDays int, timeOfDay string, loc *time.Location) (time.Time, error) {
	tod, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: notify time must be HH:MM", ErrInvalidInput)
	}
	d := dueDate.In(loc).AddDate(0, 0, -leadDays)
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

func (s *ReminderService) leadDays(v *int) (int, error) {
	if v == nil {
		return s.defaults.LeadDays, nil
	}
	if *v < 0 {
		return 0, fmt.Errorf("%w: lead days cannot be negative", ErrInvalidInput)
	}
	return *v, nil
}

func (s *ReminderService) notifyTime(v string) string {
	if strings.TrimSpace(v) == "" {
		return s.defaults.NotifyTime
	}
	return strings.TrimSpace(v)
}

func (s *ReminderService) Create(ctx context.Context, ownerID string, req models.CreateReminderRequest) (*models.Reminder, error) {
	kind, err := models.ParseProviderKind(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	identifier := strings.TrimSpace(req.AccountIdentifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: account identifier is required", ErrInvalidInput)
	}
	due, err := ParseDueDate(req.DueDate, s.defaults.Location)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	}

	rem := &models.Reminder{
		OwnerID:           ownerID,
		Provider:          kind,
		AccountIdentifier: identifier,
		DueDate:           due,
		Amount:            req.Amount,
		Notes:             req.Notes,
	}
	return s.insert(ctx, rem, req.LeadDays, req.NotifyTimeOfDay)
}

// CreateFromAccount builds a reminder from the due date and balance of the
// account's last successful query.
func (s *ReminderService) CreateFromAccount(ctx context.Context, ownerID, accountID string, req models.ReminderFromAccountRequest) (*models.Reminder, error) {
	account, err := s.accounts.GetByID(ctx, ownerID, accountID)
	if err != nil {
		return nil, err
	}
	last := account.LastSuccess
	if last == nil || last.DueDate == nil {
		return nil, fmt.Errorf("%w: the account has no due date from a successful query", ErrInvalidInput)
	}

	local := last.DueDate.In(s.defaults.Location)
	rem := &models.Reminder{
		OwnerID:           ownerID,
		Provider:          account.Provider,
		AccountIdentifier: account.AccountIdentifier,
		DueDate:           time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.defaults.Location),
		Amount:            last.BalanceDue,
		Notes:             req.Notes,
	}
	return s.insert(ctx, rem, req.LeadDays, req.NotifyTimeOfDay)
}

func (s *ReminderService) insert(ctx context.Context, rem *models.Reminder, leadDays *int, notifyTime string) (*models.Reminder, error) {
	lead, err := s.leadDays(leadDays)
	if err != nil {
		return nil, err
	}
	tod := s.notifyTime(notifyTime)
	notifyAt, err := NotifyAt(rem.DueDate, lead, tod, s.defaults.Location)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rem.ID = uuid.New().String()
	rem.LeadDays = lead
	rem.NotifyTimeOfDay = tod
	rem.NotifyAt = notifyAt
	rem.Status = models.ReminderActive
	rem.SavingsAdvice = []models.SavingsAdvice{}
	rem.CreatedAt = now
	rem.UpdatedAt = now

	if err := s.reminders.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	s.logger.Info("Reminder created",
		zap.String("reminder_id", rem.ID),
		utils.OwnerField(rem.OwnerID),
		zap.Time("notify_at", rem.NotifyAt))
	return rem, nil
}

func (s *ReminderService) Get(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	return s.reminders.GetByID(ctx, ownerID, id)
}

func (s *ReminderService) List(ctx context.Context, ownerID string) ([]*models.Reminder, error) {
	return s.reminders.ListByOwner(ctx, ownerID)
}

func (s *ReminderService) Stats(ctx context.Context, ownerID string) (models.ReminderStats, error) {
	return s.reminders.Stats(ctx, ownerID)
}

func (s *ReminderService) Delete(ctx context.Context, ownerID, id string) error {
	return s.reminders.Delete(ctx, ownerID, id)
}

// Update applies a partial edit. A change of notify time re-arms the
// notification of an active reminder, and moving the due date of an overdue
// reminder to a time not yet passed makes it active again.
func (s *ReminderService) Update(ctx context.Context, ownerID, id string, req models.UpdateReminderRequest) (*models.Reminder, error) {
	loc := s.defaults.Location
	var due *time.Time
	if req.DueDate != nil {
		d, err := ParseDueDate(*req.DueDate, loc)
		if err != nil {
			return nil, err
		}
		due = &d
	}
	var lead *int
	if req.LeadDays != nil {
		l, err := s.leadDays(req.LeadDays)
		if err != nil {
			return nil, err
		}
		lead = &l
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	}

	rem, err := s.mutate(ctx, ownerID, id, func(rem *models.Reminder) (bool, error) {
		if due != nil {
			rem.DueDate = *due
		}
		if lead != nil {
			rem.LeadDays = *lead
		}
		if req.NotifyTimeOfDay != nil {
			rem.NotifyTimeOfDay = s.notifyTime(*req.NotifyTimeOfDay)
		}
		if req.Amount != nil {
			rem.Amount = req.Amount
		}
		if req.Notes != nil {
			rem.Notes = req.Notes
		}

		notifyAt, err := NotifyAt(rem.DueDate, rem.LeadDays, rem.NotifyTimeOfDay, loc)
		if err != nil {
			return false, err
		}

		now := s.now()
		if rem.Status == models.ReminderOverdue && !rem.DueDate.Before(now) {
			rem.Status = models.ReminderActive
			rem.Notified = false
		}
		if !notifyAt.Equal(rem.NotifyAt) && rem.Status == models.ReminderActive {
			rem.Notified = false
		}
		rem.NotifyAt = notifyAt
		rem.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, wrapWrite(err, "failed to update reminder")
	}
	return rem, nil
}

// Complete marks the reminder paid. Active and overdue reminders can be
// completed; completing twice is a no-op.
func (s *ReminderService) Complete(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	changed := false
	rem, err := s.mutate(ctx, ownerID, id, func(rem *models.Reminder) (bool, error) {
		if rem.Status == models.ReminderCompleted {
			return false, nil
		}
		rem.Status = models.ReminderCompleted
		rem.UpdatedAt = s.now()
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, wrapWrite(err, "failed to complete reminder")
	}
	if changed {
		s.logger.Info("Reminder completed", zap.String("reminder_id", rem.ID), utils.OwnerField(ownerID))
	}
	return rem, nil
}

const staleWriteAttempts = 3

// mutate reads a reminder, lets apply edit it and writes it back only if no
// sweep changed its status or notified flag in between. On a stale write it
// starts over from a fresh read. apply returns false to skip the write.
func (s *ReminderService) mutate(ctx context.Context, ownerID, id string, apply func(*models.Reminder) (bool, error)) (*models.Reminder, error) {
	for attempt := 1; ; attempt++ {
		rem, err := s.reminders.GetByID(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		expected := repositories.StateOf(rem)

		write, err := apply(rem)
		if err != nil || !write {
			return rem, err
		}

		err = s.reminders.Update(ctx, rem, expected)
		if err == nil {
			return rem, nil
		}
		if !errors.Is(err, repositories.ErrStale) || attempt >= staleWriteAttempts {
			return nil, err
		}
		s.logger.Debug("Reminder changed during edit, retrying", zap.String("reminder_id", id), zap.Int("attempt", attempt))
	}
}

// wrapWrite keeps lookup and validation errors as they are.
func wrapWrite(err error, msg string) error {
	if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
