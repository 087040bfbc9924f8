package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/aldia-api/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrStale is returned by conditional writes when the stored row no
	// longer matches what the caller read.
	ErrStale = errors.New("stale write")
)

// ResultUpdate is what the orchestrator writes after one query attempt.
// Result always becomes the account's last result; when it succeeded it also
// becomes the last success and Variation replaces the stored variation.
type ResultUpdate struct {
	Result    models.QueryResult
	Variation *decimal.Decimal
}

// AccountRepository persists saved provider accounts. (owner, provider,
// identifier) is unique.
type AccountRepository interface {
	// Create returns ErrConflict on a duplicate (owner, provider, identifier).
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Account, error)
	// ListByOwner returns accounts in creation order.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Account, error)
	// ListOwners returns the ids of every owner with at least one account.
	ListOwners(ctx context.Context) ([]string, error)
	// SaveResult is a single-row update of the account's query state.
	SaveResult(ctx context.Context, id string, update ResultUpdate) error
	Delete(ctx context.Context, ownerID, id string) error
}

// ReminderState is the part of a reminder the sweeps write concurrently with
// users.
type ReminderState struct {
	Status   models.ReminderStatus
	Notified bool
}

// StateOf returns the sweep-owned state of rem.
func StateOf(rem *models.Reminder) ReminderState {
	return ReminderState{Status: rem.Status, Notified: rem.Notified}
}

// ReminderRepository persists reminders and carries the two sweep predicates.
type ReminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, ownerID, id string) (*models.Reminder, error)
	// ListByOwner returns reminders ordered by due date.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Reminder, error)
	// Update writes the user-editable fields, status and notified flag, but
	// only while the stored state still equals expected. It returns ErrStale
	// when a sweep changed the row in between.
	Update(ctx context.Context, reminder *models.Reminder, expected ReminderState) error
	Delete(ctx context.Context, ownerID, id string) error

	// ListDueForNotification selects status=active, notified=false,
	// notify_at <= now, oldest first.
	ListDueForNotification(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error)
	// MarkNotified sets notified=true only if it is still false and the
	// reminder is active. It reports whether the row changed.
	MarkNotified(ctx context.Context, id string) (bool, error)
	// MarkOverdue moves every active reminder with due_date < cutoff to
	// overdue and returns how many changed.
	MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error)

	SetAdvice(ctx context.Context, ownerID, id string, advice []models.SavingsAdvice) error
	Stats(ctx context.Context, ownerID string) (models.ReminderStats, error)
}

// ExpenseRepository persists recurring services and the monthly expense
// history recorded against them.
type ExpenseRepository interface {
	// CreateService returns ErrConflict on a duplicate (owner, name).
	CreateService(ctx context.Context, service *models.RecurringService) error
	GetService(ctx context.Context, ownerID, id string) (*models.RecurringService, error)
	GetServiceByName(ctx context.Context, ownerID, name string) (*models.RecurringService, error)
	// ListServices returns the newest service first.
	ListServices(ctx context.Context, ownerID string) ([]*models.RecurringService, error)
	// DeleteService removes the service; its recorded expenses are kept.
	DeleteService(ctx context.Context, ownerID, id string) error

	// CreateExpense returns ErrConflict when the service month is already
	// recorded.
	CreateExpense(ctx context.Context, expense *models.MonthlyExpense) error
	FindExpense(ctx context.Context, ownerID, serviceID string, year, month int) (*models.MonthlyExpense, error)
	// SetExpenseAmount overwrites the amount and variation of one expense.
	SetExpenseAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal, variation *decimal.Decimal) error
	// MarkExpensePaid flags the expense paid. Paying twice keeps the first
	// payment time.
	MarkExpensePaid(ctx context.Context, ownerID, id string, at time.Time) (*models.MonthlyExpense, error)
	// ListExpenses returns the most recent month first.
	ListExpenses(ctx context.Context, ownerID string) ([]*models.MonthlyExpense, error)
}

// UserRepository reads owners. Users are managed by the auth service.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
