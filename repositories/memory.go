package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/aldia-api/models"
)

// MemoryStore keeps accounts, reminders, expenses and users in process
// memory. It backs DB_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]models.Account
	reminders map[string]models.Reminder
	services  map[string]models.RecurringService
	expenses  map[string]models.MonthlyExpense
	users     map[string]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]models.Account),
		reminders: make(map[string]models.Reminder),
		services:  make(map[string]models.RecurringService),
		expenses:  make(map[string]models.MonthlyExpense),
		users:     make(map[string]models.User),
	}
}

// Accounts, Reminders, Expenses and Users expose the store through the
// repository interfaces.
func (s *MemoryStore) Accounts() AccountRepository   { return (*memoryAccounts)(s) }
func (s *MemoryStore) Reminders() ReminderRepository { return (*memoryReminders)(s) }
func (s *MemoryStore) Expenses() ExpenseRepository   { return (*memoryExpenses)(s) }
func (s *MemoryStore) Users() UserRepository         { return (*memoryUsers)(s) }

// AddUser registers an owner.
func (s *MemoryStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// ============================================================================
// ACCOUNTS
// ============================================================================

type memoryAccounts MemoryStore

var _ AccountRepository = (*memoryAccounts)(nil)

func (r *memoryAccounts) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.OwnerID == account.OwnerID && a.Provider == account.Provider &&
			a.AccountIdentifier == account.AccountIdentifier {
			return ErrConflict
		}
	}
	if _, exists := r.accounts[account.ID]; exists {
		return ErrConflict
	}
	r.accounts[account.ID] = *account
	return nil
}

func (r *memoryAccounts) GetByID(ctx context.Context, ownerID, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *memoryAccounts) ListByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Account
	for _, a := range r.accounts {
		if a.OwnerID == ownerID {
			a := a
			out = append(out, &a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryAccounts) ListOwners(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var owners []string
	for _, a := range r.accounts {
		if !seen[a.OwnerID] {
			seen[a.OwnerID] = true
			owners = append(owners, a.OwnerID)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (r *memoryAccounts) SaveResult(ctx context.Context, id string, update ResultUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	result := update.Result
	a.LastResult = &result
	if result.OK {
		a.LastSuccess = &result
		a.Variation = update.Variation
	}
	a.UpdatedAt = time.Now()
	r.accounts[id] = a
	return nil
}

func (r *memoryAccounts) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

// ============================================================================
// REMINDERS
// ============================================================================

type memoryReminders MemoryStore

var _ ReminderRepository = (*memoryReminders)(nil)

func cloneReminder(rem models.Reminder) *models.Reminder {
	rem.SavingsAdvice = slices.Clone(rem.SavingsAdvice)
	return &rem
}

func (r *memoryReminders) Create(ctx context.Context, reminder *models.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reminders[reminder.ID]; exists {
		return ErrConflict
	}
	r.reminders[reminder.ID] = *cloneReminder(*reminder)
	return nil
}

func (r *memoryReminders) GetByID(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rem, ok := r.reminders[id]
	if !ok || rem.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return cloneReminder(rem), nil
}

func (r *memoryReminders) ListByOwner(ctx context.Context, ownerID string) ([]*models.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Reminder
	for _, rem := range r.reminders {
		if rem.OwnerID == ownerID {
			out = append(out, cloneReminder(rem))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (r *memoryReminders) Update(ctx context.Context, reminder *models.Reminder, expected ReminderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.reminders[reminder.ID]
	if !ok || existing.OwnerID != reminder.OwnerID {
		return ErrNotFound
	}
	if StateOf(&existing) != expected {
		return ErrStale
	}
	updated := *cloneReminder(*reminder)
	updated.SavingsAdvice = existing.SavingsAdvice
	updated.CreatedAt = existing.CreatedAt
	r.reminders[reminder.ID] = updated
	return nil
}

func (r *memoryReminders) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok || rem.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.reminders, id)
	return nil
}

func (r *memoryReminders) ListDueForNotification(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Reminder
	for _, rem := range r.reminders {
		if rem.Status == models.ReminderActive && !rem.Notified && !rem.NotifyAt.After(now) {
			out = append(out, cloneReminder(rem))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NotifyAt.Equal(out[j].NotifyAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NotifyAt.Before(out[j].NotifyAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryReminders) MarkNotified(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok || rem.Notified || rem.Status != models.ReminderActive {
		return false, nil
	}
	rem.Notified = true
	rem.UpdatedAt = time.Now()
	r.reminders[id] = rem
	return true, nil
}

func (r *memoryReminders) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for id, rem := range r.reminders {
		if rem.Status == models.ReminderActive && rem.DueDate.Before(cutoff) {
			rem.Status = models.ReminderOverdue
			rem.UpdatedAt = now
			r.reminders[id] = rem
			n++
		}
	}
	return n, nil
}

func (r *memoryReminders) SetAdvice(ctx context.Context, ownerID, id string, advice []models.SavingsAdvice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok || rem.OwnerID != ownerID {
		return ErrNotFound
	}
	rem.SavingsAdvice = slices.Clone(advice)
	rem.UpdatedAt = time.Now()
	r.reminders[id] = rem
	return nil
}

func (r *memoryReminders) Stats(ctx context.Context, ownerID string) (models.ReminderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st models.ReminderStats
	for _, rem := range r.reminders {
		if rem.OwnerID != ownerID {
			continue
		}
		st.Total++
		switch rem.Status {
		case models.ReminderActive:
			st.Active++
		case models.ReminderCompleted:
			st.Completed++
		case models.ReminderOverdue:
			st.Overdue++
		}
		if rem.Notified {
			st.NotificationsSent++
		}
	}
	return st, nil
}

// ============================================================================
// EXPENSES
// ============================================================================

type memoryExpenses MemoryStore

var _ ExpenseRepository = (*memoryExpenses)(nil)

func (r *memoryExpenses) CreateService(ctx context.Context, service *models.RecurringService) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sv := range r.services {
		if sv.OwnerID == service.OwnerID && sv.Name == service.Name {
			return ErrConflict
		}
	}
	if _, exists := r.services[service.ID]; exists {
		return ErrConflict
	}
	r.services[service.ID] = *service
	return nil
}

func (r *memoryExpenses) GetService(ctx context.Context, ownerID, id string) (*models.RecurringService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sv, ok := r.services[id]
	if !ok || sv.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &sv, nil
}

func (r *memoryExpenses) GetServiceByName(ctx context.Context, ownerID, name string) (*models.RecurringService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sv := range r.services {
		if sv.OwnerID == ownerID && sv.Name == name {
			return &sv, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryExpenses) ListServices(ctx context.Context, ownerID string) ([]*models.RecurringService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.RecurringService
	for _, sv := range r.services {
		if sv.OwnerID == ownerID {
			sv := sv
			out = append(out, &sv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryExpenses) DeleteService(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sv, ok := r.services[id]
	if !ok || sv.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.services, id)
	return nil
}

func (r *memoryExpenses) CreateExpense(ctx context.Context, expense *models.MonthlyExpense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.expenses {
		if e.OwnerID == expense.OwnerID && e.ServiceID == expense.ServiceID &&
			e.Year == expense.Year && e.Month == expense.Month {
			return ErrConflict
		}
	}
	if _, exists := r.expenses[expense.ID]; exists {
		return ErrConflict
	}
	r.expenses[expense.ID] = *expense
	return nil
}

func (r *memoryExpenses) FindExpense(ctx context.Context, ownerID, serviceID string, year, month int) (*models.MonthlyExpense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.expenses {
		if e.OwnerID == ownerID && e.ServiceID == serviceID && e.Year == year && e.Month == month {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryExpenses) SetExpenseAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal, variation *decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return ErrNotFound
	}
	e.Amount = amount
	e.Variation = variation
	e.UpdatedAt = time.Now()
	r.expenses[id] = e
	return nil
}

func (r *memoryExpenses) MarkExpensePaid(ctx context.Context, ownerID, id string, at time.Time) (*models.MonthlyExpense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if !e.Paid {
		e.Paid = true
		e.PaidAt = &at
		e.UpdatedAt = at
		r.expenses[id] = e
	}
	return &e, nil
}

func (r *memoryExpenses) ListExpenses(ctx context.Context, ownerID string) ([]*models.MonthlyExpense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.MonthlyExpense
	for _, e := range r.expenses {
		if e.OwnerID == ownerID {
			e := e
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		if a.ServiceName != b.ServiceName {
			return a.ServiceName < b.ServiceName
		}
		return a.ID < b.ID
	})
	return out, nil
}

// ============================================================================
// USERS
// ============================================================================

type memoryUsers MemoryStore

var _ UserRepository = (*memoryUsers)(nil)

func (r *memoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
