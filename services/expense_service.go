package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/utils"
)

// ============================================================================
// EXPENSE SERVICE
// Recurring services and what was spent on them each month.
// ============================================================================

const (
	minExpenseYear = 2000
	maxExpenseYear = 2100
)

type ExpenseService struct {
	expenses repositories.ExpenseRepository
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

func NewExpenseService(expenses repositories.ExpenseRepository, loc *time.Location, logger *zap.Logger) *ExpenseService {
	if loc == nil {
		loc = time.UTC
	}
	return &ExpenseService{
		expenses: expenses,
		location: loc,
		now:      time.Now,
		logger:   logger.Named("expense-service"),
	}
}

// CreateService saves a recurring service. A duplicate name for the owner
// returns repositories.ErrConflict.
func (s *ExpenseService) CreateService(ctx context.Context, ownerID string, req models.CreateServiceRequest) (*models.RecurringService, error) {
	sv, err := s.newService(ownerID, req.Name, req.Category, req.Frequency)
	if err != nil {
		return nil, err
	}
	if err := s.expenses.CreateService(ctx, sv); err != nil {
		return nil, err
	}
	s.logger.Info("Recurring service saved",
		zap.String("service_id", sv.ID),
		zap.String("category", string(sv.Category)),
		utils.OwnerField(ownerID))
	return sv, nil
}

func (s *ExpenseService) newService(ownerID, name, category, frequency string) (*models.RecurringService, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	freq, err := models.ParseFrequency(frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := s.now()
	return &models.RecurringService{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Category:  models.ParseServiceCategory(category),
		Frequency: freq,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *ExpenseService) ListServices(ctx context.Context, ownerID string) ([]*models.RecurringService, error) {
	return s.expenses.ListServices(ctx, ownerID)
}

// DeleteService removes the service. Its expenses stay in the history.
func (s *ExpenseService) DeleteService(ctx context.Context, ownerID, id string) error {
	return s.expenses.DeleteService(ctx, ownerID, id)
}

func validatePeriod(year, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month must be between 1 and 12", ErrInvalidInput)
	}
	if year < minExpenseYear || year > maxExpenseYear {
		return fmt.Errorf("%w: year must be between %d and %d", ErrInvalidInput, minExpenseYear, maxExpenseYear)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	}
	return nil
}

// CreateExpense records the amount spent on a saved service in one month. A
// second expense for the same service and month returns
// repositories.ErrConflict.
func (s *ExpenseService) CreateExpense(ctx context.Context, ownerID string, req models.CreateExpenseRequest) (*models.MonthlyExpense, error) {
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	sv, err := s.expenses.GetService(ctx, ownerID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.createExpense(ctx, sv, req.Year, req.Month, req.Amount)
}

// AddManual records an expense for a service named in the request, creating
// the service the first time the name is seen.
func (s *ExpenseService) AddManual(ctx context.Context, ownerID string, req models.ManualExpenseRequest) (*models.MonthlyExpense, error) {
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	sv, err := s.findOrCreateService(ctx, ownerID, req.Name, req.Category, req.Frequency)
	if err != nil {
		return nil, err
	}
	return s.createExpense(ctx, sv, req.Year, req.Month, req.Amount)
}

func (s *ExpenseService) findOrCreateService(ctx context.Context, ownerID, name, category, frequency string) (*models.RecurringService, error) {
	sv, err := s.expenses.GetServiceByName(ctx, ownerID, strings.TrimSpace(name))
	if err == nil {
		return sv, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	sv, err = s.newService(ownerID, name, category, frequency)
	if err != nil {
		return nil, err
	}
	err = s.expenses.CreateService(ctx, sv)
	if errors.Is(err, repositories.ErrConflict) {
		// Created by a concurrent request.
		return s.expenses.GetServiceByName(ctx, ownerID, sv.Name)
	}
	if err != nil {
		return nil, err
	}
	return sv, nil
}

func (s *ExpenseService) createExpense(ctx context.Context, sv *models.RecurringService, year, month int, amount decimal.Decimal) (*models.MonthlyExpense, error) {
	variation, err := s.variation(ctx, sv, year, month, amount)
	if err != nil {
		return nil, err
	}
	now := s.now()
	e := &models.MonthlyExpense{
		ID:          uuid.New().String(),
		OwnerID:     sv.OwnerID,
		ServiceID:   sv.ID,
		ServiceName: sv.Name,
		Year:        year,
		Month:       month,
		Amount:      amount,
		Variation:   variation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.expenses.CreateExpense(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("Expense recorded",
		zap.String("service_id", sv.ID),
		zap.String("period", e.Period()),
		utils.OwnerField(sv.OwnerID))
	return e, nil
}

// variation compares amount with the same service's previous month. It is nil
// when that month was never recorded.
func (s *ExpenseService) variation(ctx context.Context, sv *models.RecurringService, year, month int, amount decimal.Decimal) (*decimal.Decimal, error) {
	py, pm := models.PreviousMonth(year, month)
	prev, err := s.expenses.FindExpense(ctx, sv.OwnerID, sv.ID, py, pm)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load previous month: %w", err)
	}
	v := amount.Sub(prev.Amount)
	return &v, nil
}

// MarkPaid flags the expense as paid. Paying twice keeps the first payment
// time.
func (s *ExpenseService) MarkPaid(ctx context.Context, ownerID, id string) (*models.MonthlyExpense, error) {
	return s.expenses.MarkExpensePaid(ctx, ownerID, id, s.now())
}

// List returns the owner's expenses, newest month first.
func (s *ExpenseService) List(ctx context.Context, ownerID string) ([]*models.MonthlyExpense, error) {
	return s.expenses.ListExpenses(ctx, ownerID)
}

// ServiceNameFor is the recurring service a saved account's queries are
// recorded under.
func ServiceNameFor(account *models.Account) string {
	name := account.Provider.DisplayName() + " " + account.AccountIdentifier
	if account.Label != "" {
		name += " (" + account.Label + ")"
	}
	return name
}

// RecordQuery files a successful balance as the expense of the month it was
// fetched in. A later query in the same month replaces the amount.
func (s *ExpenseService) RecordQuery(ctx context.Context, account *models.Account, result models.QueryResult) error {
	if !result.OK || result.BalanceDue == nil {
		return nil
	}

	sv, err := s.findOrCreateService(ctx, account.OwnerID, ServiceNameFor(account), string(models.CategoryUtilities), "")
	if err != nil {
		return fmt.Errorf("failed to resolve service: %w", err)
	}

	fetched := result.FetchedAt
	if fetched.IsZero() {
		fetched = s.now()
	}
	fetched = fetched.In(s.location)
	year, month := fetched.Year(), int(fetched.Month())
	amount := *result.BalanceDue

	existing, err := s.expenses.FindExpense(ctx, account.OwnerID, sv.ID, year, month)
	if errors.Is(err, repositories.ErrNotFound) {
		_, err = s.createExpense(ctx, sv, year, month, amount)
		if !errors.Is(err, repositories.ErrConflict) {
			return err
		}
		existing, err = s.expenses.FindExpense(ctx, account.OwnerID, sv.ID, year, month)
	}
	if err != nil {
		return err
	}

	variation, err := s.variation(ctx, sv, year, month, amount)
	if err != nil {
		return err
	}
	return s.expenses.SetExpenseAmount(ctx, account.OwnerID, existing.ID, amount, variation)
}

// ExpenseSummary is one month of one service as shown to the text generator.
type ExpenseSummary struct {
	Service   string           `json:"servicio"`
	Period    string           `json:"periodo"`
	Amount    decimal.Decimal  `json:"monto"`
	Variation *decimal.Decimal `json:"variacion,omitempty"`
	Paid      bool             `json:"pagado"`
}

// RecentExpenses summarizes the owner's expenses of the latest recorded
// months, at most months distinct periods.
func (s *ExpenseService) RecentExpenses(ctx context.Context, ownerID string, months int) ([]ExpenseSummary, error) {
	return recentExpenses(ctx, s.expenses, ownerID, months)
}

func recentExpenses(ctx context.Context, repo repositories.ExpenseRepository, ownerID string, months int) ([]ExpenseSummary, error) {
	list, err := repo.ListExpenses(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	var (
		out     []ExpenseSummary
		periods = make(map[string]struct{})
	)
	for _, e := range list {
		period := e.Period()
		if _, seen := periods[period]; !seen {
			if len(periods) == months {
				break
			}
			periods[period] = struct{}{}
		}
		out = append(out, ExpenseSummary{
			Service:   e.ServiceName,
			Period:    period,
			Amount:    e.Amount,
			Variation: e.Variation,
			Paid:      e.Paid,
		})
	}
	return out, nil
}
