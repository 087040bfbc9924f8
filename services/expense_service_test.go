package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/scraper"
)

func newExpenseService(t *testing.T) (*ExpenseService, *repositories.MemoryStore) {
	t.Helper()
	loc, err := time.LoadLocation("America/Guayaquil")
	require.NoError(t, err)
	store := repositories.NewMemoryStore()
	return NewExpenseService(store.Expenses(), loc, zap.NewNop()), store
}

func TestExpenseService_CreateService(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()

	sv, err := svc.CreateService(ctx, "owner-1", models.CreateServiceRequest{Name: " Netflix ", Category: "suscripción"})
	require.NoError(t, err)
	assert.Equal(t, "Netflix", sv.Name)
	assert.Equal(t, models.CategorySubscription, sv.Category)
	assert.Equal(t, models.FrequencyMonthly, sv.Frequency)
	assert.True(t, sv.Active)

	_, err = svc.CreateService(ctx, "owner-1", models.CreateServiceRequest{Name: "Netflix"})
	assert.ErrorIs(t, err, repositories.ErrConflict)

	_, err = svc.CreateService(ctx, "owner-1", models.CreateServiceRequest{Name: "Gym", Frequency: "semanal"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateService(ctx, "owner-1", models.CreateServiceRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExpenseService_CreateExpenseValidation(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()
	sv, err := svc.CreateService(ctx, "owner-1", models.CreateServiceRequest{Name: "Luz"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  models.CreateExpenseRequest
		err  error
	}{
		{"month too high", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 13, Amount: *dec("1")}, ErrInvalidInput},
		{"month zero", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 0, Amount: *dec("1")}, ErrInvalidInput},
		{"year out of range", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 1999, Month: 1, Amount: *dec("1")}, ErrInvalidInput},
		{"negative amount", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 1, Amount: *dec("-1")}, ErrInvalidInput},
		{"unknown service", models.CreateExpenseRequest{ServiceID: "missing", Year: 2026, Month: 1, Amount: *dec("1")}, repositories.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateExpense(ctx, "owner-1", tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	// Another owner cannot file against the service.
	_, err = svc.CreateExpense(ctx, "owner-2", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 1})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestExpenseService_VariationAgainstPreviousMonth(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()
	sv, err := svc.CreateService(ctx, "owner-1", models.CreateServiceRequest{Name: "Agua"})
	require.NoError(t, err)

	dec2025, err := svc.CreateExpense(ctx, "owner-1", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2025, Month: 12, Amount: *dec("20.00")})
	require.NoError(t, err)
	assert.Nil(t, dec2025.Variation)

	// January compares against December of the year before.
	jan, err := svc.CreateExpense(ctx, "owner-1", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 1, Amount: *dec("26.50")})
	require.NoError(t, err)
	require.NotNil(t, jan.Variation)
	assert.Equal(t, "6.5", jan.Variation.String())

	_, err = svc.CreateExpense(ctx, "owner-1", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 1, Amount: *dec("1")})
	assert.ErrorIs(t, err, repositories.ErrConflict)

	// A gap month has nothing to compare with.
	mar, err := svc.CreateExpense(ctx, "owner-1", models.CreateExpenseRequest{ServiceID: sv.ID, Year: 2026, Month: 3, Amount: *dec("30")})
	require.NoError(t, err)
	assert.Nil(t, mar.Variation)
}

func TestExpenseService_AddManualReusesServiceByName(t *testing.T) {
	svc, store := newExpenseService(t)
	ctx := context.Background()

	first, err := svc.AddManual(ctx, "owner-1", models.ManualExpenseRequest{Name: "Préstamo auto", Category: "prestamo", Year: 2026, Month: 4, Amount: *dec("310")})
	require.NoError(t, err)
	second, err := svc.AddManual(ctx, "owner-1", models.ManualExpenseRequest{Name: "Préstamo auto", Year: 2026, Month: 5, Amount: *dec("310")})
	require.NoError(t, err)

	assert.Equal(t, first.ServiceID, second.ServiceID)
	require.NotNil(t, second.Variation)
	assert.True(t, second.Variation.IsZero())

	services, err := store.Expenses().ListServices(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, models.CategoryLoan, services[0].Category)
}

func TestExpenseService_MarkPaidKeepsFirstPayment(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()
	first := time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }

	e, err := svc.AddManual(ctx, "owner-1", models.ManualExpenseRequest{Name: "Internet", Year: 2026, Month: 5, Amount: *dec("35")})
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, "owner-1", e.ID)
	require.NoError(t, err)
	assert.True(t, paid.Paid)

	svc.now = func() time.Time { return first.AddDate(0, 0, 2) }
	again, err := svc.MarkPaid(ctx, "owner-1", e.ID)
	require.NoError(t, err)
	require.NotNil(t, again.PaidAt)
	assert.True(t, again.PaidAt.Equal(first))

	_, err = svc.MarkPaid(ctx, "owner-2", e.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestExpenseService_DeleteServiceKeepsHistory(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()

	e, err := svc.AddManual(ctx, "owner-1", models.ManualExpenseRequest{Name: "Gimnasio", Year: 2026, Month: 2, Amount: *dec("25")})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteService(ctx, "owner-1", e.ServiceID))

	list, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Gimnasio", list[0].ServiceName)
}

func TestExpenseService_RecordQuery(t *testing.T) {
	svc, store := newExpenseService(t)
	ctx := context.Background()
	account := &models.Account{ID: "acc-1", OwnerID: "owner-1", Provider: models.ProviderWater, AccountIdentifier: "900123", Label: "Casa"}

	// 2026-02-01 03:00 UTC is still January in Guayaquil.
	res := okResult(models.ProviderWater, "900123", "40.00")
	res.FetchedAt = time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordQuery(ctx, account, res))

	res = okResult(models.ProviderWater, "900123", "48.00")
	res.FetchedAt = time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordQuery(ctx, account, res))

	// A second query in February replaces the amount.
	res = okResult(models.ProviderWater, "900123", "44.00")
	res.FetchedAt = time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordQuery(ctx, account, res))

	// Failures and results without a balance are ignored.
	require.NoError(t, svc.RecordQuery(ctx, account, models.FailedResult(models.ProviderWater, "timeout")))
	noBalance := okResult(models.ProviderWater, "900123", "1")
	noBalance.BalanceDue = nil
	require.NoError(t, svc.RecordQuery(ctx, account, noBalance))

	list, err := svc.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-02", list[0].Period())
	assert.Equal(t, "44", list[0].Amount.String())
	require.NotNil(t, list[0].Variation)
	assert.Equal(t, "4", list[0].Variation.String())
	assert.Equal(t, "2026-01", list[1].Period())
	assert.Equal(t, ServiceNameFor(account), list[0].ServiceName)

	services, err := store.Expenses().ListServices(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Interagua 900123 (Casa)", services[0].Name)
	assert.Equal(t, models.CategoryUtilities, services[0].Category)
}

func TestQueryAccount_RecordsExpense(t *testing.T) {
	store := repositories.NewMemoryStore()
	account := seedAccount(t, store.Accounts(), "acc-1", "owner-1", models.ProviderElectricity, "111", time.Now())
	provider := &fakeProvider{
		kind:  models.ProviderElectricity,
		query: func(id string) models.QueryResult { return okResult(models.ProviderElectricity, id, "32.10") },
	}
	queries := NewQueryService(store.Accounts(), scraper.Options{}, zap.NewNop(), provider)
	expenses := NewExpenseService(store.Expenses(), time.UTC, zap.NewNop())
	queries.SetResultRecorder(expenses)

	outcome := queries.QueryAccount(context.Background(), account, scraper.Options{})
	require.True(t, outcome.Result.OK)

	list, err := expenses.List(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "32.1", list[0].Amount.String())
}

func TestRecentExpenses_LimitsPeriods(t *testing.T) {
	svc, _ := newExpenseService(t)
	ctx := context.Background()
	for _, m := range []int{1, 2, 3, 4} {
		_, err := svc.AddManual(ctx, "owner-1", models.ManualExpenseRequest{Name: "Luz", Year: 2026, Month: m, Amount: *dec("10")})
		require.NoError(t, err)
		_, err = svc.AddManual(ctx, "owner-1", models.ManualExpenseRequest{Name: "Agua", Year: 2026, Month: m, Amount: *dec("5")})
		require.NoError(t, err)
	}

	recent, err := svc.RecentExpenses(ctx, "owner-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "2026-04", recent[0].Period)
	assert.Equal(t, "Agua", recent[0].Service)
	assert.Equal(t, "2026-03", recent[3].Period)
}
