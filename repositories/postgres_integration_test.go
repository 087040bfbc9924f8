//go:build integration

package repositories_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/config"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/utils"
)

var (
	sharedDB     *sql.DB
	sharedDBOnce sync.Once
	sharedDBErr  error
)

// getTestDB starts one PostgreSQL container per run and applies migrations.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	sharedDBOnce.Do(func() {
		sharedDB, sharedDBErr = setupTestDB()
	})
	if sharedDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedDBErr)
	}
	return sharedDB
}

func setupTestDB() (*sql.DB, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "aldia_test",
				"POSTGRES_USER":     "aldia",
				"POSTGRES_PASSWORD": "test_password",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	db, err := config.InitDB(ctx, config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://aldia:test_password@%s:%s/aldia_test?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if err := config.RunMigrations(db, zap.NewNop()); err != nil {
		return nil, err
	}
	return db, nil
}

func TestPostgresAccounts(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()

	sealer, err := utils.NewSealer(strings.Repeat("k", 32))
	require.NoError(t, err)
	repo := repositories.NewPostgresAccountRepository(db, sealer)

	owner := "owner-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	account := &models.Account{
		ID: uuid.NewString(), OwnerID: owner, Provider: models.ProviderElectricity,
		AccountIdentifier: "1000123456", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, account))

	dup := *account
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), repositories.ErrConflict)

	balance := decimal.RequireFromString("45.50")
	variation := decimal.RequireFromString("5.50")
	require.NoError(t, repo.SaveResult(ctx, account.ID, repositories.ResultUpdate{
		Result: models.QueryResult{
			OK: true, Provider: models.ProviderElectricity, AccountRef: "1000123456",
			BalanceDue: &balance, RawText: "Valor a pagar $45.50", FetchedAt: now,
		},
		Variation: &variation,
	}))

	// A failure replaces the last result only.
	require.NoError(t, repo.SaveResult(ctx, account.ID, repositories.ResultUpdate{
		Result: models.FailedResult(models.ProviderElectricity, "timeout"),
	}))

	got, err := repo.GetByID(ctx, owner, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastResult)
	assert.False(t, got.LastResult.OK)
	require.NotNil(t, got.LastSuccess)
	assert.True(t, got.LastSuccess.BalanceDue.Equal(balance))
	assert.Equal(t, "Valor a pagar $45.50", got.LastSuccess.RawText)
	require.NotNil(t, got.Variation)
	assert.True(t, got.Variation.Equal(variation))

	// Page text is sealed at rest.
	var stored string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT last_success::text FROM accounts WHERE id = $1`, account.ID).Scan(&stored))
	assert.NotContains(t, stored, "Valor a pagar")

	owners, err := repo.ListOwners(ctx)
	require.NoError(t, err)
	assert.Contains(t, owners, owner)

	_, err = repo.GetByID(ctx, "someone-else", account.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.GetByID(ctx, owner, "not-a-uuid")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, owner, account.ID))
	assert.ErrorIs(t, repo.Delete(ctx, owner, account.ID), repositories.ErrNotFound)
}

func TestPostgresReminders_Sweeps(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	repo := repositories.NewPostgresReminderRepository(db)

	owner := "owner-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	newReminder := func(due, notifyAt time.Time) *models.Reminder {
		return &models.Reminder{
			ID: uuid.NewString(), OwnerID: owner, Provider: models.ProviderWater, AccountIdentifier: "555",
			DueDate: due, NotifyAt: notifyAt, LeadDays: 2, NotifyTimeOfDay: "09:00",
			Status: models.ReminderActive, SavingsAdvice: []models.SavingsAdvice{},
			CreatedAt: now, UpdatedAt: now,
		}
	}

	due := newReminder(now.AddDate(0, 0, 2), now.Add(-time.Minute))
	later := newReminder(now.AddDate(0, 0, 5), now.Add(time.Hour))
	late := newReminder(now.AddDate(0, 0, -3), now.AddDate(0, 0, -5))
	for _, r := range []*models.Reminder{due, later, late} {
		require.NoError(t, repo.Create(ctx, r))
	}

	list, err := repo.ListDueForNotification(ctx, now, 100)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, due.ID)
	assert.Contains(t, ids, late.ID)
	assert.NotContains(t, ids, later.ID)

	changed, err := repo.MarkNotified(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkNotified(ctx, due.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// An edit based on the pre-sweep copy must not reset notified.
	assert.ErrorIs(t, repo.Update(ctx, due, repositories.StateOf(due)), repositories.ErrStale)
	missing := newReminder(now, now)
	assert.ErrorIs(t, repo.Update(ctx, missing, repositories.StateOf(missing)), repositories.ErrNotFound)

	n, err := repo.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	n, err = repo.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.GetByID(ctx, owner, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderOverdue, got.Status)

	advice := []models.SavingsAdvice{{Title: "💧 Revisa fugas", Description: "d", PotentialSaving: "$8", GeneratedAt: now}}
	require.NoError(t, repo.SetAdvice(ctx, owner, due.ID, advice))
	got, err = repo.GetByID(ctx, owner, due.ID)
	require.NoError(t, err)
	require.Len(t, got.SavingsAdvice, 1)
	assert.Equal(t, "💧 Revisa fugas", got.SavingsAdvice[0].Title)
	assert.True(t, got.Notified)

	stats, err := repo.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStats{Total: 3, Active: 2, Overdue: 1, NotificationsSent: 1}, stats)
}

func TestPostgresExpenses(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	repo := repositories.NewPostgresExpenseRepository(db)
	owner := "owner-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	luz := &models.RecurringService{
		ID: uuid.NewString(), OwnerID: owner, Name: "Luz", Category: models.CategoryUtilities,
		Frequency: models.FrequencyMonthly, Active: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateService(ctx, luz))
	dup := *luz
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.CreateService(ctx, &dup), repositories.ErrConflict)

	got, err := repo.GetServiceByName(ctx, owner, "Luz")
	require.NoError(t, err)
	assert.Equal(t, luz.ID, got.ID)
	assert.Equal(t, models.FrequencyMonthly, got.Frequency)
	_, err = repo.GetService(ctx, "someone-else", luz.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	newExpense := func(year, month int, amount string) *models.MonthlyExpense {
		return &models.MonthlyExpense{
			ID: uuid.NewString(), OwnerID: owner, ServiceID: luz.ID, ServiceName: luz.Name,
			Year: year, Month: month, Amount: decimal.RequireFromString(amount), CreatedAt: now, UpdatedAt: now,
		}
	}
	dec := newExpense(2025, 12, "40.00")
	jan := newExpense(2026, 1, "45.50")
	require.NoError(t, repo.CreateExpense(ctx, dec))
	require.NoError(t, repo.CreateExpense(ctx, jan))
	assert.ErrorIs(t, repo.CreateExpense(ctx, newExpense(2026, 1, "1")), repositories.ErrConflict)

	variation := decimal.RequireFromString("5.50")
	require.NoError(t, repo.SetExpenseAmount(ctx, owner, jan.ID, decimal.RequireFromString("45.50"), &variation))
	found, err := repo.FindExpense(ctx, owner, luz.ID, 2026, 1)
	require.NoError(t, err)
	assert.True(t, found.Amount.Equal(decimal.RequireFromString("45.50")))
	require.NotNil(t, found.Variation)
	assert.True(t, found.Variation.Equal(variation))
	_, err = repo.FindExpense(ctx, owner, luz.ID, 2026, 2)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	// The first payment time is kept.
	paid, err := repo.MarkExpensePaid(ctx, owner, jan.ID, now)
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	paid, err = repo.MarkExpensePaid(ctx, owner, jan.ID, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paid.PaidAt.Equal(now))
	_, err = repo.MarkExpensePaid(ctx, "someone-else", jan.ID, now)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	// History outlives the service.
	require.NoError(t, repo.DeleteService(ctx, owner, luz.ID))
	assert.ErrorIs(t, repo.DeleteService(ctx, owner, luz.ID), repositories.ErrNotFound)
	list, err := repo.ListExpenses(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, jan.ID, list[0].ID)
	assert.Equal(t, dec.ID, list[1].ID)

	_, err = repo.GetService(ctx, owner, "not-a-uuid")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestPostgresUsers(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	repo := repositories.NewPostgresUserRepository(db)

	id := "user-" + uuid.NewString()
	_, err := db.ExecContext(ctx, `INSERT INTO users (id, email, name) VALUES ($1, $2, $3)`, id, "ana@example.com", "Ana")
	require.NoError(t, err)

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
