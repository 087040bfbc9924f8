package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/utils"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// validID filters out ids that would make PostgreSQL reject the uuid cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ============================================================================
// ACCOUNTS
// ============================================================================

type postgresAccountRepository struct {
	db     *sql.DB
	sealer *utils.Sealer
}

// NewPostgresAccountRepository stores accounts in PostgreSQL. sealer may be
// nil, in which case raw page text is stored in clear.
func NewPostgresAccountRepository(db *sql.DB, sealer *utils.Sealer) AccountRepository {
	return &postgresAccountRepository{db: db, sealer: sealer}
}

var _ AccountRepository = (*postgresAccountRepository)(nil)

const accountColumns = `id, owner_id, provider, account_identifier, label,
	last_result, last_success, variation, created_at, updated_at`

func (r *postgresAccountRepository) scan(row rowScanner) (*models.Account, error) {
	var (
		a                       models.Account
		lastResult, lastSuccess []byte
		variation               decimal.NullDecimal
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Provider, &a.AccountIdentifier, &a.Label,
		&lastResult, &lastSuccess, &variation, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.LastResult, err = decodeResult(lastResult, r.sealer); err != nil {
		return nil, err
	}
	if a.LastSuccess, err = decodeResult(lastSuccess, r.sealer); err != nil {
		return nil, err
	}
	a.Variation = decimalPtr(variation)
	return &a, nil
}

func (r *postgresAccountRepository) Create(ctx context.Context, a *models.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, provider, account_identifier, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.OwnerID, a.Provider, a.AccountIdentifier, a.Label, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *postgresAccountRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Account, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	a, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *postgresAccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *postgresAccountRepository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM accounts ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func (r *postgresAccountRepository) SaveResult(ctx context.Context, id string, update ResultUpdate) error {
	if !validID(id) {
		return ErrNotFound
	}
	encoded, err := encodeResult(&update.Result, r.sealer)
	if err != nil {
		return err
	}

	// jsonb parameters go as text; lib/pq would send []byte as bytea.
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			last_result  = $2::jsonb,
			last_success = CASE WHEN $3::boolean THEN $2::jsonb ELSE last_success END,
			variation    = CASE WHEN $3::boolean THEN $4::numeric ELSE variation END,
			updated_at   = NOW()
		WHERE id = $1`,
		id, string(encoded), update.Result.OK, nullDecimal(update.Variation))
	if err != nil {
		return fmt.Errorf("failed to save query result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresAccountRepository) Delete(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// REMINDERS
// ============================================================================

type postgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) ReminderRepository {
	return &postgresReminderRepository{db: db}
}

var _ ReminderRepository = (*postgresReminderRepository)(nil)

const reminderColumns = `id, owner_id, provider, account_identifier, due_date, notify_at,
	lead_days, notify_time, status, notified, amount, notes, savings_advice, created_at, updated_at`

func scanReminder(row rowScanner) (*models.Reminder, error) {
	var (
		rem    models.Reminder
		amount decimal.NullDecimal
		notes  sql.NullString
		advice []byte
	)
	err := row.Scan(&rem.ID, &rem.OwnerID, &rem.Provider, &rem.AccountIdentifier, &rem.DueDate, &rem.NotifyAt,
		&rem.LeadDays, &rem.NotifyTimeOfDay, &rem.Status, &rem.Notified, &amount, &notes, &advice,
		&rem.CreatedAt, &rem.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rem.Amount = decimalPtr(amount)
	if notes.Valid {
		rem.Notes = &notes.String
	}
	if len(advice) > 0 {
		if err := json.Unmarshal(advice, &rem.SavingsAdvice); err != nil {
			return nil, fmt.Errorf("failed to decode savings advice: %w", err)
		}
	}
	return &rem, nil
}

func encodeAdvice(advice []models.SavingsAdvice) (string, error) {
	if advice == nil {
		advice = []models.SavingsAdvice{}
	}
	b, err := json.Marshal(advice)
	return string(b), err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (r *postgresReminderRepository) queryReminders(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *postgresReminderRepository) Create(ctx context.Context, rem *models.Reminder) error {
	advice, err := encodeAdvice(rem.SavingsAdvice)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reminders (id, owner_id, provider, account_identifier, due_date, notify_at,
			lead_days, notify_time, status, notified, amount, notes, savings_advice, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15)`,
		rem.ID, rem.OwnerID, rem.Provider, rem.AccountIdentifier, rem.DueDate, rem.NotifyAt,
		rem.LeadDays, rem.NotifyTimeOfDay, rem.Status, rem.Notified, nullDecimal(rem.Amount), nullString(rem.Notes),
		advice, rem.CreatedAt, rem.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *postgresReminderRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 AND owner_id = $2`, id, ownerID)
	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return rem, nil
}

func (r *postgresReminderRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Reminder, error) {
	out, err := r.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = $1 ORDER BY due_date, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return out, nil
}

func (r *postgresReminderRepository) Update(ctx context.Context, rem *models.Reminder, expected ReminderState) error {
	if !validID(rem.ID) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders SET
			due_date = $3, notify_at = $4, lead_days = $5, notify_time = $6,
			status = $7, notified = $8, amount = $9, notes = $10, updated_at = $11
		WHERE id = $1 AND owner_id = $2 AND status = $12 AND notified = $13`,
		rem.ID, rem.OwnerID, rem.DueDate, rem.NotifyAt, rem.LeadDays, rem.NotifyTimeOfDay,
		rem.Status, rem.Notified, nullDecimal(rem.Amount), nullString(rem.Notes), rem.UpdatedAt,
		expected.Status, expected.Notified)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reminders WHERE id = $1 AND owner_id = $2)`,
		rem.ID, rem.OwnerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check reminder: %w", err)
	}
	if exists {
		return ErrStale
	}
	return ErrNotFound
}

func (r *postgresReminderRepository) Delete(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresReminderRepository) ListDueForNotification(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	out, err := r.queryReminders(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE status = 'active' AND notified = FALSE AND notify_at <= $1
		ORDER BY notify_at, id
		LIMIT $2`, now, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return out, nil
}

func (r *postgresReminderRepository) MarkNotified(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders SET notified = TRUE, updated_at = NOW()
		WHERE id = $1 AND notified = FALSE AND status = 'active'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postgresReminderRepository) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders SET status = 'overdue', updated_at = NOW()
		WHERE status = 'active' AND due_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark reminders overdue: %w", err)
	}
	return res.RowsAffected()
}

func (r *postgresReminderRepository) SetAdvice(ctx context.Context, ownerID, id string, advice []models.SavingsAdvice) error {
	if !validID(id) {
		return ErrNotFound
	}
	encoded, err := encodeAdvice(advice)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders SET savings_advice = $3::jsonb, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2`, id, ownerID, encoded)
	if err != nil {
		return fmt.Errorf("failed to save savings advice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresReminderRepository) Stats(ctx context.Context, ownerID string) (models.ReminderStats, error) {
	var st models.ReminderStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COUNT(*) FILTER (WHERE notified)
		FROM reminders WHERE owner_id = $1`, ownerID,
	).Scan(&st.Total, &st.Active, &st.Completed, &st.Overdue, &st.NotificationsSent)
	if err != nil {
		return st, fmt.Errorf("failed to compute reminder stats: %w", err)
	}
	return st, nil
}

// ============================================================================
// EXPENSES
// ============================================================================

type postgresExpenseRepository struct {
	db *sql.DB
}

func NewPostgresExpenseRepository(db *sql.DB) ExpenseRepository {
	return &postgresExpenseRepository{db: db}
}

var _ ExpenseRepository = (*postgresExpenseRepository)(nil)

const serviceColumns = `id, owner_id, name, category, frequency, active, created_at, updated_at`

func scanService(row rowScanner) (*models.RecurringService, error) {
	var sv models.RecurringService
	err := row.Scan(&sv.ID, &sv.OwnerID, &sv.Name, &sv.Category, &sv.Frequency, &sv.Active,
		&sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

const expenseColumns = `id, owner_id, service_id, service_name, year, month, amount, variation,
	paid, paid_at, created_at, updated_at`

func scanExpense(row rowScanner) (*models.MonthlyExpense, error) {
	var (
		e         models.MonthlyExpense
		variation decimal.NullDecimal
		paidAt    sql.NullTime
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.ServiceID, &e.ServiceName, &e.Year, &e.Month, &e.Amount, &variation,
		&e.Paid, &paidAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Variation = decimalPtr(variation)
	if paidAt.Valid {
		e.PaidAt = &paidAt.Time
	}
	return &e, nil
}

func (r *postgresExpenseRepository) CreateService(ctx context.Context, sv *models.RecurringService) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_services (id, owner_id, name, category, frequency, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sv.ID, sv.OwnerID, sv.Name, sv.Category, sv.Frequency, sv.Active, sv.CreatedAt, sv.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *postgresExpenseRepository) getService(ctx context.Context, query string, args ...any) (*models.RecurringService, error) {
	sv, err := scanService(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return sv, nil
}

func (r *postgresExpenseRepository) GetService(ctx context.Context, ownerID, id string) (*models.RecurringService, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return r.getService(ctx,
		`SELECT `+serviceColumns+` FROM recurring_services WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *postgresExpenseRepository) GetServiceByName(ctx context.Context, ownerID, name string) (*models.RecurringService, error) {
	return r.getService(ctx,
		`SELECT `+serviceColumns+` FROM recurring_services WHERE owner_id = $1 AND name = $2`, ownerID, name)
}

func (r *postgresExpenseRepository) ListServices(ctx context.Context, ownerID string) ([]*models.RecurringService, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM recurring_services WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*models.RecurringService
	for rows.Next() {
		sv, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (r *postgresExpenseRepository) DeleteService(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_services WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresExpenseRepository) CreateExpense(ctx context.Context, e *models.MonthlyExpense) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_expenses (id, owner_id, service_id, service_name, year, month, amount, variation,
			paid, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.OwnerID, e.ServiceID, e.ServiceName, e.Year, e.Month, e.Amount, nullDecimal(e.Variation),
		e.Paid, e.PaidAt, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (r *postgresExpenseRepository) FindExpense(ctx context.Context, ownerID, serviceID string, year, month int) (*models.MonthlyExpense, error) {
	if !validID(serviceID) {
		return nil, ErrNotFound
	}
	e, err := scanExpense(r.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM monthly_expenses
		WHERE owner_id = $1 AND service_id = $2 AND year = $3 AND month = $4`,
		ownerID, serviceID, year, month))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (r *postgresExpenseRepository) SetExpenseAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal, variation *decimal.Decimal) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE monthly_expenses SET amount = $3, variation = $4, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID, amount, nullDecimal(variation))
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresExpenseRepository) MarkExpensePaid(ctx context.Context, ownerID, id string, at time.Time) (*models.MonthlyExpense, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	e, err := scanExpense(r.db.QueryRowContext(ctx, `
		UPDATE monthly_expenses SET
			paid = TRUE,
			paid_at = COALESCE(paid_at, $3),
			updated_at = CASE WHEN paid THEN updated_at ELSE $3 END
		WHERE id = $1 AND owner_id = $2
		RETURNING `+expenseColumns, id, ownerID, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark expense paid: %w", err)
	}
	return e, nil
}

func (r *postgresExpenseRepository) ListExpenses(ctx context.Context, ownerID string) ([]*models.MonthlyExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM monthly_expenses
		WHERE owner_id = $1
		ORDER BY year DESC, month DESC, service_name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []*models.MonthlyExpense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ============================================================================
// USERS
// ============================================================================

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
