package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/utils"
)

const (
	accountsCollection  = "accounts"
	remindersCollection = "reminders"
	servicesCollection  = "recurring_services"
	expensesCollection  = "monthly_expenses"
	usersCollection     = "users"
)

// EnsureMongoIndexes creates the uniqueness constraint on accounts and the
// indexes backing the two reminder sweeps.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(accountsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "provider", Value: 1}, {Key: "account_identifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}

	_, err = db.Collection(remindersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "due_date", Value: 1}}},
		{Keys: bson.D{{Key: "notify_at", Value: 1}, {Key: "notified", Value: 1}}},
		{Keys: bson.D{{Key: "due_date", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create reminder indexes: %w", err)
	}

	_, err = db.Collection(servicesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create service indexes: %w", err)
	}

	_, err = db.Collection(expensesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1}, {Key: "service_id", Value: 1},
				{Key: "year", Value: 1}, {Key: "month", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "year", Value: -1}, {Key: "month", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create expense indexes: %w", err)
	}
	return nil
}

// ============================================================================
// DOCUMENTS
// ============================================================================

// Decimals are stored as strings; bson has no codec for decimal.Decimal.
type resultDoc struct {
	OK              bool       `bson:"ok"`
	Provider        string     `bson:"provider"`
	AccountRef      string     `bson:"account_ref,omitempty"`
	BalanceDue      *string    `bson:"balance_due,omitempty"`
	PeriodsOwed     *int       `bson:"periods_owed,omitempty"`
	DueDate         *time.Time `bson:"due_date,omitempty"`
	BusinessUnit    *string    `bson:"business_unit,omitempty"`
	Identification  *string    `bson:"identification,omitempty"`
	Status          *string    `bson:"status,omitempty"`
	HolderName      *string    `bson:"holder_name,omitempty"`
	Address         *string    `bson:"address,omitempty"`
	IssueDate       *time.Time `bson:"issue_date,omitempty"`
	LastPayment     *string    `bson:"last_payment,omitempty"`
	LastPaymentDate *time.Time `bson:"last_payment_date,omitempty"`
	ErrorMessage    string     `bson:"error,omitempty"`
	RawText         string     `bson:"raw_text,omitempty"`
	FetchedAt       time.Time  `bson:"fetched_at"`
}

type accountDoc struct {
	ID                string     `bson:"_id"`
	OwnerID           string     `bson:"owner_id"`
	Provider          string     `bson:"provider"`
	AccountIdentifier string     `bson:"account_identifier"`
	Label             string     `bson:"label"`
	LastResult        *resultDoc `bson:"last_result,omitempty"`
	LastSuccess       *resultDoc `bson:"last_success,omitempty"`
	Variation         *string    `bson:"variation,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

type adviceDoc struct {
	Title           string    `bson:"title"`
	Description     string    `bson:"description"`
	PotentialSaving string    `bson:"potential_saving"`
	GeneratedAt     time.Time `bson:"generated_at"`
}

type reminderDoc struct {
	ID                string      `bson:"_id"`
	OwnerID           string      `bson:"owner_id"`
	Provider          string      `bson:"provider"`
	AccountIdentifier string      `bson:"account_identifier"`
	DueDate           time.Time   `bson:"due_date"`
	NotifyAt          time.Time   `bson:"notify_at"`
	LeadDays          int         `bson:"lead_days"`
	NotifyTimeOfDay   string      `bson:"notify_time"`
	Status            string      `bson:"status"`
	Notified          bool        `bson:"notified"`
	Amount            *string     `bson:"amount,omitempty"`
	Notes             *string     `bson:"notes,omitempty"`
	SavingsAdvice     []adviceDoc `bson:"savings_advice"`
	CreatedAt         time.Time   `bson:"created_at"`
	UpdatedAt         time.Time   `bson:"updated_at"`
}

type serviceDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Name      string    `bson:"name"`
	Category  string    `bson:"category"`
	Frequency string    `bson:"frequency"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type expenseDoc struct {
	ID          string     `bson:"_id"`
	OwnerID     string     `bson:"owner_id"`
	ServiceID   string     `bson:"service_id"`
	ServiceName string     `bson:"service_name"`
	Year        int        `bson:"year"`
	Month       int        `bson:"month"`
	Amount      string     `bson:"amount"`
	Variation   *string    `bson:"variation,omitempty"`
	Paid        bool       `bson:"paid"`
	PaidAt      *time.Time `bson:"paid_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

type userDoc struct {
	ID    string `bson:"_id"`
	Email string `bson:"email"`
	Name  string `bson:"name"`
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}

func toResultDoc(r *models.QueryResult, sealer *utils.Sealer) (*resultDoc, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := sealer.Seal(r.RawText)
	if err != nil {
		return nil, fmt.Errorf("failed to seal raw text: %w", err)
	}
	return &resultDoc{
		OK:              r.OK,
		Provider:        string(r.Provider),
		AccountRef:      r.AccountRef,
		BalanceDue:      decimalString(r.BalanceDue),
		PeriodsOwed:     r.PeriodsOwed,
		DueDate:         r.DueDate,
		BusinessUnit:    r.BusinessUnit,
		Identification:  r.Identification,
		Status:          r.Status,
		HolderName:      r.HolderName,
		Address:         r.Address,
		IssueDate:       r.IssueDate,
		LastPayment:     decimalString(r.LastPayment),
		LastPaymentDate: r.LastPaymentDate,
		ErrorMessage:    r.ErrorMessage,
		RawText:         raw,
		FetchedAt:       r.FetchedAt,
	}, nil
}

func (d *resultDoc) toModel(sealer *utils.Sealer) (*models.QueryResult, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := sealer.Open(d.RawText)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw text: %w", err)
	}
	return &models.QueryResult{
		OK:              d.OK,
		Provider:        models.ProviderKind(d.Provider),
		AccountRef:      d.AccountRef,
		BalanceDue:      parseDecimal(d.BalanceDue),
		PeriodsOwed:     d.PeriodsOwed,
		DueDate:         d.DueDate,
		BusinessUnit:    d.BusinessUnit,
		Identification:  d.Identification,
		Status:          d.Status,
		HolderName:      d.HolderName,
		Address:         d.Address,
		IssueDate:       d.IssueDate,
		LastPayment:     parseDecimal(d.LastPayment),
		LastPaymentDate: d.LastPaymentDate,
		ErrorMessage:    d.ErrorMessage,
		RawText:         raw,
		FetchedAt:       d.FetchedAt,
	}, nil
}

func toAdviceDocs(advice []models.SavingsAdvice) []adviceDoc {
	docs := make([]adviceDoc, 0, len(advice))
	for _, a := range advice {
		docs = append(docs, adviceDoc(a))
	}
	return docs
}

func toReminderDoc(rem *models.Reminder) reminderDoc {
	return reminderDoc{
		ID:                rem.ID,
		OwnerID:           rem.OwnerID,
		Provider:          string(rem.Provider),
		AccountIdentifier: rem.AccountIdentifier,
		DueDate:           rem.DueDate,
		NotifyAt:          rem.NotifyAt,
		LeadDays:          rem.LeadDays,
		NotifyTimeOfDay:   rem.NotifyTimeOfDay,
		Status:            string(rem.Status),
		Notified:          rem.Notified,
		Amount:            decimalString(rem.Amount),
		Notes:             rem.Notes,
		SavingsAdvice:     toAdviceDocs(rem.SavingsAdvice),
		CreatedAt:         rem.CreatedAt,
		UpdatedAt:         rem.UpdatedAt,
	}
}

func (d reminderDoc) toModel() *models.Reminder {
	advice := make([]models.SavingsAdvice, 0, len(d.SavingsAdvice))
	for _, a := range d.SavingsAdvice {
		advice = append(advice, models.SavingsAdvice(a))
	}
	return &models.Reminder{
		ID:                d.ID,
		OwnerID:           d.OwnerID,
		Provider:          models.ProviderKind(d.Provider),
		AccountIdentifier: d.AccountIdentifier,
		DueDate:           d.DueDate,
		NotifyAt:          d.NotifyAt,
		LeadDays:          d.LeadDays,
		NotifyTimeOfDay:   d.NotifyTimeOfDay,
		Status:            models.ReminderStatus(d.Status),
		Notified:          d.Notified,
		Amount:            parseDecimal(d.Amount),
		Notes:             d.Notes,
		SavingsAdvice:     advice,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ============================================================================
// ACCOUNTS
// ============================================================================

type mongoAccountRepository struct {
	coll   *mongo.Collection
	sealer *utils.Sealer
}

func NewMongoAccountRepository(db *mongo.Database, sealer *utils.Sealer) AccountRepository {
	return &mongoAccountRepository{coll: db.Collection(accountsCollection), sealer: sealer}
}

var _ AccountRepository = (*mongoAccountRepository)(nil)

func (r *mongoAccountRepository) toModel(d *accountDoc) (*models.Account, error) {
	lastResult, err := d.LastResult.toModel(r.sealer)
	if err != nil {
		return nil, err
	}
	lastSuccess, err := d.LastSuccess.toModel(r.sealer)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		ID:                d.ID,
		OwnerID:           d.OwnerID,
		Provider:          models.ProviderKind(d.Provider),
		AccountIdentifier: d.AccountIdentifier,
		Label:             d.Label,
		LastResult:        lastResult,
		LastSuccess:       lastSuccess,
		Variation:         parseDecimal(d.Variation),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

func (r *mongoAccountRepository) Create(ctx context.Context, a *models.Account) error {
	doc := accountDoc{
		ID:                a.ID,
		OwnerID:           a.OwnerID,
		Provider:          string(a.Provider),
		AccountIdentifier: a.AccountIdentifier,
		Label:             a.Label,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	_, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Account, error) {
	var doc accountDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return r.toModel(&doc)
}

func (r *mongoAccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.D{{Key: "owner_id", Value: ownerID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}

	accounts := make([]*models.Account, 0, len(docs))
	for i := range docs {
		a, err := r.toModel(&docs[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (r *mongoAccountRepository) ListOwners(ctx context.Context) ([]string, error) {
	var owners []string
	if err := r.coll.Distinct(ctx, "owner_id", bson.D{}).Decode(&owners); err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}

func (r *mongoAccountRepository) SaveResult(ctx context.Context, id string, update ResultUpdate) error {
	stored := update.Result
	stored.Screenshot = ""
	doc, err := toResultDoc(&stored, r.sealer)
	if err != nil {
		return err
	}

	set := bson.D{{Key: "last_result", Value: doc}, {Key: "updated_at", Value: time.Now()}}
	if stored.OK {
		set = append(set,
			bson.E{Key: "last_success", Value: doc},
			bson.E{Key: "variation", Value: decimalString(update.Variation)})
	}
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to save query result: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccountRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// REMINDERS
// ============================================================================

type mongoReminderRepository struct {
	coll *mongo.Collection
}

func NewMongoReminderRepository(db *mongo.Database) ReminderRepository {
	return &mongoReminderRepository{coll: db.Collection(remindersCollection)}
}

var _ ReminderRepository = (*mongoReminderRepository)(nil)

func (r *mongoReminderRepository) find(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]*models.Reminder, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []reminderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Reminder, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r *mongoReminderRepository) Create(ctx context.Context, rem *models.Reminder) error {
	_, err := r.coll.InsertOne(ctx, toReminderDoc(rem))
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *mongoReminderRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	var doc reminderDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoReminderRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Reminder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}})
	out, err := r.find(ctx, bson.D{{Key: "owner_id", Value: ownerID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return out, nil
}

func (r *mongoReminderRepository) Update(ctx context.Context, rem *models.Reminder, expected ReminderState) error {
	set := bson.D{
		{Key: "due_date", Value: rem.DueDate},
		{Key: "notify_at", Value: rem.NotifyAt},
		{Key: "lead_days", Value: rem.LeadDays},
		{Key: "notify_time", Value: rem.NotifyTimeOfDay},
		{Key: "status", Value: string(rem.Status)},
		{Key: "notified", Value: rem.Notified},
		{Key: "amount", Value: decimalString(rem.Amount)},
		{Key: "notes", Value: rem.Notes},
		{Key: "updated_at", Value: rem.UpdatedAt},
	}
	key := bson.D{{Key: "_id", Value: rem.ID}, {Key: "owner_id", Value: rem.OwnerID}}
	filter := append(bson.D{}, key...)
	filter = append(filter,
		bson.E{Key: "status", Value: string(expected.Status)},
		bson.E{Key: "notified", Value: expected.Notified})

	res, err := r.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check reminder: %w", err)
	}
	if n > 0 {
		return ErrStale
	}
	return ErrNotFound
}

func (r *mongoReminderRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}})
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoReminderRepository) ListDueForNotification(ctx context.Context, now time.Time, limit int) ([]*models.Reminder, error) {
	filter := bson.D{
		{Key: "status", Value: string(models.ReminderActive)},
		{Key: "notified", Value: false},
		{Key: "notify_at", Value: bson.D{{Key: "$lte", Value: now}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "notify_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return out, nil
}

func (r *mongoReminderRepository) MarkNotified(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "notified", Value: false},
			{Key: "status", Value: string(models.ReminderActive)},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "notified", Value: true},
			{Key: "updated_at", Value: time.Now()},
		}}})
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder notified: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoReminderRepository) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.D{
			{Key: "status", Value: string(models.ReminderActive)},
			{Key: "due_date", Value: bson.D{{Key: "$lt", Value: cutoff}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(models.ReminderOverdue)},
			{Key: "updated_at", Value: time.Now()},
		}}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark reminders overdue: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoReminderRepository) SetAdvice(ctx context.Context, ownerID, id string, advice []models.SavingsAdvice) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "savings_advice", Value: toAdviceDocs(advice)},
			{Key: "updated_at", Value: time.Now()},
		}}})
	if err != nil {
		return fmt.Errorf("failed to save savings advice: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoReminderRepository) Stats(ctx context.Context, ownerID string) (models.ReminderStats, error) {
	var st models.ReminderStats
	count := func(extra ...bson.E) (int, error) {
		filter := append(bson.D{{Key: "owner_id", Value: ownerID}}, extra...)
		n, err := r.coll.CountDocuments(ctx, filter)
		return int(n), err
	}

	var err error
	if st.Total, err = count(); err != nil {
		return st, fmt.Errorf("failed to count reminders: %w", err)
	}
	if st.Active, err = count(bson.E{Key: "status", Value: string(models.ReminderActive)}); err != nil {
		return st, fmt.Errorf("failed to count reminders: %w", err)
	}
	if st.Completed, err = count(bson.E{Key: "status", Value: string(models.ReminderCompleted)}); err != nil {
		return st, fmt.Errorf("failed to count reminders: %w", err)
	}
	if st.Overdue, err = count(bson.E{Key: "status", Value: string(models.ReminderOverdue)}); err != nil {
		return st, fmt.Errorf("failed to count reminders: %w", err)
	}
	if st.NotificationsSent, err = count(bson.E{Key: "notified", Value: true}); err != nil {
		return st, fmt.Errorf("failed to count reminders: %w", err)
	}
	return st, nil
}

// ============================================================================
// EXPENSES
// ============================================================================

type mongoExpenseRepository struct {
	services *mongo.Collection
	expenses *mongo.Collection
}

func NewMongoExpenseRepository(db *mongo.Database) ExpenseRepository {
	return &mongoExpenseRepository{
		services: db.Collection(servicesCollection),
		expenses: db.Collection(expensesCollection),
	}
}

var _ ExpenseRepository = (*mongoExpenseRepository)(nil)

func (d serviceDoc) toModel() *models.RecurringService {
	return &models.RecurringService{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		Category:  models.ServiceCategory(d.Category),
		Frequency: models.Frequency(d.Frequency),
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d expenseDoc) toModel() *models.MonthlyExpense {
	e := &models.MonthlyExpense{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		ServiceID:   d.ServiceID,
		ServiceName: d.ServiceName,
		Year:        d.Year,
		Month:       d.Month,
		Variation:   parseDecimal(d.Variation),
		Paid:        d.Paid,
		PaidAt:      d.PaidAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if amount := parseDecimal(&d.Amount); amount != nil {
		e.Amount = *amount
	}
	return e
}

func (r *mongoExpenseRepository) CreateService(ctx context.Context, sv *models.RecurringService) error {
	_, err := r.services.InsertOne(ctx, serviceDoc{
		ID:        sv.ID,
		OwnerID:   sv.OwnerID,
		Name:      sv.Name,
		Category:  string(sv.Category),
		Frequency: string(sv.Frequency),
		Active:    sv.Active,
		CreatedAt: sv.CreatedAt,
		UpdatedAt: sv.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *mongoExpenseRepository) findService(ctx context.Context, filter bson.D) (*models.RecurringService, error) {
	var doc serviceDoc
	err := r.services.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoExpenseRepository) GetService(ctx context.Context, ownerID, id string) (*models.RecurringService, error) {
	return r.findService(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}})
}

func (r *mongoExpenseRepository) GetServiceByName(ctx context.Context, ownerID, name string) (*models.RecurringService, error) {
	return r.findService(ctx, bson.D{{Key: "owner_id", Value: ownerID}, {Key: "name", Value: name}})
}

func (r *mongoExpenseRepository) ListServices(ctx context.Context, ownerID string) ([]*models.RecurringService, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.services.Find(ctx, bson.D{{Key: "owner_id", Value: ownerID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	var docs []serviceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	out := make([]*models.RecurringService, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r *mongoExpenseRepository) DeleteService(ctx context.Context, ownerID, id string) error {
	res, err := r.services.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}})
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoExpenseRepository) CreateExpense(ctx context.Context, e *models.MonthlyExpense) error {
	_, err := r.expenses.InsertOne(ctx, expenseDoc{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		ServiceID:   e.ServiceID,
		ServiceName: e.ServiceName,
		Year:        e.Year,
		Month:       e.Month,
		Amount:      e.Amount.String(),
		Variation:   decimalString(e.Variation),
		Paid:        e.Paid,
		PaidAt:      e.PaidAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (r *mongoExpenseRepository) FindExpense(ctx context.Context, ownerID, serviceID string, year, month int) (*models.MonthlyExpense, error) {
	var doc expenseDoc
	err := r.expenses.FindOne(ctx, bson.D{
		{Key: "owner_id", Value: ownerID},
		{Key: "service_id", Value: serviceID},
		{Key: "year", Value: year},
		{Key: "month", Value: month},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoExpenseRepository) SetExpenseAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal, variation *decimal.Decimal) error {
	set := bson.D{{Key: "amount", Value: amount.String()}, {Key: "updated_at", Value: time.Now()}}
	var update bson.D
	if v := decimalString(variation); v != nil {
		set = append(set, bson.E{Key: "variation", Value: *v})
		update = bson.D{{Key: "$set", Value: set}}
	} else {
		update = bson.D{{Key: "$set", Value: set}, {Key: "$unset", Value: bson.D{{Key: "variation", Value: ""}}}}
	}

	res, err := r.expenses.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}, update)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoExpenseRepository) MarkExpensePaid(ctx context.Context, ownerID, id string, at time.Time) (*models.MonthlyExpense, error) {
	key := bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}
	unpaid := append(bson.D{}, key...)
	unpaid = append(unpaid, bson.E{Key: "paid", Value: false})

	_, err := r.expenses.UpdateOne(ctx, unpaid, bson.D{{Key: "$set", Value: bson.D{
		{Key: "paid", Value: true},
		{Key: "paid_at", Value: at},
		{Key: "updated_at", Value: at},
	}}})
	if err != nil {
		return nil, fmt.Errorf("failed to mark expense paid: %w", err)
	}

	var doc expenseDoc
	err = r.expenses.FindOne(ctx, key).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoExpenseRepository) ListExpenses(ctx context.Context, ownerID string) ([]*models.MonthlyExpense, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "year", Value: -1}, {Key: "month", Value: -1},
		{Key: "service_name", Value: 1}, {Key: "_id", Value: 1},
	})
	cur, err := r.expenses.Find(ctx, bson.D{{Key: "owner_id", Value: ownerID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode expenses: %w", err)
	}
	out := make([]*models.MonthlyExpense, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// ============================================================================
// USERS
// ============================================================================

type mongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *mongoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &models.User{ID: doc.ID, Email: doc.Email, Name: doc.Name}, nil
}
