package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/scraper"
	"github.com/LovationAdmin/aldia-api/utils"
)

// Provider queries one utility portal. scraper.Driver is the production
// implementation.
type Provider interface {
	Kind() models.ProviderKind
	Query(ctx context.Context, identifier string, opts scraper.Options) models.QueryResult
}

var _ Provider = (*scraper.Driver)(nil)

// QueryOutcome is the per-account result of an orchestrated query.
type QueryOutcome struct {
	AccountID         string              `json:"account_id"`
	Provider          models.ProviderKind `json:"provider"`
	AccountIdentifier string              `json:"account_identifier"`
	Label             string              `json:"label,omitempty"`
	Result            models.QueryResult  `json:"result"`

	PreviousBalance *decimal.Decimal `json:"previous_balance,omitempty"`
	Variation       *decimal.Decimal `json:"variation,omitempty"`
	Trend           models.Trend     `json:"trend,omitempty"`

	// PersistError is set when the result could not be saved on the account.
	PersistError string `json:"persist_error,omitempty"`
}

// QueryProgress is pushed to a ProgressReporter after each account of a batch.
type QueryProgress struct {
	Index   int          `json:"index"`
	Total   int          `json:"total"`
	Outcome QueryOutcome `json:"outcome"`
}

// ProgressReporter receives batch progress for one owner.
type ProgressReporter interface {
	ReportQuery(ownerID string, progress QueryProgress)
}

// ResultRecorder receives each saved account result. ExpenseService is the
// production implementation.
type ResultRecorder interface {
	RecordQuery(ctx context.Context, account *models.Account, result models.QueryResult) error
}

var _ ResultRecorder = (*ExpenseService)(nil)

// RequerySummary counts the work of a scheduled re-query over every owner.
type RequerySummary struct {
	Owners   int `json:"owners"`
	Accounts int `json:"accounts"`
	Failed   int `json:"failed"`
}

// QueryService runs provider queries and keeps each account's last result.
// Batches are strictly sequential.
type QueryService struct {
	providers map[models.ProviderKind]Provider
	accounts  repositories.AccountRepository
	defaults  scraper.Options
	progress  ProgressReporter
	recorder  ResultRecorder
	logger    *zap.Logger
}

func NewQueryService(
	accounts repositories.AccountRepository,
	defaults scraper.Options,
	logger *zap.Logger,
	providers ...Provider,
) *QueryService {
	byKind := make(map[models.ProviderKind]Provider, len(providers))
	for _, p := range providers {
		byKind[p.Kind()] = p
	}
	return &QueryService{
		providers: byKind,
		accounts:  accounts,
		defaults:  defaults,
		logger:    logger.Named("query-service"),
	}
}

// SetProgressReporter attaches a progress sink. Call it during wiring, before
// the service handles requests.
func (s *QueryService) SetProgressReporter(r ProgressReporter) {
	s.progress = r
}

// SetResultRecorder attaches a sink for saved results. Like
// SetProgressReporter it is called during wiring.
func (s *QueryService) SetResultRecorder(r ResultRecorder) {
	s.recorder = r
}

// Defaults returns the options used when a caller does not override them.
func (s *QueryService) Defaults() scraper.Options {
	return s.defaults
}

// QueryOne queries a provider for an identifier without touching storage.
// An unsupported provider yields an ok=false result.
func (s *QueryService) QueryOne(ctx context.Context, kind models.ProviderKind, identifier string, opts scraper.Options) models.QueryResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.FailedResult(kind, "account identifier is required")
	}
	provider, ok := s.providers[kind]
	if !ok {
		return models.FailedResult(kind, fmt.Sprintf("unsupported provider %q", kind))
	}
	return s.safeQuery(ctx, provider, identifier, opts)
}

// safeQuery shields the batch from a provider that panics instead of
// returning a failed result.
func (s *QueryService) safeQuery(ctx context.Context, p Provider, identifier string, opts scraper.Options) (result models.QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Provider panicked",
				zap.String("provider", string(p.Kind())),
				utils.AccountField(identifier),
				zap.Any("panic", r))
			result = models.FailedResult(p.Kind(), fmt.Sprintf("unexpected failure: %v", r))
		}
	}()
	return p.Query(ctx, identifier, opts)
}

// QueryAccount queries one saved account, computes the balance variation
// against its last successful result and saves the new result right away.
// A save failure is logged and recorded on the outcome. Saved results are
// then passed to the result recorder, whose failures are only logged.
func (s *QueryService) QueryAccount(ctx context.Context, account *models.Account, opts scraper.Options) QueryOutcome {
	outcome := QueryOutcome{
		AccountID:         account.ID,
		Provider:          account.Provider,
		AccountIdentifier: account.AccountIdentifier,
		Label:             account.Label,
	}

	outcome.Result = s.QueryOne(ctx, account.Provider, account.AccountIdentifier, opts)

	if outcome.Result.OK && account.LastSuccess != nil {
		outcome.PreviousBalance = account.LastSuccess.BalanceDue
	}
	outcome.Variation = Variation(outcome.PreviousBalance, outcome.Result)
	if outcome.Variation != nil {
		outcome.Trend = models.TrendOf(*outcome.Variation)
	}

	update := repositories.ResultUpdate{Result: outcome.Result, Variation: outcome.Variation}
	if err := s.accounts.SaveResult(ctx, account.ID, update); err != nil {
		s.logger.Error("Failed to save query result",
			zap.String("account_id", account.ID),
			utils.AccountField(account.AccountIdentifier),
			zap.Error(err))
		outcome.PersistError = "could not save result"
		return outcome
	}

	if s.recorder != nil {
		if err := s.recorder.RecordQuery(ctx, account, outcome.Result); err != nil {
			s.logger.Warn("Failed to record expense",
				zap.String("account_id", account.ID),
				zap.Error(err))
		}
	}
	return outcome
}

// Variation is the new balance minus the previous one. It is nil unless the
// result succeeded and both balances are known.
func Variation(previous *decimal.Decimal, result models.QueryResult) *decimal.Decimal {
	if !result.OK || previous == nil || result.BalanceDue == nil {
		return nil
	}
	v := result.BalanceDue.Sub(*previous)
	return &v
}

// QueryAllForUser queries every saved account of the owner, one at a time and
// in creation order. It always returns one outcome per account; an error is
// returned only when the accounts cannot be listed.
func (s *QueryService) QueryAllForUser(ctx context.Context, ownerID string, opts scraper.Options) ([]QueryOutcome, error) {
	accounts, err := s.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	start := time.Now()
	outcomes := make([]QueryOutcome, 0, len(accounts))
	for i, account := range accounts {
		var outcome QueryOutcome
		if ctx.Err() != nil {
			outcome = QueryOutcome{
				AccountID:         account.ID,
				Provider:          account.Provider,
				AccountIdentifier: account.AccountIdentifier,
				Label:             account.Label,
				Result:            models.FailedResult(account.Provider, "query cancelled"),
			}
		} else {
			outcome = s.queryAccountSafe(ctx, account, opts)
		}
		outcomes = append(outcomes, outcome)

		if s.progress != nil {
			s.progress.ReportQuery(ownerID, QueryProgress{Index: i, Total: len(accounts), Outcome: outcome})
		}
	}

	s.logger.Info("Batch query completed",
		utils.OwnerField(ownerID),
		zap.Int("accounts", len(accounts)),
		zap.Int("failed", countFailed(outcomes)),
		zap.Duration("elapsed", time.Since(start)))
	return outcomes, nil
}

func (s *QueryService) queryAccountSafe(ctx context.Context, account *models.Account, opts scraper.Options) (outcome QueryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Account query panicked", zap.String("account_id", account.ID), zap.Any("panic", r))
			outcome = QueryOutcome{
				AccountID:         account.ID,
				Provider:          account.Provider,
				AccountIdentifier: account.AccountIdentifier,
				Label:             account.Label,
				Result:            models.FailedResult(account.Provider, fmt.Sprintf("unexpected failure: %v", r)),
			}
		}
	}()
	return s.QueryAccount(ctx, account, opts)
}

// QueryAllOwners re-queries every owner's accounts with the default options.
// Owners are processed one after another.
func (s *QueryService) QueryAllOwners(ctx context.Context) (RequerySummary, error) {
	var summary RequerySummary

	owners, err := s.accounts.ListOwners(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list owners: %w", err)
	}

	opts := s.defaults
	opts.CaptureScreenshotOnError = false

	for _, ownerID := range owners {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		outcomes, err := s.QueryAllForUser(ctx, ownerID, opts)
		if err != nil {
			s.logger.Error("Re-query failed for owner", utils.OwnerField(ownerID), zap.Error(err))
			continue
		}
		summary.Owners++
		summary.Accounts += len(outcomes)
		summary.Failed += countFailed(outcomes)
	}
	return summary, nil
}

func countFailed(outcomes []QueryOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Result.OK {
			n++
		}
	}
	return n
}
