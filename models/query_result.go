package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// QueryResult is the outcome of one provider query. Exactly one of the success
// fields (AccountRef and the typed readings) or ErrorMessage is populated.
type QueryResult struct {
	OK       bool         `json:"ok"`
	Provider ProviderKind `json:"provider"`

	// Success fields
	AccountRef  string           `json:"account_ref,omitempty"`
	BalanceDue  *decimal.Decimal `json:"balance_due,omitempty"`
	PeriodsOwed *int             `json:"periods_owed,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`

	// Provider-specific extras (CNEL)
	BusinessUnit   *string `json:"business_unit,omitempty"`
	Identification *string `json:"identification,omitempty"`
	Status         *string `json:"status,omitempty"`

	// Provider-specific extras (Interagua)
	HolderName      *string          `json:"holder_name,omitempty"`
	Address         *string          `json:"address,omitempty"`
	IssueDate       *time.Time       `json:"issue_date,omitempty"`
	LastPayment     *decimal.Decimal `json:"last_payment,omitempty"`
	LastPaymentDate *time.Time       `json:"last_payment_date,omitempty"`

	// Failure fields
	ErrorMessage string `json:"error,omitempty"`
	// Screenshot is a base64 PNG data URL, captured only when requested.
	Screenshot string `json:"screenshot,omitempty"`

	// RawText is the full rendered page text, kept for reprocessing.
	RawText   string    `json:"raw_text,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FailedResult builds an ok=false result carrying a human-readable error.
func FailedResult(provider ProviderKind, message string) QueryResult {
	if message == "" {
		message = "query failed"
	}
	return QueryResult{
		OK:           false,
		Provider:     provider,
		ErrorMessage: message,
		FetchedAt:    time.Now(),
	}
}

var (
	errResultBoth    = errors.New("query result carries both success fields and an error")
	errResultNeither = errors.New("query result carries neither success fields nor an error")
	errResultOKFlag  = errors.New("query result ok flag disagrees with its fields")
)

// Validate checks the success/error exclusivity of the result.
func (r QueryResult) Validate() error {
	success := r.AccountRef != ""
	failure := r.ErrorMessage != ""
	switch {
	case success && failure:
		return errResultBoth
	case !success && !failure:
		return errResultNeither
	case r.OK != success:
		return errResultOKFlag
	}
	return nil
}
