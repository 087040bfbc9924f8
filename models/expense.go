package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// RECURRING SERVICES
// ============================================================================

// ServiceCategory groups recurring services in the expense history.
type ServiceCategory string

const (
	CategoryUtilities    ServiceCategory = "utilities"
	CategoryLoan         ServiceCategory = "loan"
	CategorySubscription ServiceCategory = "subscription"
	CategoryHome         ServiceCategory = "home"
	CategoryOther        ServiceCategory = "other"
)

// ParseServiceCategory accepts the category or its Spanish name. Anything
// unknown is filed under CategoryOther.
func ParseServiceCategory(s string) ServiceCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utilities", "servicios_basicos":
		return CategoryUtilities
	case "loan", "prestamo", "préstamo":
		return CategoryLoan
	case "subscription", "suscripcion", "suscripción":
		return CategorySubscription
	case "home", "hogar":
		return CategoryHome
	}
	return CategoryOther
}

// Frequency is how often a recurring service is billed.
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyBimonthly Frequency = "bimonthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// ParseFrequency accepts the frequency or its Spanish name; empty means
// monthly.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "mensual":
		return FrequencyMonthly, nil
	case "bimonthly", "bimestral":
		return FrequencyBimonthly, nil
	case "quarterly", "trimestral":
		return FrequencyQuarterly, nil
	case "yearly", "anual":
		return FrequencyYearly, nil
	}
	return "", fmt.Errorf("unsupported frequency %q", s)
}

// RecurringService is a bill the owner pays periodically. (OwnerID, Name) is
// unique.
type RecurringService struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Name      string          `json:"name"`
	Category  ServiceCategory `json:"category"`
	Frequency Frequency       `json:"frequency"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ============================================================================
// MONTHLY EXPENSES
// ============================================================================

// MonthlyExpense is what the owner spent on one service in one calendar
// month. (OwnerID, ServiceID, Year, Month) is unique.
type MonthlyExpense struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	Amount      decimal.Decimal `json:"amount"`
	// Variation is Amount minus the previous month's amount for the same
	// service, nil when there is no previous month.
	Variation *decimal.Decimal `json:"variation,omitempty"`
	Paid      bool             `json:"paid"`
	PaidAt    *time.Time       `json:"paid_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Period formats the expense month as YYYY-MM.
func (e *MonthlyExpense) Period() string {
	return fmt.Sprintf("%04d-%02d", e.Year, e.Month)
}

// PreviousMonth returns the calendar month before (year, month).
func PreviousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// ============================================================================
// REQUESTS
// ============================================================================

type CreateServiceRequest struct {
	Name      string `json:"name" binding:"required"`
	Category  string `json:"category"`
	Frequency string `json:"frequency"`
}

type CreateExpenseRequest struct {
	ServiceID string          `json:"service_id" binding:"required"`
	Year      int             `json:"year" binding:"required"`
	Month     int             `json:"month" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// ManualExpenseRequest records an expense for a service by name, creating the
// service on first use.
type ManualExpenseRequest struct {
	Name      string          `json:"name" binding:"required"`
	Category  string          `json:"category"`
	Frequency string          `json:"frequency"`
	Year      int             `json:"year" binding:"required"`
	Month     int             `json:"month" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}
