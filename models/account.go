package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// PROVIDERS
// ============================================================================

// ProviderKind identifies the utility whose portal is scraped for an account.
type ProviderKind string

const (
	ProviderElectricity ProviderKind = "electricity" // CNEL
	ProviderWater       ProviderKind = "water"       // Interagua
)

// ParseProviderKind accepts the kind itself or the provider's public name.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electricity", "cnel":
		return ProviderElectricity, nil
	case "water", "interagua":
		return ProviderWater, nil
	}
	return "", fmt.Errorf("unsupported provider %q", s)
}

// DisplayName is the provider name shown to users.
func (k ProviderKind) DisplayName() string {
	switch k {
	case ProviderElectricity:
		return "CNEL"
	case ProviderWater:
		return "Interagua"
	}
	return strings.ToUpper(string(k))
}

func (k ProviderKind) Valid() bool {
	return k == ProviderElectricity || k == ProviderWater
}

// ============================================================================
// ACCOUNT
// ============================================================================

// Trend describes the direction of the latest balance variation.
type Trend string

const (
	TrendIncrease  Trend = "increase"
	TrendDecrease  Trend = "decrease"
	TrendUnchanged Trend = "unchanged"
)

// TrendOf classifies a balance variation.
func TrendOf(variation decimal.Decimal) Trend {
	switch variation.Sign() {
	case 1:
		return TrendIncrease
	case -1:
		return TrendDecrease
	}
	return TrendUnchanged
}

// Account is a saved (provider, identifier) pair that belongs to one owner.
// (OwnerID, Provider, AccountIdentifier) is unique.
type Account struct {
	ID                string       `json:"id"`
	OwnerID           string       `json:"owner_id"`
	Provider          ProviderKind `json:"provider"`
	AccountIdentifier string       `json:"account_identifier"`
	Label             string       `json:"label,omitempty"`

	// LastResult is the outcome of the most recent query attempt, successful or not.
	LastResult *QueryResult `json:"last_result,omitempty"`
	// LastSuccess is the most recent successful query, the baseline for variations.
	LastSuccess *QueryResult `json:"last_success,omitempty"`
	// Variation is LastSuccess.BalanceDue minus the balance of the success before it.
	Variation *decimal.Decimal `json:"variation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trend reports the direction of the stored variation, or "" when none is known.
func (a *Account) Trend() Trend {
	if a.Variation == nil {
		return ""
	}
	return TrendOf(*a.Variation)
}

type CreateAccountRequest struct {
	Provider          string `json:"provider" binding:"required"`
	AccountIdentifier string `json:"account_identifier" binding:"required"`
	Label             string `json:"label"`
}
