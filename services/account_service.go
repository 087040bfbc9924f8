package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/utils"
)

type AccountService struct {
	accounts repositories.AccountRepository
	logger   *zap.Logger
}

func NewAccountService(accounts repositories.AccountRepository, logger *zap.Logger) *AccountService {
	return &AccountService{accounts: accounts, logger: logger.Named("account-service")}
}

// Create saves a new account. A duplicate (owner, provider, identifier)
// returns repositories.ErrConflict.
func (s *AccountService) Create(ctx context.Context, ownerID string, req models.CreateAccountRequest) (*models.Account, error) {
	kind, err := models.ParseProviderKind(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	identifier := strings.TrimSpace(req.AccountIdentifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: account identifier is required", ErrInvalidInput)
	}

	now := time.Now()
	account := &models.Account{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Provider:          kind,
		AccountIdentifier: identifier,
		Label:             strings.TrimSpace(req.Label),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account saved",
		zap.String("account_id", account.ID),
		zap.String("provider", string(kind)),
		utils.AccountField(identifier),
		utils.OwnerField(ownerID))
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, ownerID, id string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, ownerID, id)
}

func (s *AccountService) List(ctx context.Context, ownerID string) ([]*models.Account, error) {
	return s.accounts.ListByOwner(ctx, ownerID)
}

func (s *AccountService) Delete(ctx context.Context, ownerID, id string) error {
	return s.accounts.Delete(ctx, ownerID, id)
}
