package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/services"
)

type AccountHandler struct {
	accounts *services.AccountService
	logger   *zap.Logger
}

func NewAccountHandler(accounts *services.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger.Named("account-handler")}
}

// CreateAccount saves a utility account for the caller.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accounts.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to save account")
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) GetAccounts(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	accounts, err := h.accounts.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	account, err := h.accounts.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to load account")
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.accounts.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.logger, err, "Failed to delete account")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}
