package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/services"
)

type ExpenseHandler struct {
	expenses *services.ExpenseService
	logger   *zap.Logger
}

func NewExpenseHandler(expenses *services.ExpenseService, logger *zap.Logger) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, logger: logger.Named("expense-handler")}
}

// CreateService saves a recurring service for the caller.
func (h *ExpenseHandler) CreateService(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sv, err := h.expenses.CreateService(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to save service")
		return
	}
	c.JSON(http.StatusCreated, sv)
}

func (h *ExpenseHandler) GetServices(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	list, err := h.expenses.ListServices(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list services")
		return
	}
	if list == nil {
		list = []*models.RecurringService{}
	}
	c.JSON(http.StatusOK, gin.H{"services": list})
}

func (h *ExpenseHandler) DeleteService(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.expenses.DeleteService(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.logger, err, "Failed to delete service")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Service deleted"})
}

// CreateExpense records a month of a saved service.
func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e, err := h.expenses.CreateExpense(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to save expense")
		return
	}
	c.JSON(http.StatusCreated, e)
}

// CreateManualExpense records a month of a service given by name.
func (h *ExpenseHandler) CreateManualExpense(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.ManualExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e, err := h.expenses.AddManual(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to save expense")
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *ExpenseHandler) GetExpenses(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	list, err := h.expenses.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list expenses")
		return
	}
	if list == nil {
		list = []*models.MonthlyExpense{}
	}
	c.JSON(http.StatusOK, gin.H{"expenses": list})
}

func (h *ExpenseHandler) MarkExpensePaid(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	e, err := h.expenses.MarkPaid(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to update expense")
		return
	}
	c.JSON(http.StatusOK, e)
}
