package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/services"
)

type ReminderHandler struct {
	reminders *services.ReminderService
	logger    *zap.Logger
}

func NewReminderHandler(reminders *services.ReminderService, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, logger: logger.Named("reminder-handler")}
}

func (h *ReminderHandler) CreateReminder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rem, err := h.reminders.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create reminder")
		return
	}
	c.JSON(http.StatusCreated, rem)
}

// CreateFromAccount builds a reminder from the last successful query of a
// saved account. The body is optional.
func (h *ReminderHandler) CreateFromAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.ReminderFromAccountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	rem, err := h.reminders.CreateFromAccount(c.Request.Context(), userID, c.Param("accountId"), req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create reminder")
		return
	}
	c.JSON(http.StatusCreated, rem)
}

func (h *ReminderHandler) GetReminders(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	reminders, err := h.reminders.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []*models.Reminder{}
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

func (h *ReminderHandler) GetReminder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	rem, err := h.reminders.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to load reminder")
		return
	}
	c.JSON(http.StatusOK, rem)
}

func (h *ReminderHandler) UpdateReminder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.UpdateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rem, err := h.reminders.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update reminder")
		return
	}
	c.JSON(http.StatusOK, rem)
}

// CompleteReminder marks a reminder as paid.
func (h *ReminderHandler) CompleteReminder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	rem, err := h.reminders.Complete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to complete reminder")
		return
	}
	c.JSON(http.StatusOK, rem)
}

func (h *ReminderHandler) DeleteReminder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.reminders.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, h.logger, err, "Failed to delete reminder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reminder deleted"})
}

func (h *ReminderHandler) GetStats(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.reminders.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}
