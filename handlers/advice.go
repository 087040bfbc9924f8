package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/services"
)

type AdviceHandler struct {
	advice *services.AdviceService
	logger *zap.Logger
}

func NewAdviceHandler(advice *services.AdviceService, logger *zap.Logger) *AdviceHandler {
	return &AdviceHandler{advice: advice, logger: logger.Named("advice-handler")}
}

// GenerateAdvice returns savings advice, attached to a reminder when
// reminder_id is given. The body is optional.
func (h *AdviceHandler) GenerateAdvice(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.AdviceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := h.advice.Generate(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to generate advice")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdviceHandler) GetAnalysis(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	analysis, err := h.advice.Analyze(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to analyze accounts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}
