package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/services"
	"github.com/LovationAdmin/aldia-api/utils"
)

type QueryHandler struct {
	queries *services.QueryService
	logger  *zap.Logger
}

func NewQueryHandler(queries *services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queries: queries, logger: logger.Named("query-handler")}
}

// QueryOne runs a single ad-hoc provider query. The result is returned with
// 200 whether or not the portal answered; ok=false carries the reason.
// GET /queries?provider=cnel&account=...&debug=true
func (h *QueryHandler) QueryOne(c *gin.Context) {
	provider := c.Query("provider")
	account := c.Query("account")
	if provider == "" || account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and account are required"})
		return
	}

	kind, err := models.ParseProviderKind(provider)
	if err != nil {
		kind = models.ProviderKind(provider)
	}

	opts := h.queries.Defaults()
	debug, _ := strconv.ParseBool(c.Query("debug"))
	opts.CaptureScreenshotOnError = debug

	result := h.queries.QueryOne(c.Request.Context(), kind, account, opts)
	h.logger.Info("Ad-hoc query",
		zap.String("provider", string(kind)),
		utils.AccountField(account),
		zap.Bool("ok", result.OK))
	c.JSON(http.StatusOK, result)
}

// QueryMine queries every saved account of the caller, one at a time.
// GET /queries/mine
func (h *QueryHandler) QueryMine(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	opts := h.queries.Defaults()
	opts.CaptureScreenshotOnError = false

	outcomes, err := h.queries.QueryAllForUser(c.Request.Context(), userID, opts)
	if err != nil {
		respondError(c, h.logger, err, "Failed to query accounts")
		return
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Result.OK {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": outcomes,
		"total":   len(outcomes),
		"failed":  failed,
	})
}
