package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/aldia-api/handlers"
	"github.com/LovationAdmin/aldia-api/middleware"
)

// SetupQueryRoutes sets up the scraper query routes. Each query drives a real
// browser, so they share the per-owner limiter.
func SetupQueryRoutes(rg *gin.RouterGroup, h *handlers.QueryHandler, limiter *middleware.RateLimiter) {
	queries := rg.Group("/queries")
	queries.Use(limiter.Handler())

	queries.GET("", h.QueryOne)
	queries.GET("/mine", h.QueryMine)
}

// SetupAccountRoutes sets up saved utility account routes.
func SetupAccountRoutes(rg *gin.RouterGroup, h *handlers.AccountHandler) {
	rg.GET("/accounts", h.GetAccounts)
	rg.POST("/accounts", h.CreateAccount)
	rg.GET("/accounts/:id", h.GetAccount)
	rg.DELETE("/accounts/:id", h.DeleteAccount)
}

// SetupReminderRoutes sets up reminder routes. Static segments are registered
// next to :id; gin resolves them first.
func SetupReminderRoutes(rg *gin.RouterGroup, h *handlers.ReminderHandler) {
	rg.GET("/reminders", h.GetReminders)
	rg.POST("/reminders", h.CreateReminder)
	rg.GET("/reminders/stats", h.GetStats)
	rg.POST("/reminders/from-account/:accountId", h.CreateFromAccount)

	rg.GET("/reminders/:id", h.GetReminder)
	rg.PUT("/reminders/:id", h.UpdateReminder)
	rg.PATCH("/reminders/:id/complete", h.CompleteReminder)
	rg.DELETE("/reminders/:id", h.DeleteReminder)
}

// SetupExpenseRoutes sets up recurring service and monthly expense routes.
func SetupExpenseRoutes(rg *gin.RouterGroup, h *handlers.ExpenseHandler) {
	rg.GET("/services", h.GetServices)
	rg.POST("/services", h.CreateService)
	rg.DELETE("/services/:id", h.DeleteService)

	rg.GET("/expenses", h.GetExpenses)
	rg.POST("/expenses", h.CreateExpense)
	rg.POST("/expenses/manual", h.CreateManualExpense)
	rg.PATCH("/expenses/:id/paid", h.MarkExpensePaid)
}

// SetupAdviceRoutes sets up savings advice routes.
func SetupAdviceRoutes(rg *gin.RouterGroup, h *handlers.AdviceHandler) {
	rg.POST("/advice", h.GenerateAdvice)
	rg.GET("/advice/analysis", h.GetAnalysis)
}

// SetupWSRoutes sets up the query progress websocket.
func SetupWSRoutes(rg *gin.RouterGroup, h *handlers.WSHandler) {
	rg.GET("/ws/queries", h.HandleWS)
}
