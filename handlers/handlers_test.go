package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/llm"
	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/models"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/scraper"
	"github.com/LovationAdmin/aldia-api/services"
)

const testSecret = "handlers-test-secret-0123456789!"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	kind    models.ProviderKind
	balance string
	opts    []scraper.Options
}

func (p *stubProvider) Kind() models.ProviderKind { return p.kind }

func (p *stubProvider) Query(_ context.Context, identifier string, opts scraper.Options) models.QueryResult {
	p.opts = append(p.opts, opts)
	if identifier == "broken" {
		res := models.FailedResult(p.kind, "account not found")
		if opts.CaptureScreenshotOnError {
			res.Screenshot = "data:image/png;base64,AAAA"
		}
		return res
	}
	balance := decimal.RequireFromString(p.balance)
	return models.QueryResult{
		OK:         true,
		Provider:   p.kind,
		AccountRef: identifier,
		BalanceDue: &balance,
		RawText:    "Valor a pagar " + p.balance,
		FetchedAt:  time.Now(),
	}
}

type testAPI struct {
	router   *gin.Engine
	store    *repositories.MemoryStore
	provider *stubProvider
	ws       *WSHandler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	store := repositories.NewMemoryStore()
	loc, err := time.LoadLocation("America/Guayaquil")
	require.NoError(t, err)

	provider := &stubProvider{kind: models.ProviderWater, balance: "55.00"}
	queries := services.NewQueryService(store.Accounts(), scraper.Options{Headless: true}, logger, provider)
	ws := NewWSHandler(logger)
	queries.SetProgressReporter(ws)
	t.Cleanup(func() { _ = ws.Close() })

	reminders := services.NewReminderService(store.Reminders(), store.Accounts(), services.ReminderDefaults{
		LeadDays: models.DefaultLeadDays, NotifyTime: models.DefaultNotifyTime, Location: loc,
	}, logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(middleware.NewTokenVerifier(testSecret), logger))

	qh := NewQueryHandler(queries, logger)
	v1.GET("/queries", qh.QueryOne)
	v1.GET("/queries/mine", qh.QueryMine)

	ah := NewAccountHandler(services.NewAccountService(store.Accounts(), logger), logger)
	v1.GET("/accounts", ah.GetAccounts)
	v1.POST("/accounts", ah.CreateAccount)
	v1.GET("/accounts/:id", ah.GetAccount)
	v1.DELETE("/accounts/:id", ah.DeleteAccount)

	rh := NewReminderHandler(reminders, logger)
	v1.GET("/reminders", rh.GetReminders)
	v1.POST("/reminders", rh.CreateReminder)
	v1.GET("/reminders/stats", rh.GetStats)
	v1.POST("/reminders/from-account/:accountId", rh.CreateFromAccount)
	v1.GET("/reminders/:id", rh.GetReminder)
	v1.PUT("/reminders/:id", rh.UpdateReminder)
	v1.PATCH("/reminders/:id/complete", rh.CompleteReminder)
	v1.DELETE("/reminders/:id", rh.DeleteReminder)

	expenses := services.NewExpenseService(store.Expenses(), loc, logger)
	queries.SetResultRecorder(expenses)
	eh := NewExpenseHandler(expenses, logger)
	v1.GET("/services", eh.GetServices)
	v1.POST("/services", eh.CreateService)
	v1.DELETE("/services/:id", eh.DeleteService)
	v1.GET("/expenses", eh.GetExpenses)
	v1.POST("/expenses", eh.CreateExpense)
	v1.POST("/expenses/manual", eh.CreateManualExpense)
	v1.PATCH("/expenses/:id/paid", eh.MarkExpensePaid)

	advice := services.NewAdviceService(store.Accounts(), store.Reminders(), llm.Disabled{}, logger)
	advice.SetExpenses(store.Expenses())
	adv := NewAdviceHandler(advice, logger)
	v1.POST("/advice", adv.GenerateAdvice)
	v1.GET("/advice/analysis", adv.GetAnalysis)

	v1.GET("/ws/queries", ws.HandleWS)

	return &testAPI{router: r, store: store, provider: provider, ws: ws}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, userID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestQueryOne(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "owner-1", http.MethodGet, "/api/v1/queries?provider=interagua&account=555", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.QueryResult](t, w)
	assert.True(t, res.OK)
	assert.Equal(t, "555", res.AccountRef)

	// Screenshots only with debug.
	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries?provider=water&account=broken", nil)
	res = decode[models.QueryResult](t, w)
	assert.False(t, res.OK)
	assert.Empty(t, res.Screenshot)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries?provider=water&account=broken&debug=true", nil)
	res = decode[models.QueryResult](t, w)
	assert.NotEmpty(t, res.Screenshot)

	// Unsupported providers come back as failed results.
	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries?provider=gas&account=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[models.QueryResult](t, w)
	assert.False(t, res.OK)
	assert.Contains(t, res.ErrorMessage, "unsupported provider")

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries?provider=water", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, "", http.MethodGet, "/api/v1/queries?provider=water&account=555", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type queryMineResponse struct {
	Results []services.QueryOutcome `json:"results"`
	Total   int                     `json:"total"`
	Failed  int                     `json:"failed"`
}

func TestAccountsAndQueryMine(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "owner-1", http.MethodPost, "/api/v1/accounts", models.CreateAccountRequest{
		Provider: "interagua", AccountIdentifier: "555", Label: "Casa",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	account := decode[models.Account](t, w)
	assert.Equal(t, models.ProviderWater, account.Provider)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/accounts", models.CreateAccountRequest{
		Provider: "water", AccountIdentifier: "555",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/accounts", models.CreateAccountRequest{
		Provider: "gas", AccountIdentifier: "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, "owner-2", http.MethodGet, "/api/v1/accounts/"+account.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries/mine", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[queryMineResponse](t, w)
	assert.Equal(t, 1, body.Total)
	assert.Zero(t, body.Failed)
	require.Len(t, body.Results, 1)
	assert.Equal(t, account.ID, body.Results[0].AccountID)

	// A second run reports the variation against the first.
	api.provider.balance = "70.00"
	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries/mine", nil)
	body = decode[queryMineResponse](t, w)
	require.Len(t, body.Results, 1)
	require.NotNil(t, body.Results[0].Variation)
	assert.Equal(t, "15", body.Results[0].Variation.String())
	assert.Equal(t, models.TrendIncrease, body.Results[0].Trend)

	for _, opts := range api.provider.opts {
		assert.False(t, opts.CaptureScreenshotOnError)
	}

	w = api.do(t, "owner-1", http.MethodDelete, "/api/v1/accounts/"+account.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/accounts", nil)
	assert.JSONEq(t, `{"accounts":[]}`, w.Body.String())
}

func TestReminderLifecycle(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "owner-1", http.MethodPost, "/api/v1/reminders", models.CreateReminderRequest{
		Provider: "cnel", AccountIdentifier: "1000123456", DueDate: "2030-01-15",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rem := decode[models.Reminder](t, w)
	assert.Equal(t, models.ReminderActive, rem.Status)
	assert.Equal(t, 2, rem.LeadDays)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/reminders", models.CreateReminderRequest{
		Provider: "cnel", AccountIdentifier: "1", DueDate: "15/01/2030",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	notes := "pagar en línea"
	w = api.do(t, "owner-1", http.MethodPut, "/api/v1/reminders/"+rem.ID, models.UpdateReminderRequest{Notes: &notes})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, notes, *decode[models.Reminder](t, w).Notes)

	w = api.do(t, "owner-1", http.MethodPatch, "/api/v1/reminders/"+rem.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ReminderCompleted, decode[models.Reminder](t, w).Status)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/reminders/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.ReminderStats](t, w)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Completed)

	w = api.do(t, "owner-2", http.MethodGet, "/api/v1/reminders/"+rem.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, "owner-1", http.MethodDelete, "/api/v1/reminders/"+rem.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/reminders", nil)
	assert.JSONEq(t, `{"reminders":[]}`, w.Body.String())
}

func TestReminderFromAccountAndAdvice(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	w := api.do(t, "owner-1", http.MethodPost, "/api/v1/accounts", models.CreateAccountRequest{
		Provider: "water", AccountIdentifier: "555",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	account := decode[models.Account](t, w)

	// No successful query with a due date yet.
	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/reminders/from-account/"+account.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	due := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
	balance := decimal.RequireFromString("55.00")
	require.NoError(t, api.store.Accounts().SaveResult(ctx, account.ID, repositories.ResultUpdate{
		Result: models.QueryResult{
			OK: true, Provider: models.ProviderWater, AccountRef: "555",
			BalanceDue: &balance, DueDate: &due, FetchedAt: time.Now(),
		},
	}))

	leadDays := 3
	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/reminders/from-account/"+account.ID,
		models.ReminderFromAccountRequest{LeadDays: &leadDays})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rem := decode[models.Reminder](t, w)
	assert.Equal(t, 3, rem.LeadDays)
	require.NotNil(t, rem.Amount)
	assert.True(t, rem.Amount.Equal(balance))

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/advice", models.AdviceRequest{ReminderID: rem.ID})
	require.Equal(t, http.StatusOK, w.Code)
	advice := decode[services.AdviceResult](t, w)
	assert.Equal(t, services.AdviceSourceLocal, advice.Source)
	assert.NotEmpty(t, advice.Advice)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/advice", models.AdviceRequest{ReminderID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/advice/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	analysis := decode[map[string]string](t, w)
	assert.Contains(t, analysis["analysis"], "Total pendiente")
}

type servicesResponse struct {
	Services []models.RecurringService `json:"services"`
}

type expensesResponse struct {
	Expenses []models.MonthlyExpense `json:"expenses"`
}

func TestServicesAndExpenses(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "owner-1", http.MethodGet, "/api/v1/services", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"services":[]}`, w.Body.String())

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/services", models.CreateServiceRequest{Name: "Internet", Category: "suscripcion"})
	require.Equal(t, http.StatusCreated, w.Code)
	sv := decode[models.RecurringService](t, w)
	assert.Equal(t, models.CategorySubscription, sv.Category)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/services", models.CreateServiceRequest{Name: "Internet"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/services", models.CreateServiceRequest{Name: "Gym", Frequency: "diario"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/expenses", models.CreateExpenseRequest{
		ServiceID: sv.ID, Year: 2026, Month: 4, Amount: decimal.RequireFromString("30"),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/expenses", models.CreateExpenseRequest{
		ServiceID: sv.ID, Year: 2026, Month: 5, Amount: decimal.RequireFromString("36"),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	may := decode[models.MonthlyExpense](t, w)
	require.NotNil(t, may.Variation)
	assert.Equal(t, "6", may.Variation.String())

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/expenses", models.CreateExpenseRequest{
		ServiceID: sv.ID, Year: 2026, Month: 13, Amount: decimal.RequireFromString("1"),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, "owner-2", http.MethodPost, "/api/v1/expenses", models.CreateExpenseRequest{
		ServiceID: sv.ID, Year: 2026, Month: 6, Amount: decimal.RequireFromString("1"),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, "owner-1", http.MethodPost, "/api/v1/expenses/manual", models.ManualExpenseRequest{
		Name: "Alquiler", Category: "hogar", Year: 2026, Month: 5, Amount: decimal.RequireFromString("400"),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, "owner-1", http.MethodPatch, "/api/v1/expenses/"+may.ID+"/paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.MonthlyExpense](t, w).Paid)
	w = api.do(t, "owner-2", http.MethodPatch, "/api/v1/expenses/"+may.ID+"/paid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleting the service keeps its months.
	w = api.do(t, "owner-1", http.MethodDelete, "/api/v1/services/"+sv.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/expenses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[expensesResponse](t, w).Expenses
	require.Len(t, list, 3)
	assert.Equal(t, "Alquiler", list[0].ServiceName)
	assert.Equal(t, "Internet", list[1].ServiceName)
	assert.Equal(t, 4, list[2].Month)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/services", nil)
	assert.Len(t, decode[servicesResponse](t, w).Services, 1)
}

func TestQueryMineRecordsMonthlyExpense(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "owner-1", http.MethodPost, "/api/v1/accounts", models.CreateAccountRequest{
		Provider: "interagua", AccountIdentifier: "555",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries/mine", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/expenses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[expensesResponse](t, w).Expenses
	require.Len(t, list, 1)
	assert.Equal(t, "Interagua 555", list[0].ServiceName)
	assert.Equal(t, "55", list[0].Amount.String())
}

func TestWSHandler_PushesProgressToOwner(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	w := api.do(t, "owner-1", http.MethodPost, "/api/v1/accounts", models.CreateAccountRequest{
		Provider: "water", AccountIdentifier: "555",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/queries?token=" + token(t, "owner-1")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait until melody has registered the session.
	require.Eventually(t, func() bool { return api.ws.M.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	w = api.do(t, "owner-1", http.MethodGet, "/api/v1/queries/mine", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type string                 `json:"type"`
		Data services.QueryProgress `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, "query_progress", event.Type)
	assert.Equal(t, 0, event.Data.Index)
	assert.Equal(t, 1, event.Data.Total)
	assert.Empty(t, event.Data.Outcome.Result.RawText)
}
