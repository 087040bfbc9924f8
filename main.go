package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LovationAdmin/aldia-api/config"
	"github.com/LovationAdmin/aldia-api/handlers"
	"github.com/LovationAdmin/aldia-api/llm"
	"github.com/LovationAdmin/aldia-api/middleware"
	"github.com/LovationAdmin/aldia-api/repositories"
	"github.com/LovationAdmin/aldia-api/routes"
	"github.com/LovationAdmin/aldia-api/scraper"
	"github.com/LovationAdmin/aldia-api/services"
	"github.com/LovationAdmin/aldia-api/utils"
)

const version = "1.0.0"

// stores bundles the repositories chosen by DB_DRIVER.
type stores struct {
	accounts  repositories.AccountRepository
	reminders repositories.ReminderRepository
	expenses  repositories.ExpenseRepository
	users     repositories.UserRepository
	close     func()
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger, err := utils.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	utils.IsProduction = cfg.IsProduction()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealer, err := utils.NewSealer(cfg.DataEncryptionKey)
	if err != nil {
		logger.Fatal("Invalid data encryption key", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, sealer, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer st.close()

	// Providers
	loc := cfg.Location()
	timing := scraper.DefaultTiming()
	timing.Navigation = cfg.Scraper.Timeout
	if cfg.Scraper.SubmitTimeout > 0 {
		timing.Submit = cfg.Scraper.SubmitTimeout
	}
	if cfg.Scraper.SettleDelay > 0 {
		timing.SettleDelay = cfg.Scraper.SettleDelay
	}
	driverCfg := scraper.DriverConfig{Timing: timing, ExecPath: cfg.Scraper.ExecPath, Location: loc}
	launcher := scraper.NewChromeLauncher()
	cnel := scraper.NewDriver(scraper.CNELProfile(cfg.Scraper.CNELURL), launcher, driverCfg, logger)
	interagua := scraper.NewDriver(scraper.InteraguaProfile(cfg.Scraper.InteraguaURL), launcher, driverCfg, logger)

	queryService := services.NewQueryService(st.accounts, scraper.Options{
		Headless:                 cfg.Scraper.Headless,
		CaptureScreenshotOnError: cfg.Scraper.ScreenshotOnError,
		Timeout:                  cfg.Scraper.Timeout,
	}, logger, cnel, interagua)

	// Text generation is optional; advice falls back to local rules.
	generator, err := llm.New(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to configure AI provider", zap.Error(err))
	}

	var mailer services.Mailer
	if cfg.Email.ResendAPIKey != "" {
		mailer = services.NewResendMailer(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Email.AppName)
	} else {
		logger.Warn("RESEND_API_KEY not set, emails are only logged")
		mailer = services.NewLogMailer(logger)
	}
	notifier := services.NewNotifier(mailer, cfg.Email.AppName, loc, logger)

	accountService := services.NewAccountService(st.accounts, logger)
	reminderService := services.NewReminderService(st.reminders, st.accounts, services.ReminderDefaults{
		LeadDays:   cfg.Scheduler.DefaultLeadDays,
		NotifyTime: cfg.Scheduler.DefaultNotifyTime,
		Location:   loc,
	}, logger)
	expenseService := services.NewExpenseService(st.expenses, loc, logger)
	adviceService := services.NewAdviceService(st.accounts, st.reminders, generator, logger)
	adviceService.SetExpenses(st.expenses)
	queryService.SetResultRecorder(expenseService)

	wsHandler := handlers.NewWSHandler(logger)
	queryService.SetProgressReporter(wsHandler)

	scheduler := services.NewReminderScheduler(st.reminders, st.users, notifier, queryService, services.SchedulerConfig{
		NotificationInterval: cfg.Scheduler.NotificationInterval,
		OverdueInterval:      cfg.Scheduler.OverdueInterval,
		RequeryInterval:      cfg.Scheduler.RequeryInterval,
		RequeryOnStart:       cfg.Scheduler.RequeryOnStart,
		Location:             loc,
	}, logger)
	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	} else {
		logger.Info("Reminder scheduler disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.QueriesPerMinute, time.Minute)
	go limiter.RunCleanup(ctx, time.Minute)

	router := newRouter(cfg, logger)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": version,
			"ai":      generator.Name(),
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(middleware.NewTokenVerifier(cfg.Auth.JWTSecret), logger))
	{
		routes.SetupQueryRoutes(v1, handlers.NewQueryHandler(queryService, logger), limiter)
		routes.SetupAccountRoutes(v1, handlers.NewAccountHandler(accountService, logger))
		routes.SetupReminderRoutes(v1, handlers.NewReminderHandler(reminderService, logger))
		routes.SetupExpenseRoutes(v1, handlers.NewExpenseHandler(expenseService, logger))
		routes.SetupAdviceRoutes(v1, handlers.NewAdviceHandler(adviceService, logger))
		routes.SetupWSRoutes(v1, wsHandler)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	_ = wsHandler.Close()
	scheduler.Wait()
}

func newRouter(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	allowedOrigins := []string{cfg.FrontendURL}
	logger.Info("CORS configured", zap.Strings("origins", allowedOrigins))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RequestLogger(logger))
	return router
}

func openStores(ctx context.Context, cfg *config.Config, sealer *utils.Sealer, logger *zap.Logger) (*stores, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := config.InitDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connected")
		if err := config.RunMigrations(db, logger); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			accounts:  repositories.NewPostgresAccountRepository(db, sealer),
			reminders: repositories.NewPostgresReminderRepository(db),
			expenses:  repositories.NewPostgresExpenseRepository(db),
			users:     repositories.NewPostgresUserRepository(db),
			close:     func() { db.Close() },
		}, nil

	case "mongo":
		client, db, err := config.InitMongo(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("MongoDB connected", zap.String("database", cfg.Database.MongoName))
		if err := repositories.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			accounts:  repositories.NewMongoAccountRepository(db, sealer),
			reminders: repositories.NewMongoReminderRepository(db),
			expenses:  repositories.NewMongoExpenseRepository(db),
			users:     repositories.NewMongoUserRepository(db),
			close:     func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}

	logger.Warn("Using in-memory storage, data is lost on restart")
	mem := repositories.NewMemoryStore()
	return &stores{
		accounts:  mem.Accounts(),
		reminders: mem.Reminders(),
		expenses:  mem.Expenses(),
		users:     mem.Users(),
		close:     func() {},
	}, nil
}
