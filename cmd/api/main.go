package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/feldbach-gym/keyboard-loan-api/api/swagger"
	"github.com/feldbach-gym/keyboard-loan-api/db/migrations"
	"github.com/feldbach-gym/keyboard-loan-api/internal/handler"
	"github.com/feldbach-gym/keyboard-loan-api/internal/middleware"
	"github.com/feldbach-gym/keyboard-loan-api/internal/repository"
	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/cache"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/config"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/database"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/export"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/logger"
	corsmiddleware "github.com/feldbach-gym/keyboard-loan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/feldbach-gym/keyboard-loan-api/pkg/middleware/requestid"
)

// @title Keyboard Loan API
// @version 1.0.0
// @description Inventory and loan tracking for the school keyboard program
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db, migrations.FS); err != nil {
		logr.Sugar().Fatalw("migrations failed", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()

	yearRepo := repository.NewSchoolYearRepository(db)
	classRepo := repository.NewSchoolClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	keyboardRepo := repository.NewKeyboardRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	rolloverRepo := repository.NewRolloverRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	metricsSvc := service.NewMetricsService()
	yearSvc := service.NewYearService(yearRepo, classRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, classRepo, loanRepo, auditRepo, validate, logr)
	keyboardSvc := service.NewKeyboardService(keyboardRepo, loanRepo, auditRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(yearRepo, keyboardRepo, loanRepo, classRepo,
		redisClient, metricsSvc, cfg.Dashboard.Enabled, cfg.Dashboard.CacheTTL, logr)
	loanSvc := service.NewLoanService(loanRepo, studentRepo, keyboardRepo, auditRepo, dashboardSvc, cfg.Loans.FeeAmount, validate, logr)
	rolloverSvc := service.NewRolloverService(yearRepo, classRepo, loanRepo, rolloverRepo, auditRepo, dashboardSvc, validate, logr)
	importSvc := service.NewImportService(snapshotRepo, auditRepo, dashboardSvc, cfg.Loans.FeeAmount, logr)
	exportSvc := service.NewExportService(yearRepo, classRepo, studentRepo, keyboardRepo, loanRepo,
		export.NewCSVExporter(), export.NewPDFExporter(), cfg.Loans.FeeAmount, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)

	yearHandler := handler.NewYearHandler(yearSvc)
	classHandler := handler.NewClassHandler(classSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	keyboardHandler := handler.NewKeyboardHandler(keyboardSvc)
	loanHandler := handler.NewLoanHandler(loanSvc)
	rolloverHandler := handler.NewRolloverHandler(rolloverSvc)
	backupHandler := handler.NewBackupHandler(exportSvc, importSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/dashboard", dashboardHandler.Overview)

		api.GET("/school-years", yearHandler.List)
		api.GET("/school-years/active", yearHandler.GetActive)
		api.GET("/school-years/:id", yearHandler.Get)
		api.POST("/school-years", yearHandler.Create)
		api.PUT("/school-years/:id", yearHandler.Update)
		api.POST("/school-years/:id/activate", yearHandler.Activate)

		api.GET("/classes", classHandler.List)
		api.GET("/classes/:id", classHandler.Get)
		api.POST("/classes", classHandler.Create)
		api.PUT("/classes/:id", classHandler.Update)
		api.DELETE("/classes/:id", classHandler.Delete)
		api.POST("/classes/:id/import", studentHandler.ImportRoster)
		api.GET("/classes/:id/export", backupHandler.ClassList)

		api.GET("/students", studentHandler.List)
		api.GET("/students/:id", studentHandler.Get)
		api.POST("/students", studentHandler.Create)
		api.PUT("/students/:id", studentHandler.Update)
		api.DELETE("/students/:id", studentHandler.Delete)
		api.POST("/students/:id/toggle-participation", studentHandler.ToggleParticipation)
		api.POST("/students/:id/toggle-fee", studentHandler.ToggleFeePrepaid)

		api.GET("/keyboards", keyboardHandler.List)
		api.GET("/keyboards/:id", keyboardHandler.Get)
		api.POST("/keyboards", keyboardHandler.Create)
		api.POST("/keyboards/bulk", keyboardHandler.BulkCreate)
		api.PUT("/keyboards/:id", keyboardHandler.Update)
		api.DELETE("/keyboards/:id", keyboardHandler.Delete)

		api.GET("/loans", loanHandler.List)
		api.GET("/loans/ledger-check", loanHandler.LedgerCheck)
		api.GET("/loans/:id", loanHandler.Get)
		api.POST("/loans", loanHandler.Create)
		api.POST("/loans/:id/return", loanHandler.Return)
		api.POST("/loans/:id/undo-return", loanHandler.UndoReturn)
		api.POST("/loans/:id/toggle-fee", loanHandler.ToggleFee)

		api.GET("/rollover/preview", rolloverHandler.Preview)
		api.POST("/rollover/promote", rolloverHandler.Promote)

		api.GET("/export/workbook", backupHandler.Workbook)
		api.GET("/export/json", backupHandler.Snapshot)
		api.GET("/export/bundle", backupHandler.Bundle)
		api.GET("/export/payments", backupHandler.PaymentList)
		api.POST("/import", backupHandler.Import)

		api.GET("/audit", auditHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}
