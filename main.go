package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"challenge-settlement-system/config"
	"challenge-settlement-system/handlers"
	"challenge-settlement-system/logger"
	"challenge-settlement-system/metrics"
	"challenge-settlement-system/reports"
	"challenge-settlement-system/repository"
	"challenge-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := repository.Migrate(db); err != nil {
		log.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := repository.NewGormStore(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archiver services.ReportArchiver
	if cfg.ReportsEnabled() {
		a, err := reports.NewR2Archiver(ctx, reports.R2Options{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2Bucket,
			Prefix:          cfg.ReportKeyPrefix,
		})
		if err != nil {
			log.Error("failed to initialize R2 client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		archiver = a
		log.Info("run reports archived to R2", slog.String("bucket", cfg.R2Bucket), slog.String("prefix", cfg.ReportKeyPrefix))
	}
	journal := services.NewRunJournal(store, archiver, log)

	reaper := services.NewAbandonmentReaper(store, log)
	reaper.TxTimeout = cfg.TxTimeout

	distributor := services.NewPointDistributor(store, collector, log)
	distributor.TxTimeout = cfg.TxTimeout

	penalizer := services.NewInactivityPenalizer(store, collector, log)
	penalizer.TxTimeout = cfg.TxTimeout
	penalizer.WindowDays = cfg.InactivityWindowDays
	penalizer.Penalty = cfg.InactivityPenalty

	scheduler, err := services.NewScheduler(
		services.Cadence(cfg.SettlementCron, cfg.SettlementInterval),
		cfg.SettlementLocation,
		journal, collector, log,
	)
	if err != nil {
		log.Error("failed to create scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	scheduler.JobTimeout = cfg.JobTimeout
	// Abandoned challenges must be gone before distribution looks at ended ones.
	scheduler.Register(reaper, distributor, penalizer)

	if err := scheduler.Start(); err != nil {
		log.Error("failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handlers.SetupOpsRoutes(app, reg)
	handlers.SetupAdminRoutes(app, scheduler, journal, cfg.AdminServiceToken, log)

	go func() {
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	log.Info("settlement service running",
		slog.String("port", cfg.ServerPort),
		slog.String("cron", cfg.SettlementCron),
		slog.Duration("interval", cfg.SettlementInterval),
		slog.String("timezone", cfg.SettlementLocation.String()),
	)

	<-ctx.Done()
	log.Info("shutting down")

	if err := scheduler.Shutdown(); err != nil {
		log.Error("scheduler shutdown error", slog.String("error", err.Error()))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server shutdown error", slog.String("error", err.Error()))
	}
}
