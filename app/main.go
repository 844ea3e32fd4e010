package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wpmr/feed-validator/app/api"
	"github.com/wpmr/feed-validator/app/cfg"
	"github.com/wpmr/feed-validator/app/database"
	"github.com/wpmr/feed-validator/app/fetcher"
	"github.com/wpmr/feed-validator/app/report"
	"github.com/wpmr/feed-validator/app/rules"
	"github.com/wpmr/feed-validator/app/tasks"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was requested
		return
	}

	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Feed Validator", "version", c.Version)

	db, err := database.Connect(c.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "migration_version", version, "dirty", dirty)

	reportRepo := database.NewReportRepository(db)
	overrideRepo := database.NewOverrideRepository(db)

	packLoader := rules.NewPackLoader(c.RulesDir)
	pack := packLoader.Load(c.RuleVersion)
	slog.Info("Rule pack loaded", "rule_version", pack.ID, "rules", len(pack.Rules))

	feedFetcher := fetcher.New()

	mailerMode := "smtp"
	if c.SMTPHost == "" {
		mailerMode = "log"
	}
	mailer := report.NewMailer(report.EmailConfig{
		Host:            c.SMTPHost,
		Port:            c.SMTPPort,
		From:            c.SMTPFrom,
		User:            c.SMTPUser,
		Password:        c.SMTPPassword,
		SubjectTemplate: c.EmailSubjectTemplate,
		BodyTemplate:    c.EmailBodyTemplate,
		AttachCSV:       c.AttachCSV,
		DeliveryMode:    mailerMode,
	})
	notifier := report.NewWebhookNotifier(c.WebhookURL)

	scheduler := tasks.NewScheduler(reportRepo)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", c.WorkerCount, "interval_seconds", c.SchedulerInterval)

	handler := api.NewHandler(reportRepo, overrideRepo, packLoader, feedFetcher, mailer, notifier, scheduler)
	server := api.NewServer(handler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port, "api_auth", c.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Feed Validator shutdown complete")
}
