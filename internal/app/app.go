package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"receipt-ledger-go/internal/config"
	"receipt-ledger-go/internal/db"
	"receipt-ledger-go/internal/extract"
	"receipt-ledger-go/internal/handlers"
	"receipt-ledger-go/internal/imagehost"
	"receipt-ledger-go/internal/inbox"
	"receipt-ledger-go/internal/ledger"
	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/ocr"
	"receipt-ledger-go/internal/pipeline"
	"receipt-ledger-go/internal/repository"
	"receipt-ledger-go/internal/scheduler"
	"receipt-ledger-go/internal/server"
	"receipt-ledger-go/internal/webhook"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Receipt Ledger Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	m := metrics.NewMetrics()

	verifier, err := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	if err != nil {
		return fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	inboxClient := inbox.NewClient(&cfg.Inbox)
	// No first-party provider SDK is wired; resolution starts at the
	// REST listing strategy.
	resolver := inbox.NewResolver(nil, inboxClient)

	ocrClient := ocr.NewClient(&cfg.OCR)
	uploader := imagehost.NewClient(&cfg.ImageHost)

	writer, err := ledger.NewSheetsWriter(context.Background(), &cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to create ledger writer: %w", err)
	}

	targets := extract.Targets{
		Name:  cfg.Validation.TargetName,
		Phone: cfg.Validation.TargetPhone,
	}
	pipe := pipeline.New(resolver, inboxClient, uploader, ocrClient, writer, repo, targets, m)

	sweeper := scheduler.NewSweeper(&cfg.Sweeper, repo, writer, m)

	h := handlers.NewHandlers(dbConn, repo, pipe, verifier, sweeper, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sweeper.Stop(); err != nil {
		logrus.Errorf("Failed to stop sweeper: %v", err)
	}
	sweeper.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
