package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/models"
	"receipt-ledger-go/internal/repository"
	"receipt-ledger-go/internal/scheduler"
	"receipt-ledger-go/internal/webhook"
)

// Processor runs the receipt pipeline for one inbound event.
type Processor interface {
	Process(ctx context.Context, data models.EmailData) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	repo      *repository.Repository
	processor Processor
	verifier  *webhook.Verifier
	sweeper   *scheduler.Sweeper
	metrics   *metrics.Metrics
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, repo *repository.Repository, processor Processor, verifier *webhook.Verifier, sweeper *scheduler.Sweeper, m *metrics.Metrics) *Handlers {
	return &Handlers{
		db:        db,
		repo:      repo,
		processor: processor,
		verifier:  verifier,
		sweeper:   sweeper,
		metrics:   m,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Signed webhook entry point
	router.POST("/webhooks/inbound", h.InboundWebhook)

	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Recorded receipts
		api.GET("/receipts", h.GetReceipts)
		api.GET("/receipts/:id", h.GetReceipt)

		// Sweeper control
		api.POST("/sweeper/start", h.StartSweeper)
		api.POST("/sweeper/stop", h.StopSweeper)
		api.POST("/sweeper/run-once", h.RunSweepOnce)
		api.GET("/sweeper/status", h.GetSweeperStatus)
	}
}
