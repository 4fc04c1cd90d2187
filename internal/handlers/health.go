package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"receipt-ledger-go/internal/models"
)

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Ledger:    "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	pending, err := h.repo.CountPendingReceipts()
	if err != nil {
		response.Status = "error"
		response.Ledger = "error"
		logrus.Errorf("Pending receipt count failed: %v", err)
	} else {
		response.Metrics["pending_writes"] = strconv.FormatInt(pending, 10)
		if pending > 0 {
			response.Ledger = "degraded"
		}
	}

	if h.sweeper.IsRunning() {
		response.Metrics["sweeper"] = "running"
		response.Metrics["next_run"] = h.sweeper.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.sweeper.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["sweeper"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
