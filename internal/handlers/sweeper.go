package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartSweeper starts the pending ledger write sweeper
func (h *Handlers) StartSweeper(c *gin.Context) {
	if err := h.sweeper.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// StopSweeper stops the pending ledger write sweeper
func (h *Handlers) StopSweeper(c *gin.Context) {
	if err := h.sweeper.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// RunSweepOnce triggers a single sweep of pending ledger writes
func (h *Handlers) RunSweepOnce(c *gin.Context) {
	h.sweeper.RunOnce()
	c.Status(http.StatusOK)
}

// GetSweeperStatus returns sweeper status
func (h *Handlers) GetSweeperStatus(c *gin.Context) {
	status := "stopped"
	if h.sweeper.IsRunning() {
		status = "running"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"next_run": h.sweeper.GetNextRun(),
		"last_run": h.sweeper.GetLastRun(),
	})
}
