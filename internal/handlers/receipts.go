package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"receipt-ledger-go/internal/models"
)

// GetReceipts returns processed receipts, newest first
func (h *Handlers) GetReceipts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	rows, total, err := h.repo.ListReceipts(offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch receipts",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"receipts": rows,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetReceipt returns a single receipt by ID
func (h *Handlers) GetReceipt(c *gin.Context) {
	row, err := h.repo.GetReceipt(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch receipt",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Receipt not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, row)
}
