package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"receipt-ledger-go/internal/models"
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// IsEventProcessed reports whether this message id has already been
// handled. Used to keep webhook redeliveries idempotent.
func (r *Repository) IsEventProcessed(messageID string) (bool, error) {
	var processed models.ProcessedEvent
	result := r.db.Where("message_id = ?", messageID).First(&processed)
	if result.Error == nil {
		return true, nil
	}
	if result.Error == gorm.ErrRecordNotFound {
		return false, nil
	}
	return false, fmt.Errorf("database error checking processed event: %w", result.Error)
}

func (r *Repository) MarkEventProcessed(messageID string) error {
	processed := models.ProcessedEvent{
		MessageID:   messageID,
		ProcessedAt: time.Now(),
	}
	result := r.db.Create(&processed)
	if result.Error != nil {
		return fmt.Errorf("failed to mark event as processed: %w", result.Error)
	}
	return nil
}

// SaveReceipt stores the local audit copy of a receipt record.
func (r *Repository) SaveReceipt(row *models.ReceiptRow) error {
	result := r.db.Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to save receipt: %w", result.Error)
	}
	return nil
}

// UpdateLedgerStatus records the outcome of a spreadsheet append for a
// stored receipt.
func (r *Repository) UpdateLedgerStatus(id, status, errorMsg string) error {
	result := r.db.Model(&models.ReceiptRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ledger_status": status,
		"error_msg":     errorMsg,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update ledger status: %w", result.Error)
	}
	return nil
}

// PendingReceipts returns receipts whose ledger append has not
// succeeded yet, oldest first, for the sweeper to retry.
func (r *Repository) PendingReceipts(limit int) ([]models.ReceiptRow, error) {
	var rows []models.ReceiptRow
	result := r.db.Where("ledger_status = ?", models.LedgerStatusPending).
		Order("created_at ASC").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get pending receipts: %w", result.Error)
	}
	return rows, nil
}

// CountPendingReceipts returns how many receipts still await a ledger
// append.
func (r *Repository) CountPendingReceipts() (int64, error) {
	var count int64
	result := r.db.Model(&models.ReceiptRow{}).Where("ledger_status = ?", models.LedgerStatusPending).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count pending receipts: %w", result.Error)
	}
	return count, nil
}

// GetReceipt returns one stored receipt by id.
func (r *Repository) GetReceipt(id string) (*models.ReceiptRow, error) {
	var row models.ReceiptRow
	result := r.db.First(&row, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get receipt: %w", result.Error)
	}
	return &row, nil
}

// ListReceipts returns stored receipts with pagination, newest first.
func (r *Repository) ListReceipts(offset, limit int) ([]models.ReceiptRow, int64, error) {
	var total int64
	if err := r.db.Model(&models.ReceiptRow{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	var rows []models.ReceiptRow
	result := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list receipts: %w", result.Error)
	}
	return rows, total, nil
}
