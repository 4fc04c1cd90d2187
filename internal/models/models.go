package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Ledger write status for a locally stored receipt row.
const (
	LedgerStatusPending  = "pending"
	LedgerStatusRecorded = "recorded"
	LedgerStatusFailed   = "failed"
)

// WebhookEvent is the signed notification delivered by the inbox provider.
type WebhookEvent struct {
	Type string    `json:"type"`
	Data EmailData `json:"data"`
}

// EmailData identifies one received message and carries the attachment
// stubs the provider included inline with the notification.
type EmailData struct {
	EmailID     string           `json:"email_id"`
	From        string           `json:"from"`
	CC          []EmailAddress   `json:"cc"`
	Attachments []AttachmentStub `json:"attachments"`
}

// EmailAddress accepts either a bare string or an object carrying an
// "email" or "address" key, since the provider has shipped both shapes.
type EmailAddress string

// UnmarshalJSON implements the dual string/object decoding.
func (a *EmailAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = EmailAddress(s)
		return nil
	}

	var obj struct {
		Email   string `json:"email"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Email != "" {
		*a = EmailAddress(obj.Email)
	} else {
		*a = EmailAddress(obj.Address)
	}
	return nil
}

// AttachmentStub is the minimal attachment metadata embedded in the
// webhook event, used as a fallback key set when the listing endpoints
// have not caught up yet.
type AttachmentStub struct {
	ID          string `json:"id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Attachment is a full attachment descriptor returned by the provider.
// The download URL is pre-signed and expires after roughly one hour.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ReceiptRecord is the row appended to the ledger for one processed
// receipt. OperationCode is populated only when Valid is true; invalid
// receipts are still recorded for audit but without a trusted code.
type ReceiptRecord struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Amount        string `json:"amount"`
	ImageLink     string `json:"image_link"`
	Valid         bool   `json:"valid_receipt"`
	OperationCode string `json:"operation_code,omitempty"`
	Date          string `json:"date"`
}

// ProcessedEvent records a handled message id to keep webhook
// redeliveries idempotent.
type ProcessedEvent struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string         `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ProcessedAt time.Time      `json:"processed_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ProcessedEvent
func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// ReceiptRow is the local audit copy of a ledger record plus the state
// of its spreadsheet append.
type ReceiptRow struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email         string    `json:"email" gorm:"type:varchar(255);not null;index"`
	Amount        string    `json:"amount" gorm:"type:varchar(50)"`
	ImageLink     string    `json:"image_link" gorm:"type:varchar(500)"`
	Valid         bool      `json:"valid_receipt"`
	OperationCode string    `json:"operation_code" gorm:"type:varchar(50)"`
	ReceiptDate   string    `json:"date" gorm:"type:varchar(100)"`
	LedgerStatus  string    `json:"ledger_status" gorm:"type:varchar(20);not null;index"`
	ErrorMsg      string    `json:"error_msg,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for ReceiptRow
func (ReceiptRow) TableName() string {
	return "receipt_rows"
}

// Record converts the stored row back into its ledger form.
func (r *ReceiptRow) Record() ReceiptRecord {
	return ReceiptRecord{
		ID:            r.ID,
		Email:         r.Email,
		Amount:        r.Amount,
		ImageLink:     r.ImageLink,
		Valid:         r.Valid,
		OperationCode: r.OperationCode,
		Date:          r.ReceiptDate,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Ledger    string            `json:"ledger"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
