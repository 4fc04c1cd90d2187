package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"receipt-ledger-go/internal/extract"
	"receipt-ledger-go/internal/inbox"
	"receipt-ledger-go/internal/ledger"
	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/models"
)

// Error wraps a failure from one pipeline stage with the stage name.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("receipt pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Resolver obtains the attachment list for a message.
type Resolver interface {
	Resolve(ctx context.Context, messageID string, stubs []models.AttachmentStub) ([]models.Attachment, error)
}

// Downloader fetches raw bytes from a pre-signed URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Uploader stores an image durably and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// OCRClient converts a hosted image into raw text.
type OCRClient interface {
	ParseImageURL(ctx context.Context, imageURL string) (string, error)
}

// Store is the slice of the repository the pipeline needs.
type Store interface {
	IsEventProcessed(messageID string) (bool, error)
	MarkEventProcessed(messageID string) error
	SaveReceipt(row *models.ReceiptRow) error
	UpdateLedgerStatus(id, status, errorMsg string) error
}

// Pipeline runs one inbound event through attachment resolution, OCR,
// field extraction and ledger persistence.
type Pipeline struct {
	resolver   Resolver
	downloader Downloader
	uploader   Uploader
	ocr        OCRClient
	writer     ledger.Writer
	store      Store
	targets    extract.Targets
	metrics    *metrics.Metrics
}

// New creates a new receipt pipeline
func New(resolver Resolver, downloader Downloader, uploader Uploader, ocr OCRClient, writer ledger.Writer, store Store, targets extract.Targets, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		downloader: downloader,
		uploader:   uploader,
		ocr:        ocr,
		writer:     writer,
		store:      store,
		targets:    targets,
		metrics:    m,
	}
}

// Process handles one inbound event end to end. The caller has already
// acknowledged the webhook, so every outcome here is terminal: logged
// and counted, never surfaced to the notification provider.
func (p *Pipeline) Process(ctx context.Context, data models.EmailData) error {
	start := time.Now()
	defer func() {
		p.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	}()

	processed, err := p.store.IsEventProcessed(data.EmailID)
	if err != nil {
		return &Error{Stage: "idempotency-check", Err: err}
	}
	if processed {
		logrus.Infof("Event %s already processed, skipping", data.EmailID)
		return nil
	}

	attachments, err := p.resolver.Resolve(ctx, data.EmailID, data.Attachments)
	if err != nil {
		if errors.Is(err, inbox.ErrNoAttachment) {
			return p.finishWithoutReceipt(data.EmailID)
		}
		return &Error{Stage: "attachment-resolution", Err: err}
	}

	image := inbox.SelectImage(attachments)
	if image == nil {
		logrus.Infof("Message %s has attachments but none is an image", data.EmailID)
		return p.finishWithoutReceipt(data.EmailID)
	}

	imageLink, err := p.hostImage(ctx, image)
	if err != nil {
		return &Error{Stage: "image-fetch", Err: err}
	}

	text, err := p.ocr.ParseImageURL(ctx, imageLink)
	if err != nil {
		p.metrics.PipelineFailures.Inc()
		return &Error{Stage: "ocr", Err: err}
	}

	fields := extract.Extract(text, p.targets)

	record := models.ReceiptRecord{
		ID:        uuid.NewString(),
		Email:     data.From,
		Amount:    fields.Amount,
		ImageLink: imageLink,
		Valid:     fields.Valid,
		Date:      fields.Date,
	}
	// The operation code is only trusted on a valid receipt.
	if fields.Valid {
		record.OperationCode = fields.OperationCode
	}

	if err := p.persist(ctx, record); err != nil {
		return err
	}

	if err := p.store.MarkEventProcessed(data.EmailID); err != nil {
		logrus.Errorf("Failed to mark event %s as processed: %v", data.EmailID, err)
	}

	p.metrics.ReceiptsRecorded.Inc()
	if !record.Valid {
		p.metrics.InvalidReceipts.Inc()
	}

	logrus.Infof("Recorded receipt %s for message %s (valid=%t)", record.ID, data.EmailID, record.Valid)
	return nil
}

// hostImage downloads the attachment and re-uploads it to the image
// host so the ledger link outlives the provider's one-hour URL. When
// the upload fails the provider URL is used as a degraded fallback.
func (p *Pipeline) hostImage(ctx context.Context, image *models.Attachment) (string, error) {
	data, err := p.downloader.Download(ctx, image.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("failed to download image %s: %w", image.ID, err)
	}

	hosted, err := p.uploader.Upload(ctx, data)
	if err != nil {
		logrus.Warnf("Image host upload failed, falling back to provider URL: %v", err)
		return image.DownloadURL, nil
	}
	return hosted, nil
}

// persist stores the audit row and appends the ledger record. A failed
// append leaves the row pending for the sweeper.
func (p *Pipeline) persist(ctx context.Context, record models.ReceiptRecord) error {
	row := &models.ReceiptRow{
		ID:            record.ID,
		Email:         record.Email,
		Amount:        record.Amount,
		ImageLink:     record.ImageLink,
		Valid:         record.Valid,
		OperationCode: record.OperationCode,
		ReceiptDate:   record.Date,
		LedgerStatus:  models.LedgerStatusPending,
	}
	if err := p.store.SaveReceipt(row); err != nil {
		return &Error{Stage: "audit-store", Err: err}
	}

	if err := p.writer.Append(ctx, record); err != nil {
		logrus.Errorf("Ledger append failed for receipt %s, leaving pending: %v", record.ID, err)
		if updateErr := p.store.UpdateLedgerStatus(record.ID, models.LedgerStatusPending, err.Error()); updateErr != nil {
			logrus.Errorf("Failed to record ledger failure for receipt %s: %v", record.ID, updateErr)
		}
		p.metrics.PipelineFailures.Inc()
		return nil
	}

	if err := p.store.UpdateLedgerStatus(record.ID, models.LedgerStatusRecorded, ""); err != nil {
		logrus.Errorf("Failed to record ledger success for receipt %s: %v", record.ID, err)
	}
	return nil
}

// finishWithoutReceipt records the normal no-attachment outcome: the
// event is consumed but no ledger row is written.
func (p *Pipeline) finishWithoutReceipt(messageID string) error {
	logrus.Infof("No receipt image found for message %s, dropping event", messageID)
	p.metrics.NoAttachment.Inc()
	if err := p.store.MarkEventProcessed(messageID); err != nil {
		logrus.Errorf("Failed to mark event %s as processed: %v", messageID, err)
	}
	return nil
}
