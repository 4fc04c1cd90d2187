package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-ledger-go/internal/config"
	"receipt-ledger-go/internal/extract"
	"receipt-ledger-go/internal/inbox"
	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/models"
)

// The prometheus default registry forbids duplicate registration, so
// every test shares one Metrics instance.
var testMetrics = metrics.NewMetrics()

// memStore is an in-memory Store.
type memStore struct {
	processed map[string]bool
	rows      map[string]*models.ReceiptRow
}

func newMemStore() *memStore {
	return &memStore{processed: make(map[string]bool), rows: make(map[string]*models.ReceiptRow)}
}

func (s *memStore) IsEventProcessed(messageID string) (bool, error) {
	return s.processed[messageID], nil
}

func (s *memStore) MarkEventProcessed(messageID string) error {
	s.processed[messageID] = true
	return nil
}

func (s *memStore) SaveReceipt(row *models.ReceiptRow) error {
	s.rows[row.ID] = row
	return nil
}

func (s *memStore) UpdateLedgerStatus(id, status, errorMsg string) error {
	if row, ok := s.rows[id]; ok {
		row.LedgerStatus = status
		row.ErrorMsg = errorMsg
	}
	return nil
}

// captureWriter records appended ledger rows.
type captureWriter struct {
	records []models.ReceiptRecord
	err     error
}

func (w *captureWriter) Append(ctx context.Context, record models.ReceiptRecord) error {
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, record)
	return nil
}

// fakeUploader returns a fixed hosted URL.
type fakeUploader struct {
	url string
	err error
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte) (string, error) {
	return u.url, u.err
}

// fakeOCR returns scripted text and records the URLs it was given.
type fakeOCR struct {
	text string
	err  error
	urls []string
}

func (o *fakeOCR) ParseImageURL(ctx context.Context, imageURL string) (string, error) {
	o.urls = append(o.urls, imageURL)
	return o.text, o.err
}

// newUpstream fakes the inbox provider: an attachment listing whose
// download URL points back at the same server, plus the file itself.
func newUpstream() *httptest.Server {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/emails/receiving/em_1/attachments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"id":"att_1","filename":"receipt.png","content_type":"image/png","download_url":"%s/files/receipt.png"}]}`, server.URL)
	})
	mux.HandleFunc("/files/receipt.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	})
	server = httptest.NewServer(mux)
	return server
}

func newTestPipeline(serverURL string, ocr *fakeOCR, writer *captureWriter, uploader *fakeUploader, store *memStore) *Pipeline {
	client := inbox.NewClient(&config.InboxConfig{APIKey: "k", BaseURL: serverURL})
	resolver := inbox.NewResolverWithBackOff(nil, client, func() backoff.BackOff {
		return &backoff.StopBackOff{}
	})

	targets := extract.Targets{Name: "Juan Perez", Phone: "987654321"}
	return New(resolver, client, uploader, ocr, writer, store, targets, testMetrics)
}

func TestProcessValidReceipt(t *testing.T) {
	server := newUpstream()
	defer server.Close()

	ocr := &fakeOCR{text: "Yape! S/ 45.00 op 12345678 el 15 Jun. 2024 10:30 a.m. para Juan Perez 987654321"}
	writer := &captureWriter{}
	store := newMemStore()

	p := newTestPipeline(server.URL, ocr, writer, &fakeUploader{url: "https://img.test/hosted.png"}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1", From: "payer@mail.test"})
	require.NoError(t, err)

	require.Len(t, writer.records, 1)
	record := writer.records[0]
	assert.Equal(t, "payer@mail.test", record.Email)
	assert.Equal(t, "45.00", record.Amount)
	assert.Equal(t, "12345678", record.OperationCode)
	assert.Equal(t, "15 Jun. 2024 10:30 a.m.", record.Date)
	assert.True(t, record.Valid)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "https://img.test/hosted.png", record.ImageLink)

	// OCR ran against the durable hosted link, not the expiring one.
	require.Len(t, ocr.urls, 1)
	assert.Equal(t, "https://img.test/hosted.png", ocr.urls[0])

	assert.True(t, store.processed["em_1"])
	assert.Equal(t, models.LedgerStatusRecorded, store.rows[record.ID].LedgerStatus)
}

func TestProcessIdentityMismatchStillRecorded(t *testing.T) {
	server := newUpstream()
	defer server.Close()

	// Same receipt text, but the configured phone does not appear.
	ocr := &fakeOCR{text: "Yape! S/ 45.00 op 12345678 el 15 Jun. 2024 10:30 a.m. para Juan Perez 000000000"}
	writer := &captureWriter{}
	store := newMemStore()

	p := newTestPipeline(server.URL, ocr, writer, &fakeUploader{url: "https://img.test/h.png"}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1", From: "payer@mail.test"})
	require.NoError(t, err)

	require.Len(t, writer.records, 1)
	record := writer.records[0]
	assert.False(t, record.Valid)
	assert.Empty(t, record.OperationCode, "invalid receipts carry no trusted operation code")
	assert.Equal(t, "45.00", record.Amount)
}

func TestProcessNoAttachmentsWritesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	writer := &captureWriter{}
	store := newMemStore()

	p := newTestPipeline(server.URL, &fakeOCR{}, writer, &fakeUploader{}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1", From: "payer@mail.test"})
	require.NoError(t, err)

	assert.Empty(t, writer.records)
	assert.True(t, store.processed["em_1"], "no-attachment outcomes still consume the event")
}

func TestProcessNonImageAttachmentsWriteNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"att_1","filename":"terms.pdf","content_type":"application/pdf","download_url":"https://files.test/terms.pdf"}]}`)
	}))
	defer server.Close()

	writer := &captureWriter{}
	store := newMemStore()

	p := newTestPipeline(server.URL, &fakeOCR{}, writer, &fakeUploader{}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1"})
	require.NoError(t, err)
	assert.Empty(t, writer.records)
}

func TestProcessSkipsAlreadyProcessedEvent(t *testing.T) {
	server := newUpstream()
	defer server.Close()

	writer := &captureWriter{}
	store := newMemStore()
	store.processed["em_1"] = true

	p := newTestPipeline(server.URL, &fakeOCR{}, writer, &fakeUploader{}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1"})
	require.NoError(t, err)
	assert.Empty(t, writer.records)
}

func TestProcessOCRFailureAbortsRun(t *testing.T) {
	server := newUpstream()
	defer server.Close()

	writer := &captureWriter{}
	store := newMemStore()

	p := newTestPipeline(server.URL, &fakeOCR{err: errors.New("ocr down")}, writer, &fakeUploader{url: "https://img.test/h.png"}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1"})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ocr", perr.Stage)
	assert.Empty(t, writer.records)
}

func TestProcessLedgerFailureLeavesRowPending(t *testing.T) {
	server := newUpstream()
	defer server.Close()

	ocr := &fakeOCR{text: "S/ 45.00 op 12345678 el 15 Jun. 2024 a Juan Perez 987654321"}
	writer := &captureWriter{err: errors.New("sheets unavailable")}
	store := newMemStore()

	p := newTestPipeline(server.URL, ocr, writer, &fakeUploader{url: "https://img.test/h.png"}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1"})
	require.NoError(t, err, "ledger failures are retried later, not surfaced")

	require.Len(t, store.rows, 1)
	for _, row := range store.rows {
		assert.Equal(t, models.LedgerStatusPending, row.LedgerStatus)
		assert.Contains(t, row.ErrorMsg, "sheets unavailable")
	}
}

func TestProcessUploadFailureFallsBackToProviderURL(t *testing.T) {
	server := newUpstream()
	defer server.Close()

	ocr := &fakeOCR{text: "S/ 45.00"}
	writer := &captureWriter{}
	store := newMemStore()

	p := newTestPipeline(server.URL, ocr, writer, &fakeUploader{err: errors.New("host down")}, store)

	err := p.Process(context.Background(), models.EmailData{EmailID: "em_1"})
	require.NoError(t, err)

	require.Len(t, writer.records, 1)
	assert.Contains(t, writer.records[0].ImageLink, "/files/receipt.png")
}
