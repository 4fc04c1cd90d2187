package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/models"
	"receipt-ledger-go/internal/webhook"
)

var testMetrics = metrics.NewMetrics()

type fakeProcessor struct {
	mu     sync.Mutex
	events []models.EmailData
	done   chan struct{}
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{done: make(chan struct{}, 10)}
}

func (f *fakeProcessor) Process(ctx context.Context, data models.EmailData) error {
	f.mu.Lock()
	f.events = append(f.events, data)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeProcessor) processed() []models.EmailData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EmailData(nil), f.events...)
}

func (f *fakeProcessor) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline was not invoked")
	}
}

func newWebhookRouter(t *testing.T) (*gin.Engine, *fakeProcessor, *webhook.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier, err := webhook.NewVerifier("test-secret", 5*time.Minute)
	require.NoError(t, err)

	processor := newFakeProcessor()
	h := NewHandlers(nil, nil, processor, verifier, nil, testMetrics)

	router := gin.New()
	router.POST("/webhooks/inbound", h.InboundWebhook)
	return router, processor, verifier
}

func signedRequest(verifier *webhook.Verifier, payload []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", bytes.NewReader(payload))
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(webhook.HeaderID, "msg_1")
	req.Header.Set(webhook.HeaderTimestamp, timestamp)
	req.Header.Set(webhook.HeaderSignature, verifier.Sign("msg_1", timestamp, payload))
	return req
}

func TestInboundWebhookAcceptsSignedEvent(t *testing.T) {
	router, processor, verifier := newWebhookRouter(t)

	payload := []byte(`{
		"type": "email.received",
		"data": {
			"email_id": "em_123",
			"from": "payer@example.com",
			"attachments": [{"id": "att_1", "filename": "receipt.jpg"}]
		}
	}`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(verifier, payload))

	assert.Equal(t, http.StatusOK, w.Code)

	processor.waitOne(t)
	events := processor.processed()
	require.Len(t, events, 1)
	assert.Equal(t, "em_123", events[0].EmailID)
	assert.Equal(t, "payer@example.com", events[0].From)
}

func TestInboundWebhookRejectsBadSignature(t *testing.T) {
	router, processor, _ := newWebhookRouter(t)

	payload := []byte(`{"type": "email.received", "data": {"email_id": "em_123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", bytes.NewReader(payload))
	req.Header.Set(webhook.HeaderID, "msg_1")
	req.Header.Set(webhook.HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(webhook.HeaderSignature, "v1,bm90LXRoZS1yaWdodC1zaWduYXR1cmU=")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, processor.processed())
}

func TestInboundWebhookRejectsMissingHeaders(t *testing.T) {
	router, processor, _ := newWebhookRouter(t)

	payload := []byte(`{"type": "email.received", "data": {"email_id": "em_123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", bytes.NewReader(payload))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, processor.processed())
}

func TestInboundWebhookIgnoresOtherEventTypes(t *testing.T) {
	router, processor, verifier := newWebhookRouter(t)

	payload := []byte(`{"type": "email.delivered", "data": {"email_id": "em_999"}}`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(verifier, payload))

	// Unknown types are acknowledged so the provider does not retry them.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, processor.processed())
}

func TestInboundWebhookRejectsMalformedPayload(t *testing.T) {
	router, processor, verifier := newWebhookRouter(t)

	payload := []byte(`{"type": "email.received", "data": `)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(verifier, payload))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, processor.processed())
}
