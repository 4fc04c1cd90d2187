package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"receipt-ledger-go/internal/models"
)

// eventTypeReceived is the only webhook event type that carries an inbound email.
const eventTypeReceived = "email.received"

// processTimeout bounds a single background pipeline run.
const processTimeout = 5 * time.Minute

// InboundWebhook receives signed inbound-email events from the mail provider.
// The event is acknowledged immediately; the receipt pipeline runs in the
// background so provider timeouts never cause redeliveries mid-processing.
func (h *Handlers) InboundWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if err := h.verifier.Verify(body, c.Request.Header); err != nil {
		logrus.Warnf("Rejected webhook delivery: %v", err)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_signature",
			Message: "Webhook signature verification failed",
			Code:    http.StatusUnauthorized,
		})
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_payload",
			Message: "Failed to parse webhook payload",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if event.Type != eventTypeReceived {
		logrus.Debugf("Ignoring webhook event type %s", event.Type)
		c.Status(http.StatusOK)
		return
	}

	h.metrics.EventsReceived.Inc()
	logrus.Infof("Accepted inbound email event %s from %s", event.Data.EmailID, event.Data.From)

	go func(data models.EmailData) {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.processor.Process(ctx, data); err != nil {
			logrus.Errorf("Receipt pipeline failed for email %s: %v", data.EmailID, err)
		}
	}(event.Data)

	c.Status(http.StatusOK)
}
