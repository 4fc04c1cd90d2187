package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"receipt-ledger-go/internal/config"
	"receipt-ledger-go/internal/models"
)

// StatusError reports a non-success HTTP status from the inbox
// provider's REST API.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inbox provider returned status %d for %s", e.Status, e.URL)
}

// IsNotFound reports whether err is a provider 404, which means the
// attachment has not been materialized upstream yet.
func IsNotFound(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Status == http.StatusNotFound
}

// Client is a thin REST client for the inbox provider's receiving API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new inbox provider client
func NewClient(cfg *config.InboxConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListAttachments lists all attachments of a received email.
func (c *Client) ListAttachments(ctx context.Context, emailID string) ([]models.Attachment, error) {
	url := fmt.Sprintf("%s/emails/receiving/%s/attachments", c.baseURL, emailID)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	return decodeAttachmentList(body)
}

// GetAttachment fetches a single attachment record by id.
func (c *Client) GetAttachment(ctx context.Context, emailID, attachmentID string) (*models.Attachment, error) {
	url := fmt.Sprintf("%s/emails/receiving/%s/attachments/%s", c.baseURL, emailID, attachmentID)

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	return decodeAttachment(body)
}

// Download fetches the raw bytes behind a pre-signed download URL. The
// URL already embeds its authorization, so no API key is sent.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, URL: url}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}

	return data, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inbox provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// decodeAttachmentList accepts both the enveloped form {"data": [...]}
// and a bare array, since the provider has shipped both.
func decodeAttachmentList(body []byte) ([]models.Attachment, error) {
	var envelope struct {
		Data []models.Attachment `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var list []models.Attachment
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode attachment list: %w", err)
	}
	return list, nil
}

// decodeAttachment accepts both {"data": {...}} and the bare object.
func decodeAttachment(body []byte) (*models.Attachment, error) {
	var envelope struct {
		Data *models.Attachment `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var att models.Attachment
	if err := json.Unmarshal(body, &att); err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return &att, nil
}
