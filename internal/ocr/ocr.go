package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"receipt-ledger-go/internal/config"
)

// Client calls the external OCR service and interprets its response.
type Client struct {
	endpoint   string
	apiKey     string
	language   string
	httpClient *http.Client
}

// response mirrors the relevant slice of the OCR service's JSON reply.
type response struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
}

// NewClient creates a new OCR client
func NewClient(cfg *config.OCRConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ParseImageURL submits an image URL for recognition and returns the
// first result's text. A response without parsed results yields an
// empty string, not an error — downstream extraction handles empty
// text as a normal case.
func (c *Client) ParseImageURL(ctx context.Context, imageURL string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"apikey":    c.apiKey,
		"url":       imageURL,
		"language":  c.language,
		"OCREngine": "2",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read OCR response: %w", err)
	}

	var result response
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}

	if result.IsErroredOnProcessing {
		return "", fmt.Errorf("OCR service reported a processing error")
	}

	if len(result.ParsedResults) == 0 {
		return "", nil
	}
	return result.ParsedResults[0].ParsedText, nil
}
