package ledger

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"receipt-ledger-go/internal/config"
	"receipt-ledger-go/internal/models"
)

// Writer appends receipt records to the ledger.
type Writer interface {
	Append(ctx context.Context, record models.ReceiptRecord) error
}

// SheetsWriter implements Writer against a Google Sheets spreadsheet.
type SheetsWriter struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsWriter creates a new spreadsheet ledger writer
func NewSheetsWriter(ctx context.Context, cfg *config.LedgerConfig) (*SheetsWriter, error) {
	// Create OAuth2 config
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{sheets.SpreadsheetsScope},
		Endpoint:     google.Endpoint,
	}

	// Create token source from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := sheets.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &SheetsWriter{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

// Append inserts one row at the end of the ledger sheet. Rows are
// never updated afterwards; the ledger is append-only.
func (w *SheetsWriter) Append(ctx context.Context, record models.ReceiptRecord) error {
	values := &sheets.ValueRange{
		Values: [][]interface{}{{
			record.ID,
			record.Email,
			record.Amount,
			record.ImageLink,
			record.Valid,
			record.OperationCode,
			record.Date,
		}},
	}

	_, err := w.service.Spreadsheets.Values.
		Append(w.spreadsheetID, w.sheetName, values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}

	return nil
}
