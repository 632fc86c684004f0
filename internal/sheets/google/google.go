package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"kakeibo/internal/core"
	ports "kakeibo/internal/sheets"
	"kakeibo/internal/sheets/memory"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRange = "Export!A:G"

// Config selects the spreadsheet range holding an expense export.
type Config struct {
	SpreadsheetID   string
	Range           string
	CredentialsJSON []byte
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID and one of GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_RANGE (default "Export!A:G").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, Config{
		SpreadsheetID:   spreadsheetID,
		Range:           strings.TrimSpace(os.Getenv("GOOGLE_SHEET_RANGE")),
		CredentialsJSON: creds,
	})
}

// New creates a Sheets client using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.Range == "" {
		cfg.Range = defaultRange
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(cfg.CredentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, readRange: cfg.Range}, nil
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Rows fetches the configured range and returns its data rows as a
// RowReader. The first row of the range must be the header.
func (c *Client) Rows(ctx context.Context) (ports.RowReader, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.readRange, err)
	}
	rows, err := parseValues(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.readRange, err)
	}
	slog.InfoContext(ctx, "Fetched sheet rows", "range", c.readRange, "rows", len(rows))
	return memory.NewReader(rows...), nil
}

// parseValues converts a values matrix (as returned by the Sheets API)
// into raw rows. Blank rows are skipped; line numbers follow the sheet.
func parseValues(values [][]interface{}) ([]core.RawRow, error) {
	if len(values) == 0 {
		return nil, errors.New("empty range")
	}
	h, err := ports.ParseHeader(toStrings(values[0]))
	if err != nil {
		return nil, err
	}
	var out []core.RawRow
	for i := 1; i < len(values); i++ {
		cells := toStrings(values[i])
		if blank(cells) {
			continue
		}
		out = append(out, h.Row(i+1, cells))
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
