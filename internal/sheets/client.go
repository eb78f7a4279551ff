// Package sheets stores listing rows in a Google Sheets worksheet.
package sheets

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Client reads and writes the rows of one worksheet. Row indexes are
// zero-based and include the header row.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheetName     string

	mu      sync.Mutex
	sheetID *int64
}

// NewClient creates a Sheets client authenticated with a service account
// credentials file. An empty path falls back to application default
// credentials.
func NewClient(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(gsheets.SpreadsheetsScope))

	c, err := NewClientWithOptions(ctx, spreadsheetID, sheetName, opts...)
	if err != nil {
		return nil, err
	}
	log.Printf("Using Google Sheets spreadsheet %s, sheet %q", spreadsheetID, sheetName)
	return c, nil
}

// NewClientWithOptions creates a client from raw API options, such as a
// custom endpoint and HTTP client.
func NewClientWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*Client, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// EnsureHeader writes the header row if the first row of the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context, header []string) error {
	rng := quoteSheet(c.sheetName) + "!A1:1"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	for _, row := range resp.Values {
		for _, v := range row {
			if strings.TrimSpace(cellString(v)) != "" {
				return nil
			}
		}
	}

	values := make([]interface{}, len(header))
	for i, v := range header {
		values[i] = v
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteSheet(c.sheetName)+"!A1", &gsheets.ValueRange{
		Values: [][]interface{}{values},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	log.Printf("Wrote header row to sheet %q", c.sheetName)
	return nil
}

// Rows returns every row of the sheet as strings.
func (c *Client) Rows(ctx context.Context) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteSheet(c.sheetName)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = cellString(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AppendRow adds a row after the last non-empty row.
func (c *Client) AppendRow(ctx context.Context, cells []string) error {
	values := make([]interface{}, len(cells))
	for i, v := range cells {
		values[i] = v
	}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteSheet(c.sheetName), &gsheets.ValueRange{
		Values: [][]interface{}{values},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}

// UpdateCell writes a single cell.
func (c *Client) UpdateCell(ctx context.Context, row, col int, value string) error {
	rng := fmt.Sprintf("%s!%s%d", quoteSheet(c.sheetName), ColumnLetter(col), row+1)

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return nil
}

// DeleteRow removes a row and shifts the rows below it up.
func (c *Client) DeleteRow(ctx context.Context, row int) error {
	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row),
					EndIndex:        int64(row + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}

	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete row %d: %w", row+1, err)
	}
	return nil
}

// resolveSheetID looks up the numeric id of the worksheet once.
func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetID != nil {
		return *c.sheetID, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to load spreadsheet: %w", err)
	}

	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			id := s.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}

// ColumnLetter converts a zero-based column index to A1 notation.
func ColumnLetter(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
