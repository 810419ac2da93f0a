// Package sheets mirrors registrations into a Google spreadsheet. The local
// store stays the source of truth; callers treat every error here as
// advisory.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dukerupert/reunion/internal/model"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Header is the fixed column order of the mirror sheet.
var Header = []any{
	"Registered At", "Name", "Email", "Phone", "City", "Relationship",
	"Connected Through", "Generation", "Branch", "Attendees", "Photo",
}

const (
	nameColumn  = 1
	emailColumn = 2
)

// valuesAPI is the slice of the Sheets API the client needs, kept small so
// tests can fake it.
type valuesAPI interface {
	AppendRow(ctx context.Context, row []any) error
	Rows(ctx context.Context) ([][]any, error)
	DeleteRow(ctx context.Context, index int) error
}

type Config struct {
	Enabled         bool
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client is a no-op unless it was built with a working API connection.
type Client struct {
	api valuesAPI
}

// New connects to the Sheets API when cfg is fully configured and returns a
// disabled client otherwise.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.Enabled || cfg.SpreadsheetID == "" {
		return &Client{}, nil
	}

	creds := []byte(cfg.CredentialsJSON)
	if len(creds) == 0 && cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		creds = data
	}
	if len(creds) == 0 {
		return &Client{}, nil
	}

	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsJSON(creds),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &Client{api: &googleSheet{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: sheetName}}, nil
}

// Enabled reports whether calls reach the spreadsheet.
func (c *Client) Enabled() bool {
	return c != nil && c.api != nil
}

// AppendMember adds one row for m.
func (c *Client) AppendMember(ctx context.Context, m model.FamilyMember) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.api.AppendRow(ctx, Row(m)); err != nil {
		return fmt.Errorf("append row for %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMember removes the first row, top to bottom, whose name and email
// cells equal m's. Nothing happens when no row matches.
func (c *Client) DeleteMember(ctx context.Context, m model.FamilyMember) error {
	if !c.Enabled() {
		return nil
	}
	rows, err := c.api.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	index := MatchRow(rows, m.Name, m.Email)
	if index < 0 {
		return nil
	}
	if err := c.api.DeleteRow(ctx, index); err != nil {
		return fmt.Errorf("delete row %d: %w", index, err)
	}
	return nil
}

// Row maps a member to the sheet's column order.
func Row(m model.FamilyMember) []any {
	return []any{
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.Name,
		m.Email,
		m.Phone,
		m.City,
		m.RelationshipType,
		m.ConnectedThrough,
		strconv.Itoa(m.Generation),
		m.FamilyBranch,
		strconv.Itoa(m.Attendees),
		m.PhotoURL(),
	}
}

// MatchRow returns the zero-based index of the first row whose name and
// email cells match, or -1.
func MatchRow(rows [][]any, name, email string) int {
	for i, row := range rows {
		if len(row) <= emailColumn {
			continue
		}
		if cell(row[nameColumn]) == name && cell(row[emailColumn]) == email {
			return i
		}
	}
	return -1
}

func cell(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
