package sheets

import (
	"context"
	"fmt"
	"sync"

	gsheets "google.golang.org/api/sheets/v4"
)

// googleSheet talks to one named tab of a spreadsheet.
type googleSheet struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheetName     string

	mu      sync.Mutex
	sheetID *int64
}

func (g *googleSheet) columns() string {
	return fmt.Sprintf("'%s'!A:K", g.sheetName)
}

// Cells are stored as typed, never parsed as formulas or numbers.
const valueInputOption = "RAW"

func (g *googleSheet) AppendRow(ctx context.Context, row []any) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{row}}
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, g.columns(), vr).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (g *googleSheet) Rows(ctx context.Context) ([][]any, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.columns()).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleSheet) DeleteRow(ctx context.Context, index int) error {
	sheetID, err := g.resolveSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(index),
					EndIndex:        int64(index + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
	return err
}

// resolveSheetID looks up the numeric id of the named tab once.
func (g *googleSheet) resolveSheetID(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sheetID != nil {
		return *g.sheetID, nil
	}

	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == g.sheetName {
			id := s.Properties.SheetId
			g.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", g.sheetName)
}
